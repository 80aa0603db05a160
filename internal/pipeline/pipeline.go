// Package pipeline runs listen -> capture -> infer -> respond, one request at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/glimpse/internal/capture"
	"github.com/rbright/glimpse/internal/conversation"
	"github.com/rbright/glimpse/internal/fsm"
	"github.com/rbright/glimpse/internal/inference"
	"github.com/rbright/glimpse/internal/speech"
)

var (
	ErrBusy   = errors.New("pipeline busy")
	ErrClosed = errors.New("pipeline closed")

	ErrSpeechDropped = errors.New("speech queue full; utterance dropped")
)

const (
	Banner            = "=== AI Smart Glasses ===\nSystem ready."
	Greeting          = "System ready"
	BusyNotice        = "Processing previous request. Please wait..."
	ImageCaptured     = "(Image captured)"
	Apology           = "Sorry, I encountered an error"
	FarewellText      = "Goodbye! Shutting down system."
	FarewellSpoken    = "Goodbye! Shutting down system"
	errorReplyPrefix  = "Error generating response: "
	speechErrorPrefix = "Speech error: "
)

// Frames is the capture-side dependency.
type Frames interface {
	CurrentFrame() (*capture.Snapshot, bool)
}

// Speech dispatches utterances without waiting for playback.
type Speech interface {
	Dispatch(text string, onDone func(error)) bool
}

// Config holds behavior knobs; zero values fall back to defaults.
type Config struct {
	Attempts     int
	Listen       speech.Params
	ExitWords    []string
	MaxSentences int
	// Farewell is displayed on exit; it is spoken without its final period.
	Farewell string
	// Grace is the delay between the farewell and OnExit.
	Grace  time.Duration
	OnExit func()
}

// Deps are the constructed services the pipeline drives.
type Deps struct {
	Listener  speech.Listener
	Frames    Frames
	Inference inference.Client
	Speech    Speech
	History   *conversation.History
	Observer  Observer
	Indicator Indicator
	Logger    *slog.Logger
}

// Request is one accepted trigger.
type Request struct {
	ID     string
	Source string
	At     time.Time
}

// Pipeline is a single-consumer worker fed by Trigger.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	listener  speech.Listener
	frames    Frames
	infer     inference.Client
	speech    Speech
	history   *conversation.History
	observer  Observer
	indicator Indicator

	mu    sync.RWMutex
	state fsm.State

	busy     atomic.Bool
	closeMu  sync.Mutex
	closed   bool
	requests chan Request
	exitOnce sync.Once
	exitTmr  *time.Timer
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Listen == (speech.Params{}) {
		cfg.Listen = speech.Params{
			Calibration: time.Second,
			Timeout:     8 * time.Second,
			PhraseLimit: 15 * time.Second,
		}
	}
	if len(cfg.ExitWords) == 0 {
		cfg.ExitWords = []string{"exit", "quit", "stop"}
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = 4
	}
	if strings.TrimSpace(cfg.Farewell) == "" {
		cfg.Farewell = FarewellText
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	if deps.History == nil {
		deps.History = conversation.NewHistory()
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		cfg:       cfg,
		logger:    deps.Logger,
		listener:  deps.Listener,
		frames:    deps.Frames,
		infer:     deps.Inference,
		speech:    deps.Speech,
		history:   deps.History,
		observer:  deps.Observer,
		indicator: deps.Indicator,
		state:     fsm.StateIdle,
		requests:  make(chan Request, 1),
	}
}

// State returns the current FSM state snapshot.
func (p *Pipeline) State() fsm.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Busy reports whether a request is pending or in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// History exposes the conversation for read-only consumers.
func (p *Pipeline) History() *conversation.History {
	return p.history
}

func (p *Pipeline) transition(event fsm.Event) error {
	p.mu.Lock()
	next, err := fsm.Transition(p.state, event)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.state = next
	p.mu.Unlock()

	p.observer.StateChanged(next)
	return nil
}

// Greet shows the startup banner and speaks the ready message.
func (p *Pipeline) Greet() {
	p.emit(Line{Kind: LineNotice, Text: Banner})
	p.say("", Greeting, nil)
}

// Trigger admits one request when idle. A trigger while busy is rejected with
// ErrBusy and a displayed notice; history is untouched.
func (p *Pipeline) Trigger(source string) (Request, error) {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if p.closed || p.State() == fsm.StateShuttingDown {
		return Request{}, ErrClosed
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.emit(Line{Kind: LineNotice, Text: BusyNotice})
		return Request{}, ErrBusy
	}

	req := Request{ID: uuid.NewString(), Source: source, At: time.Now()}
	p.observer.Accepted(req)
	select {
	case p.requests <- req:
	default:
		// Unreachable while busy gates admission; keep the invariant explicit.
		p.busy.Store(false)
		p.observer.StateChanged(p.State())
		return Request{}, ErrBusy
	}
	p.logger.Info("request accepted", "request_id", req.ID, "source", source)
	return req, nil
}

// Run drains requests until ctx is cancelled or the pipeline shuts down.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-p.requests:
			if !ok {
				return nil
			}
			if exiting := p.runSafely(ctx, req); exiting {
				return nil
			}
			p.busy.Store(false)
		}
	}
}

// Close stops admitting requests and cancels a pending exit timer.
func (p *Pipeline) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.requests)
	if p.exitTmr != nil {
		p.exitTmr.Stop()
	}
}

// runSafely keeps a panicking task from killing the worker.
func (p *Pipeline) runSafely(ctx context.Context, req Request) (exiting bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("request panicked", "request_id", req.ID, "panic", fmt.Sprint(r))
			p.emit(Line{Kind: LineError, Text: fmt.Sprintf("Internal error: %v", r), RequestID: req.ID})
			p.toErrorAndReset()
			exiting = false
		}
	}()
	return p.handle(ctx, req)
}

func (p *Pipeline) handle(ctx context.Context, req Request) bool {
	started := time.Now()
	log := p.logger.With("request_id", req.ID)

	if err := p.transition(fsm.EventTrigger); err != nil {
		log.Error("trigger rejected by state machine", "error", err.Error())
		p.toErrorAndReset()
		return false
	}
	p.indicator.ShowListening(ctx)

	text, err := speech.ListenWithRetry(ctx, p.listener, p.cfg.Listen, p.cfg.Attempts, log)
	if err != nil {
		log.Warn("recognition failed", "error", err.Error())
		_ = p.transition(fsm.EventFail)
		p.emit(Line{Kind: LineError, Text: speech.TerminalMessage, RequestID: req.ID})
		p.indicator.ShowError(ctx, "Could not recognize speech")
		_ = p.transition(fsm.EventReset)
		return false
	}
	p.indicator.CueHeard(ctx)

	entry := p.history.Append(conversation.RoleUser, text)
	p.emit(Line{Kind: LineUser, Text: entry.Line(), RequestID: req.ID})
	_ = p.transition(fsm.EventHeard)

	if p.isExitWord(text) {
		p.farewell(ctx, req)
		return true
	}

	p.indicator.ShowThinking(ctx)
	answer, withImage, err := p.ask(ctx, req, text)
	if err != nil {
		log.Error("inference failed", "error", err.Error(), "image", withImage)
		_ = p.transition(fsm.EventFail)
		p.emit(Line{Kind: LineError, Text: errorReplyPrefix + err.Error(), RequestID: req.ID})
		p.indicator.ShowError(ctx, Apology)
		_ = p.transition(fsm.EventApologize)
		p.say(req.ID, Apology, nil)
		_ = p.transition(fsm.EventDispatched)
		return false
	}

	reply := p.history.Append(conversation.RoleAssistant, answer)
	p.emit(Line{Kind: LineAssistant, Text: reply.Line(), RequestID: req.ID})
	_ = p.transition(fsm.EventAnswered)
	p.indicator.ShowSpeaking(ctx)
	queued := p.say(req.ID, answer, p.hideWhenIdle)
	_ = p.transition(fsm.EventDispatched)
	if !queued {
		p.indicator.Hide(ctx)
	}

	log.Info("request finished", "image", withImage, "duration_ms", time.Since(started).Milliseconds())
	return false
}

// ask takes the frame once; the same snapshot feeds the transcript thumbnail
// and the model call.
func (p *Pipeline) ask(ctx context.Context, req Request, question string) (string, bool, error) {
	if p.infer == nil {
		return "", false, fmt.Errorf("%w: no inference client configured", inference.ErrInference)
	}

	transcript := p.history.Transcript()

	var snap *capture.Snapshot
	if p.frames != nil {
		if s, ok := p.frames.CurrentFrame(); ok {
			snap = s
		}
	}

	if snap == nil {
		prompt := inference.BuildPrompt(transcript, question, false, p.cfg.MaxSentences)
		answer, err := p.infer.Infer(ctx, prompt)
		return answer, false, err
	}

	p.emit(Line{Kind: LineImage, Text: ImageCaptured, Thumbnail: snap.Thumbnail(), RequestID: req.ID})
	prompt := inference.BuildPrompt(transcript, question, true, p.cfg.MaxSentences)
	answer, err := p.infer.InferImage(ctx, prompt, snap.JPEG())
	return answer, true, err
}

func (p *Pipeline) farewell(ctx context.Context, req Request) {
	p.logger.Info("exit word received", "request_id", req.ID)
	p.emit(Line{Kind: LineAssistant, Text: "AI: " + p.cfg.Farewell, RequestID: req.ID})
	_ = p.transition(fsm.EventFarewell)
	p.indicator.ShowSpeaking(ctx)
	p.say(req.ID, strings.TrimSuffix(p.cfg.Farewell, "."), nil)
	_ = p.transition(fsm.EventShutdown)

	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed || p.cfg.OnExit == nil {
		return
	}
	p.exitOnce.Do(func() {
		p.exitTmr = time.AfterFunc(p.cfg.Grace, p.cfg.OnExit)
	})
}

// say dispatches speech; playback failures come back as transcript notices.
// after, when set, runs once playback has finished either way. It reports
// whether the utterance was queued; after never runs when it was not.
func (p *Pipeline) say(requestID, text string, after func()) bool {
	if p.speech == nil {
		return false
	}
	queued := p.speech.Dispatch(text, func(err error) {
		if after != nil {
			defer after()
		}
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		p.emit(Line{Kind: LineError, Text: speechErrorPrefix + err.Error(), RequestID: requestID})
	})
	if !queued {
		p.logger.Warn("speech dropped", "request_id", requestID)
		p.emit(Line{Kind: LineError, Text: speechErrorPrefix + ErrSpeechDropped.Error(), RequestID: requestID})
	}
	return queued
}

// hideWhenIdle clears the speaking indicator unless a newer request owns it.
func (p *Pipeline) hideWhenIdle() {
	if p.busy.Load() || p.State() != fsm.StateIdle {
		return
	}
	p.indicator.Hide(context.Background())
}

// isExitWord matches the whole utterance, ignoring case and the trailing
// punctuation transcribers tend to add.
func (p *Pipeline) isExitWord(text string) bool {
	text = strings.TrimRight(strings.TrimSpace(text), ".!?,;")
	for _, w := range p.cfg.ExitWords {
		if strings.EqualFold(text, w) {
			return true
		}
	}
	return false
}

func (p *Pipeline) emit(line Line) {
	if line.At.IsZero() {
		line.At = time.Now()
	}
	p.observer.Appended(line)
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (p *Pipeline) toErrorAndReset() {
	_ = p.transition(fsm.EventFail)
	_ = p.transition(fsm.EventReset)
}
