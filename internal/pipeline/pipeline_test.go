package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/glimpse/internal/capture"
	"github.com/rbright/glimpse/internal/conversation"
	"github.com/rbright/glimpse/internal/fsm"
	"github.com/rbright/glimpse/internal/inference"
	"github.com/rbright/glimpse/internal/speech"
)

type fakeListener struct {
	mu      sync.Mutex
	results []listenResult
	calls   atomic.Int32
	gate    chan struct{}
}

type listenResult struct {
	text string
	err  error
}

func (f *fakeListener) Recognize(ctx context.Context, _ speech.Params) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return "", speech.ErrNoSpeech
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.text, r.err
}

func heard(texts ...string) *fakeListener {
	l := &fakeListener{}
	for _, t := range texts {
		l.results = append(l.results, listenResult{text: t})
	}
	return l
}

type fakeFrames struct {
	snap *capture.Snapshot
}

// switchableFrames models a camera that can disappear between requests.
type switchableFrames struct {
	snap atomic.Pointer[capture.Snapshot]
}

func (f *switchableFrames) CurrentFrame() (*capture.Snapshot, bool) {
	s := f.snap.Load()
	if s == nil {
		return nil, false
	}
	return s.Clone(), true
}

func (f fakeFrames) CurrentFrame() (*capture.Snapshot, bool) {
	if f.snap == nil {
		return nil, false
	}
	return f.snap.Clone(), true
}

type inferCall struct {
	prompt string
	jpeg   []byte
}

type fakeInference struct {
	mu     sync.Mutex
	text   []inferCall
	image  []inferCall
	answer string
	err    error
}

func (f *fakeInference) Infer(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, inferCall{prompt: prompt})
	return f.answer, f.err
}

func (f *fakeInference) InferImage(_ context.Context, prompt string, jpeg []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = append(f.image, inferCall{prompt: prompt, jpeg: jpeg})
	return f.answer, f.err
}

func (f *fakeInference) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.text), len(f.image)
}

type fakeSpeech struct {
	mu     sync.Mutex
	spoken []string
	fail   error
	full   atomic.Bool
}

func (f *fakeSpeech) Dispatch(text string, onDone func(error)) bool {
	if f.full.Load() {
		return false
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	if onDone != nil {
		go onDone(f.fail)
	}
	return true
}

func (f *fakeSpeech) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type recordingObserver struct {
	mu       sync.Mutex
	lines    []Line
	states   []fsm.State
	accepted []string
}

func (r *recordingObserver) Accepted(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, req.ID)
}

func (r *recordingObserver) StateChanged(s fsm.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) Appended(l Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, l)
}

func (r *recordingObserver) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	for i, l := range r.lines {
		out[i] = l.Text
	}
	return out
}

func (r *recordingObserver) byKind(kind LineKind) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Line
	for _, l := range r.lines {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

type harness struct {
	p        *Pipeline
	listener *fakeListener
	infer    *fakeInference
	speech   *fakeSpeech
	observer *recordingObserver
	exits    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHarness(t *testing.T, listener *fakeListener, frames Frames) *harness {
	t.Helper()
	h := &harness{
		listener: listener,
		infer:    &fakeInference{answer: "It is a coffee mug."},
		speech:   &fakeSpeech{},
		observer: &recordingObserver{},
		done:     make(chan struct{}),
	}
	h.p = New(Config{
		Grace:  10 * time.Millisecond,
		OnExit: func() { h.exits.Add(1) },
	}, Deps{
		Listener:  listener,
		Frames:    frames,
		Inference: h.infer,
		Speech:    h.speech,
		Observer:  h.observer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !p.Busy() && p.State() == fsm.StateIdle
	}, 2*time.Second, 2*time.Millisecond)
}

func testSnapshot(t *testing.T) *capture.Snapshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	snap, err := capture.NewSnapshot(1, img, 16)
	require.NoError(t, err)
	return snap
}

func TestTextOnlyRequestWhenNoFrame(t *testing.T) {
	h := newHarness(t, heard("what is the capital of France"), nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	text, img := h.infer.counts()
	require.Equal(t, 1, text)
	require.Zero(t, img)
	require.Equal(t, "You: what is the capital of France\nAI: It is a coffee mug.", h.p.History().Transcript())
	require.Equal(t, []string{"It is a coffee mug."}, h.speech.said())
	require.Empty(t, h.observer.byKind(LineImage))
}

func TestImageRequestUsesSameSnapshotAsThumbnail(t *testing.T) {
	snap := testSnapshot(t)
	h := newHarness(t, heard("what is this"), fakeFrames{snap: snap})

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	text, img := h.infer.counts()
	require.Zero(t, text)
	require.Equal(t, 1, img)
	require.Equal(t, snap.JPEG(), h.infer.image[0].jpeg)
	require.Contains(t, h.infer.image[0].prompt, "Context of question: what is this. Analyze the current scene.")

	images := h.observer.byKind(LineImage)
	require.Len(t, images, 1)
	require.Equal(t, ImageCaptured, images[0].Text)
	require.Equal(t, snap.Thumbnail(), images[0].Thumbnail)
}

func TestInferenceContextIsWholeHistoryInOrder(t *testing.T) {
	h := newHarness(t, heard("first question", "second question"), nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)
	_, err = h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	h.infer.mu.Lock()
	defer h.infer.mu.Unlock()
	require.Len(t, h.infer.text, 2)
	require.Contains(t, h.infer.text[1].prompt,
		"You: first question\nAI: It is a coffee mug.\nYou: second question")
	require.Equal(t, 4, h.p.History().Len())
}

func TestTriggerWhileBusyIsRejected(t *testing.T) {
	listener := heard("slow question")
	listener.gate = make(chan struct{})
	h := newHarness(t, listener, nil)

	_, err := h.p.Trigger("first")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.p.State() == fsm.StateListening }, time.Second, time.Millisecond)

	_, err = h.p.Trigger("second")
	require.ErrorIs(t, err, ErrBusy)
	require.Contains(t, h.observer.texts(), BusyNotice)
	require.Zero(t, h.p.History().Len())

	close(listener.gate)
	waitIdle(t, h.p)
	require.Equal(t, int32(1), listener.calls.Load())
	require.Equal(t, 2, h.p.History().Len())
}

func TestRecognitionRetriesThenShowsTerminalMessage(t *testing.T) {
	listener := &fakeListener{}
	h := newHarness(t, listener, nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	require.Equal(t, int32(3), listener.calls.Load())
	errs := h.observer.byKind(LineError)
	require.Len(t, errs, 1)
	require.Equal(t, "Error: Could not recognize speech after multiple attempts.", errs[0].Text)
	require.Zero(t, h.p.History().Len())
	text, img := h.infer.counts()
	require.Zero(t, text+img)
}

func TestRecognitionSucceedsOnThirdAttempt(t *testing.T) {
	listener := &fakeListener{results: []listenResult{
		{err: speech.ErrNoSpeech},
		{err: speech.ErrNoSpeech},
		{text: "hello"},
	}}
	h := newHarness(t, listener, nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	require.Equal(t, int32(3), listener.calls.Load())
	require.Empty(t, h.observer.byKind(LineError))
	require.Equal(t, 2, h.p.History().Len())
}

func TestInferenceErrorApologizesWithoutAssistantEntry(t *testing.T) {
	h := newHarness(t, heard("what is this"), nil)
	h.infer.err = errors.New("quota exceeded")

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	entries := h.p.History().Entries()
	require.Len(t, entries, 1)
	require.Equal(t, conversation.RoleUser, entries[0].Role)

	errs := h.observer.byKind(LineError)
	require.Len(t, errs, 1)
	require.Equal(t, "Error generating response: quota exceeded", errs[0].Text)
	require.Equal(t, []string{Apology}, h.speech.said())

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	require.Contains(t, h.observer.states, fsm.StateError)
	require.Equal(t, fsm.StateIdle, h.observer.states[len(h.observer.states)-1])
}

func TestMissingInferenceClientIsInferenceError(t *testing.T) {
	p := New(Config{}, Deps{Listener: heard("hi")})
	_, _, err := p.ask(context.Background(), Request{}, "hi")
	require.ErrorIs(t, err, inference.ErrInference)
}

func TestExitWordsAreExactCaseInsensitive(t *testing.T) {
	tests := []struct {
		text string
		exit bool
	}{
		{"STOP", true},
		{"Quit", true},
		{" exit ", true},
		{"Stop.", true},
		{"please stop the music", false},
		{"exiting", false},
	}
	p := New(Config{}, Deps{})
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			require.Equal(t, tc.exit, p.isExitWord(tc.text))
		})
	}
}

func TestExitWordSaysFarewellAndShutsDown(t *testing.T) {
	h := newHarness(t, heard("STOP"), nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.exits.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, fsm.StateShuttingDown, h.p.State())
	require.Equal(t, []string{FarewellSpoken}, h.speech.said())
	require.Contains(t, h.observer.texts(), "AI: Goodbye! Shutting down system.")
	text, img := h.infer.counts()
	require.Zero(t, text+img)

	_, err = h.p.Trigger("late")
	require.ErrorIs(t, err, ErrClosed)
	<-h.done
}

func TestNonExitPhraseContainingStopGoesToInference(t *testing.T) {
	h := newHarness(t, heard("please stop the music"), nil)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	text, _ := h.infer.counts()
	require.Equal(t, 1, text)
	require.Zero(t, h.exits.Load())
}

func TestSpeechFailureIsAppendedToTranscript(t *testing.T) {
	h := newHarness(t, heard("hi"), nil)
	h.speech.fail = errors.New("speech synthesis failed: no device")

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	require.Eventually(t, func() bool {
		for _, l := range h.observer.byKind(LineError) {
			if l.Text == "Speech error: speech synthesis failed: no device" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

type panickingListener struct{}

func (panickingListener) Recognize(context.Context, speech.Params) (string, error) {
	panic("microphone driver crashed")
}

func TestPanicInRequestReturnsToIdle(t *testing.T) {
	p := New(Config{}, Deps{Listener: panickingListener{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	_, err := p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, p)

	_, err = p.Trigger("again")
	require.NoError(t, err)
	waitIdle(t, p)
}

func TestGreetShowsBannerAndSpeaks(t *testing.T) {
	sp := &fakeSpeech{}
	obs := &recordingObserver{}
	p := New(Config{}, Deps{Speech: sp, Observer: obs})

	p.Greet()
	require.Equal(t, []string{Banner}, obs.texts())
	require.Equal(t, []string{Greeting}, sp.said())
}

func TestCloseRejectsTriggers(t *testing.T) {
	p := New(Config{}, Deps{})
	p.Close()
	p.Close()

	_, err := p.Trigger("test")
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, p.Run(context.Background()))
}

func TestStateSequenceForSuccessfulRequest(t *testing.T) {
	h := newHarness(t, heard("hi"), nil)
	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	require.Equal(t, []fsm.State{
		fsm.StateListening,
		fsm.StateInferring,
		fsm.StateSpeaking,
		fsm.StateIdle,
	}, h.observer.states)
}

func TestRequestAfterCameraLossIsTextOnly(t *testing.T) {
	frames := &switchableFrames{}
	frames.snap.Store(testSnapshot(t))
	h := newHarness(t, heard("what is this", "and now"), frames)

	_, err := h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)
	text, img := h.infer.counts()
	require.Zero(t, text)
	require.Equal(t, 1, img)

	frames.snap.Store(nil)
	_, err = h.p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, h.p)

	text, img = h.infer.counts()
	require.Equal(t, 1, text)
	require.Equal(t, 1, img)
	require.Len(t, h.observer.byKind(LineImage), 1)

	h.infer.mu.Lock()
	defer h.infer.mu.Unlock()
	require.NotContains(t, h.infer.text[0].prompt, "Analyze the current scene.")
}

func TestTriggerReportsAcceptanceBeforeWorkerStarts(t *testing.T) {
	obs := &recordingObserver{}
	p := New(Config{}, Deps{Observer: obs})

	req, err := p.Trigger("test")
	require.NoError(t, err)
	require.True(t, p.Busy())
	require.Equal(t, fsm.StateIdle, p.State())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []string{req.ID}, obs.accepted)
}

type recordingIndicator struct {
	noopIndicator
	hides atomic.Int32
}

func (r *recordingIndicator) Hide(context.Context) { r.hides.Add(1) }

func TestDroppedSpeechIsReportedAndIndicatorHidden(t *testing.T) {
	sp := &fakeSpeech{}
	sp.full.Store(true)
	obs := &recordingObserver{}
	ind := &recordingIndicator{}
	p := New(Config{}, Deps{
		Listener:  heard("hi"),
		Inference: &fakeInference{answer: "Hello."},
		Speech:    sp,
		Observer:  obs,
		Indicator: ind,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	_, err := p.Trigger("test")
	require.NoError(t, err)
	waitIdle(t, p)

	errs := obs.byKind(LineError)
	require.Len(t, errs, 1)
	require.Equal(t, "Speech error: "+ErrSpeechDropped.Error(), errs[0].Text)
	require.Equal(t, int32(1), ind.hides.Load())
	require.Equal(t, 2, p.History().Len())
}
