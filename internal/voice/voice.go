// Package voice speaks assistant replies without blocking the request pipeline.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrSynthesis wraps every speech output failure.
var ErrSynthesis = errors.New("speech synthesis failed")

// Speaker renders text as audible speech and returns when playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Silent discards speech; used when voice output is disabled.
type Silent struct{}

func (Silent) Speak(context.Context, string) error { return nil }

// Dispatcher runs Speak calls in detached goroutines. Utterances play one at a
// time in dispatch order; Dispatch itself never blocks on playback.
type Dispatcher struct {
	speaker Speaker
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   chan job
	wg      sync.WaitGroup
	stopped bool
}

type job struct {
	text   string
	onDone func(error)
}

func NewDispatcher(speaker Speaker, logger *slog.Logger) *Dispatcher {
	if speaker == nil {
		speaker = Silent{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		speaker: speaker,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan job, 16),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Dispatch queues text and returns immediately. onDone, when non-nil, is called
// from the playback goroutine with nil or an ErrSynthesis-wrapped error. It
// reports false when the dispatcher is stopped or its queue is full.
func (d *Dispatcher) Dispatch(text string, onDone func(error)) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- job{text: text, onDone: onDone}:
		return true
	default:
		d.logger.Warn("speech queue full, dropping utterance", "text", text)
		return false
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for j := range d.queue {
		if d.ctx.Err() != nil {
			continue
		}
		err := d.speak(j.text)
		if err != nil {
			d.logger.Error("speech failed", "error", err.Error())
		}
		d.notify(j.onDone, err)
	}
}

// notify runs a completion callback; a panicking callback must not stop playback.
func (d *Dispatcher) notify(onDone func(error), err error) {
	if onDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("speech callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	onDone(err)
}

func (d *Dispatcher) speak(text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrSynthesis, r)
		}
	}()
	if err := d.speaker.Speak(d.ctx, text); err != nil {
		if errors.Is(err, ErrSynthesis) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return nil
}

// Stop cancels current playback, drops queued utterances, and waits for the
// playback goroutine to exit. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancel()
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
