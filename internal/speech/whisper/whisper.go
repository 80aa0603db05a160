// Package whisper transcribes phrases locally with whisper.cpp.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Options tune decoding.
type Options struct {
	Language string
	Threads  int
	Prompt   string
}

// ErrClosed is returned by Transcribe once the model has been released.
var ErrClosed = errors.New("whisper model closed")

// Transcriber owns one loaded model. Calls are serialized; whisper contexts are not shared.
type Transcriber struct {
	mu     sync.Mutex
	model  whisper.Model
	opts   Options
	closed bool
}

func New(modelPath string, opts Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, opts: opts}, nil
}

// Close waits for an in-flight Transcribe before freeing the model.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe expects mono 16 kHz samples in [-1, 1].
func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio samples provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.model == nil {
		return "", ErrClosed
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	lang := t.opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}

	threads := t.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))
	if t.opts.Prompt != "" {
		wctx.SetInitialPrompt(t.opts.Prompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" && !isNonSpeech(text) {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// isNonSpeech filters whisper's bracketed annotations such as "[BLANK_AUDIO]" or "(music)".
func isNonSpeech(s string) bool {
	return (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
}
