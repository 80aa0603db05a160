package speech

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/glimpse/internal/audio"
	"github.com/rbright/glimpse/internal/audioconv"
)

// TerminalMessage is shown when every listening attempt fails.
const TerminalMessage = "Error: Could not recognize speech after multiple attempts."

// Transcriber turns mono 16 kHz PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

// PhraseRecorder is the recording half of a Recognizer.
type PhraseRecorder interface {
	Record(ctx context.Context, p Params) ([]float32, error)
}

// Recognizer records one phrase and transcribes it.
type Recognizer struct {
	recorder    PhraseRecorder
	transcriber Transcriber
	logger      *slog.Logger
	// DumpDir, when set, receives a WAV of every recorded phrase.
	DumpDir string
}

func NewRecognizer(recorder PhraseRecorder, transcriber Transcriber, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{recorder: recorder, transcriber: transcriber, logger: logger}
}

// Recognize performs a single attempt.
func (r *Recognizer) Recognize(ctx context.Context, p Params) (string, error) {
	pcm, err := r.recorder.Record(ctx, p)
	if err != nil {
		return "", err
	}
	r.dump(pcm)

	text, err := r.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

func (r *Recognizer) dump(pcm []float32) {
	if r.DumpDir == "" || len(pcm) == 0 {
		return
	}
	path := filepath.Join(r.DumpDir, time.Now().Format("20060102-150405.000")+".wav")
	if err := audioconv.WriteWAVFile(path, pcm, audio.SampleRate); err != nil {
		r.logger.Warn("audio dump failed", "path", path, "error", err.Error())
		return
	}
	r.logger.Debug("audio dumped", "path", path, "samples", len(pcm))
}

// Listener is anything that can make a single recognition attempt.
type Listener interface {
	Recognize(ctx context.Context, p Params) (string, error)
}

// ListenWithRetry makes up to attempts recognition attempts and returns the
// first success. After the last failure it returns ErrRecognitionFailed wrapping
// the final cause.
func ListenWithRetry(ctx context.Context, l Listener, p Params, attempts int, logger *slog.Logger) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := l.Recognize(ctx, p)
		if err == nil {
			return text, nil
		}
		lastErr = err
		logger.Warn("recognition attempt failed", "attempt", attempt, "of", attempts, "error", err.Error())
	}
	return "", fmt.Errorf("%w: %w", ErrRecognitionFailed, lastErr)
}
