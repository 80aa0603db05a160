// Package speech records one spoken phrase and turns it into text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/glimpse/internal/audio"
)

var (
	// ErrNoSpeech covers both "nobody spoke before the timeout" and "nothing intelligible".
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrRecognitionFailed is returned once every attempt has failed.
	ErrRecognitionFailed = errors.New("could not recognize speech after multiple attempts")
)

const frameDuration = time.Second * audio.FrameSamples / audio.SampleRate

// Params bound one listening attempt.
type Params struct {
	Calibration time.Duration
	Timeout     time.Duration
	PhraseLimit time.Duration
}

// RecorderOptions tune voice activity detection.
type RecorderOptions struct {
	// EnergyThreshold is the minimum RMS treated as speech.
	EnergyThreshold float64
	// AmbientRatio scales the calibrated noise floor into the speech threshold.
	AmbientRatio float64
	// Pause is the trailing silence that ends a phrase.
	Pause  time.Duration
	Logger *slog.Logger
}

// Recorder captures a single phrase from a microphone.
type Recorder struct {
	mic  audio.Microphone
	opts RecorderOptions
}

func NewRecorder(mic audio.Microphone, opts RecorderOptions) *Recorder {
	if opts.EnergyThreshold <= 0 {
		opts.EnergyThreshold = 0.015
	}
	if opts.AmbientRatio <= 0 {
		opts.AmbientRatio = 1.5
	}
	if opts.Pause <= 0 {
		opts.Pause = 800 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{mic: mic, opts: opts}
}

// Record calibrates against ambient noise, waits up to p.Timeout for speech to
// start, then records until a pause or p.PhraseLimit. Durations are measured in
// captured audio, not wall time.
func (r *Recorder) Record(ctx context.Context, p Params) ([]float32, error) {
	stream, err := r.mic.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	defer stream.Close()

	threshold, err := r.calibrate(ctx, stream, p.Calibration)
	if err != nil {
		return nil, err
	}

	waitFrames := frames(p.Timeout)
	limitFrames := frames(p.PhraseLimit)
	pauseFrames := frames(r.opts.Pause)

	var (
		out      []float32
		started  bool
		waited   int
		recorded int
		silent   int
	)
	for {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if started && len(out) > 0 {
				return out, nil
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}

		voiced := audio.FrameRMS(frame) > threshold
		if !started {
			if !voiced {
				waited++
				if waitFrames > 0 && waited >= waitFrames {
					return nil, fmt.Errorf("%w: listening timed out", ErrNoSpeech)
				}
				continue
			}
			started = true
		}

		out = append(out, frame...)
		recorded++
		if voiced {
			silent = 0
		} else {
			silent++
		}

		if silent >= pauseFrames || (limitFrames > 0 && recorded >= limitFrames) {
			return out, nil
		}
	}
}

// calibrate returns the speech threshold for the current noise floor.
func (r *Recorder) calibrate(ctx context.Context, stream audio.Stream, d time.Duration) (float64, error) {
	n := frames(d)
	if n == 0 {
		return r.opts.EnergyThreshold, nil
	}

	var sum float64
	for i := 0; i < n; i++ {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			return 0, fmt.Errorf("calibrate: %w", err)
		}
		sum += audio.FrameRMS(frame)
	}
	ambient := sum / float64(n)
	threshold := max(r.opts.EnergyThreshold, ambient*r.opts.AmbientRatio)
	r.opts.Logger.Debug("ambient noise calibrated", "ambient_rms", ambient, "threshold", threshold)
	return threshold, nil
}

func frames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + frameDuration - 1) / frameDuration)
}
