// Package portaudio captures microphone frames through PortAudio's default input.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/rbright/glimpse/internal/audio"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init initializes the PortAudio library once per process.
func Init() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Terminate releases PortAudio. Call once at shutdown after every stream is closed.
func Terminate() {
	_ = portaudio.Terminate()
}

// Microphone opens default-input streams.
type Microphone struct{}

func (Microphone) Open(_ context.Context) (audio.Stream, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}

	buf := make([]float32, audio.FrameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open default input: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start input: %w", err)
	}
	return &Stream{stream: stream, buf: buf}, nil
}

// Stream wraps one blocking PortAudio input stream.
type Stream struct {
	stream *portaudio.Stream
	buf    []float32
	once   sync.Once
}

func (s *Stream) ReadFrame(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.stream.Stop()
		err = s.stream.Close()
	})
	return err
}
