// Package capture polls a camera device and publishes the latest frame.
package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync/atomic"
	"time"
)

var (
	ErrNoFrame           = errors.New("no frame available")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Device yields decoded frames on demand.
type Device interface {
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// NullDevice stands in for a missing camera. Every read reports ErrDeviceUnavailable.
type NullDevice struct{}

func (NullDevice) NextFrame(context.Context) (image.Image, error) { return nil, ErrDeviceUnavailable }
func (NullDevice) Close() error                                   { return nil }

// Options configure a Source.
type Options struct {
	Interval time.Duration
	ThumbMax int
	Logger   *slog.Logger
}

// Source refreshes the latest snapshot on a fixed tick.
type Source struct {
	device   Device
	interval time.Duration
	thumbMax int
	logger   *slog.Logger

	latest   atomic.Pointer[Snapshot]
	seq      atomic.Uint64
	failures atomic.Uint64
	done     chan struct{}
}

func NewSource(device Device, opts Options) *Source {
	if device == nil {
		device = NullDevice{}
	}
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	if opts.ThumbMax <= 0 {
		opts.ThumbMax = 300
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		device:   device,
		interval: opts.Interval,
		thumbMax: opts.ThumbMax,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
}

// Run polls the device until ctx is cancelled, then releases it. A device that
// goes away drops the current snapshot; decode failures keep it.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.done)
	defer func() {
		if err := s.device.Close(); err != nil {
			s.logger.Warn("capture device close failed", "error", err.Error())
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	unavailable := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := s.poll(ctx)
		switch {
		case err == nil:
			unavailable = false
		case errors.Is(err, ErrDeviceUnavailable):
			s.latest.Store(nil)
			if !unavailable {
				s.logger.Warn("camera unavailable, continuing without images")
				unavailable = true
			}
		default:
			if s.failures.Add(1)%100 == 1 {
				s.logger.Debug("frame decode failed", "error", err.Error())
			}
		}
	}
}

// Done is closed once Run has returned and the device is released.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// poll reads one frame and publishes it on success. Run decides what a failure clears.
func (s *Source) poll(ctx context.Context) error {
	img, err := s.device.NextFrame(ctx)
	if err != nil {
		return err
	}
	snap, err := NewSnapshot(s.seq.Add(1), img, s.thumbMax)
	if err != nil {
		return err
	}
	s.latest.Store(snap)
	return nil
}

// Latest returns the shared current snapshot without copying. Callers must not retain
// it past a render pass; use CurrentFrame for a private copy.
func (s *Source) Latest() (*Snapshot, bool) {
	snap := s.latest.Load()
	return snap, snap != nil
}

// CurrentFrame returns a private copy of the most recent frame, or false when none exists.
func (s *Source) CurrentFrame() (*Snapshot, bool) {
	snap := s.latest.Load()
	if snap == nil {
		return nil, false
	}
	return snap.Clone(), true
}
