package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	SampleRate     = 16000
	FrameSamples   = 320 // 20ms @ 16kHz
	chunkSizeBytes = FrameSamples * 2
)

// Capture streams fixed-size float32 frames from one selected Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []float32
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture creates and starts a 16kHz mono s16 record stream.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	c := &Capture{
		device: selected,
		client: client,
		frames: make(chan []float32, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("glimpse question"),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.stopCh:
		}
	}()

	return c, nil
}

func (c *Capture) Device() Device {
	return c.device
}

// Frames returns the PCM stream as FrameSamples-long slices.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// ReadFrame blocks for the next frame. io.EOF reports a stopped stream.
func (c *Capture) ReadFrame(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream, flushes residual PCM, and closes Frames exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) >= 2 {
		select {
		case c.frames <- PCM16ToFloat32(pending):
		default:
		}
	}

	close(c.frames)
	return nil
}

func (c *Capture) Close() error {
	return c.Stop()
}

// onPCM receives raw Pulse bytes and emits whole frames.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	var out [][]float32
	for len(c.pending) >= chunkSizeBytes {
		out = append(out, PCM16ToFloat32(c.pending[:chunkSizeBytes]))
		c.pending = c.pending[chunkSizeBytes:]
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, frame := range out {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// PulseMicrophone opens capture streams on a fixed Pulse source.
type PulseMicrophone struct {
	Device Device
}

func (m PulseMicrophone) Open(ctx context.Context) (Stream, error) {
	return StartCapture(ctx, m.Device)
}
