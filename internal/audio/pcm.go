package audio

import (
	"context"
	"encoding/binary"
	"math"
)

// Stream yields consecutive mono 16 kHz frames.
type Stream interface {
	ReadFrame(ctx context.Context) ([]float32, error)
	Close() error
}

// Microphone opens a new Stream per listening attempt.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// PCM16ToFloat32 converts little-endian signed 16-bit samples to [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// FrameRMS is the root mean square level of one frame.
func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}
