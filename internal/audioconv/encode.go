package audioconv

import (
	"errors"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV renders mono samples as 16-bit PCM WAV.
func EncodeWAV(samples []float32, rate int) ([]byte, error) {
	ws := &writeSeeker{}
	if err := writeWAV(ws, samples, rate); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteWAVFile writes samples to path with 0600 permissions.
func WriteWAVFile(path string, samples []float32, rate int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := writeWAV(f, samples, rate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeWAV(w io.WriteSeeker, samples []float32, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(clamp(float64(s), -1, 1) * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
