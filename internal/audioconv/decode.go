// Package audioconv decodes wav/mp3/ogg audio into mono float32 PCM and encodes WAV.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// ErrUnsupported reports a container or codec this package cannot decode.
var ErrUnsupported = errors.New("unsupported audio format")

// PCM is mono float32 audio in [-1, 1].
type PCM struct {
	Samples []float32
	Rate    int
}

// DecodeFile decodes path and resamples it to rate. rate <= 0 keeps the source rate.
func DecodeFile(path string, rate int) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()
	return Decode(f, strings.ToLower(filepath.Ext(path)), rate)
}

// Decode picks a decoder from ext (".wav", ".mp3", ".ogg", ".oga", ".opus") or,
// when ext is unknown, from the stream's magic bytes.
func Decode(r io.ReadSeeker, ext string, rate int) (PCM, error) {
	var (
		pcm PCM
		err error
	)
	switch ext {
	case ".wav":
		pcm, err = decodeWAV(r)
	case ".mp3":
		pcm, err = decodeMP3(r)
	case ".ogg", ".oga", ".opus":
		pcm, err = decodeOgg(r)
	default:
		pcm, err = sniff(r)
	}
	if err != nil {
		return PCM{}, err
	}
	if rate > 0 && pcm.Rate != rate {
		pcm.Samples = Resample(pcm.Samples, pcm.Rate, rate)
		pcm.Rate = rate
	}
	return pcm, nil
}

func sniff(r io.ReadSeeker) (PCM, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return PCM{}, err
	}
	switch {
	case string(magic) == "RIFF":
		return decodeWAV(r)
	case string(magic) == "OggS":
		return decodeOgg(r)
	case len(magic) >= 3 && (string(magic[:3]) == "ID3" || (magic[0] == 0xff && magic[1]&0xe0 == 0xe0)):
		return decodeMP3(r)
	default:
		return PCM{}, ErrUnsupported
	}
}

func decodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return PCM{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intsToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return PCM{Samples: Downmix(x, ch), Rate: sr}, nil
}

func decodeMP3(r io.Reader) (PCM, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return PCM{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return PCM{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always emits interleaved stereo.
	return PCM{Samples: Downmix(int16sToFloat32(ints), 2), Rate: sr}, nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker) (PCM, error) {
	pcm, verr := decodeVorbis(r)
	if verr == nil {
		return pcm, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return PCM{}, err
	}
	pcm, oerr := decodeOpus(r)
	if oerr != nil {
		return PCM{}, fmt.Errorf("%w: ogg is neither vorbis (%v) nor opus (%v)", ErrUnsupported, verr, oerr)
	}
	return pcm, nil
}

func decodeVorbis(r io.Reader) (PCM, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return PCM{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return PCM{}, errors.New("invalid ogg/vorbis stream")
	}
	return PCM{Samples: Downmix(data, format.Channels), Rate: format.SampleRate}, nil
}

func decodeOpus(r io.ReadSeeker) (PCM, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)

	var (
		out []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, err
		}
	}
	// libopus always decodes at 48 kHz here.
	return PCM{Samples: Downmix(out, ch), Rate: 48000}, nil
}
