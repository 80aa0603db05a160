package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Snapshot is an immutable decoded frame plus its encoded forms.
type Snapshot struct {
	ID     string
	Seq    uint64
	At     time.Time
	Width  int
	Height int

	img   *image.RGBA
	jpeg  []byte
	thumb []byte
}

// NewSnapshot copies img into a new snapshot and encodes the JPEG payloads.
// thumbMax bounds both thumbnail dimensions.
func NewSnapshot(seq uint64, img image.Image, thumbMax int) (*Snapshot, error) {
	if img == nil {
		return nil, ErrNoFrame
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrNoFrame
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	full, err := encodeJPEG(rgba)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	thumb, err := encodeJPEG(Fit(rgba, thumbMax, thumbMax))
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &Snapshot{
		ID:     uuid.NewString(),
		Seq:    seq,
		At:     time.Now(),
		Width:  rgba.Bounds().Dx(),
		Height: rgba.Bounds().Dy(),
		img:    rgba,
		jpeg:   full,
		thumb:  thumb,
	}, nil
}

// Image returns a private copy of the decoded frame.
func (s *Snapshot) Image() *image.RGBA {
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// JPEG returns a private copy of the full frame encoding.
func (s *Snapshot) JPEG() []byte {
	return bytes.Clone(s.jpeg)
}

// Thumbnail returns a private copy of the thumbnail encoding.
func (s *Snapshot) Thumbnail() []byte {
	return bytes.Clone(s.thumb)
}

// Clone returns a deep copy sharing no buffers with s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.img = s.Image()
	c.jpeg = s.JPEG()
	c.thumb = s.Thumbnail()
	return &c
}

// Preview encodes the frame scaled to fit within maxW x maxH.
func (s *Snapshot) Preview(maxW, maxH int) ([]byte, error) {
	if maxW <= 0 || maxH <= 0 || (s.Width <= maxW && s.Height <= maxH) {
		return s.JPEG(), nil
	}
	return encodeJPEG(Fit(s.img, maxW, maxH))
}

// Fit scales img down to fit within maxW x maxH keeping its aspect ratio.
// Images already inside the bound are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
