package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	frames atomic.Int32
	fail   atomic.Bool
	gone   atomic.Bool
	closed atomic.Bool
	err    error
}

func (f *fakeDevice) NextFrame(context.Context) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.gone.Load() {
		return nil, fmt.Errorf("pipeline error: %w", ErrDeviceUnavailable)
	}
	if f.fail.Load() {
		return nil, errors.New("decode failed")
	}
	n := f.frames.Add(1)
	return solid(64, 48, color.RGBA{R: uint8(n), A: 255}), nil
}

func (f *fakeDevice) Close() error {
	f.closed.Store(true)
	return nil
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestNewSnapshotEncodesFrameAndThumbnail(t *testing.T) {
	snap, err := NewSnapshot(1, solid(1280, 720, color.RGBA{G: 200, A: 255}), 300)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.Equal(t, 1280, snap.Width)
	require.Equal(t, 720, snap.Height)

	full, err := jpeg.Decode(bytes.NewReader(snap.JPEG()))
	require.NoError(t, err)
	require.Equal(t, 1280, full.Bounds().Dx())

	thumb, err := jpeg.Decode(bytes.NewReader(snap.Thumbnail()))
	require.NoError(t, err)
	require.Equal(t, 300, thumb.Bounds().Dx())
	require.Equal(t, 168, thumb.Bounds().Dy())
}

func TestNewSnapshotRejectsEmptyImage(t *testing.T) {
	_, err := NewSnapshot(1, nil, 300)
	require.ErrorIs(t, err, ErrNoFrame)

	_, err = NewSnapshot(1, image.NewRGBA(image.Rect(0, 0, 0, 0)), 300)
	require.ErrorIs(t, err, ErrNoFrame)
}

func TestSnapshotCopiesSourceImage(t *testing.T) {
	src := solid(8, 8, color.RGBA{B: 10, A: 255})
	snap, err := NewSnapshot(1, src, 300)
	require.NoError(t, err)

	src.Pix[2] = 99
	require.Equal(t, uint8(10), snap.Image().Pix[2])

	img := snap.Image()
	img.Pix[2] = 42
	require.Equal(t, uint8(10), snap.Image().Pix[2])
}

func TestCloneSharesNoBuffers(t *testing.T) {
	snap, err := NewSnapshot(3, solid(8, 8, color.RGBA{R: 1, A: 255}), 300)
	require.NoError(t, err)

	c := snap.Clone()
	require.Equal(t, snap.ID, c.ID)
	require.Equal(t, snap.JPEG(), c.JPEG())
	require.NotSame(t, &snap.jpeg[0], &c.jpeg[0])
	require.NotSame(t, &snap.img.Pix[0], &c.img.Pix[0])
}

func TestFitKeepsSmallImages(t *testing.T) {
	img := solid(100, 50, color.RGBA{A: 255})
	require.Same(t, image.Image(img), Fit(img, 640, 480))
}

func TestFitBoundsBothAxes(t *testing.T) {
	out := Fit(solid(480, 1280, color.RGBA{A: 255}), 640, 480)
	require.Equal(t, 180, out.Bounds().Dx())
	require.Equal(t, 480, out.Bounds().Dy())
}

func TestPreviewBoundsLargeFrames(t *testing.T) {
	snap, err := NewSnapshot(1, solid(1280, 960, color.RGBA{R: 9, A: 255}), 300)
	require.NoError(t, err)

	data, err := snap.Preview(640, 480)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 640, img.Bounds().Dx())
	require.Equal(t, 480, img.Bounds().Dy())

	small, err := NewSnapshot(2, solid(320, 240, color.RGBA{A: 255}), 300)
	require.NoError(t, err)
	data, err = small.Preview(640, 480)
	require.NoError(t, err)
	require.Equal(t, small.JPEG(), data)
}

func TestSourcePublishesLatestFrame(t *testing.T) {
	dev := &fakeDevice{}
	src := NewSource(dev, Options{Interval: 5 * time.Millisecond})

	_, ok := src.CurrentFrame()
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = src.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := src.CurrentFrame()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-src.Done()
	require.True(t, dev.closed.Load())
}

func TestSourceKeepsPreviousFrameOnDecodeFailure(t *testing.T) {
	dev := &fakeDevice{}
	src := NewSource(dev, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := src.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	dev.fail.Store(true)
	before, _ := src.Latest()
	time.Sleep(30 * time.Millisecond)
	after, ok := src.Latest()
	require.True(t, ok)
	require.Equal(t, before.Seq, after.Seq)
}

func TestSourceWithUnavailableDeviceStaysEmpty(t *testing.T) {
	src := NewSource(nil, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = src.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)

	_, ok := src.CurrentFrame()
	require.False(t, ok)
	cancel()
	<-src.Done()
}

func TestSourceDropsFrameWhenDeviceGoesAway(t *testing.T) {
	dev := &fakeDevice{}
	src := NewSource(dev, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := src.CurrentFrame()
		return ok
	}, time.Second, 5*time.Millisecond)

	dev.gone.Store(true)
	require.Eventually(t, func() bool {
		_, ok := src.CurrentFrame()
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, ok := src.Latest()
	require.False(t, ok)

	dev.gone.Store(false)
	require.Eventually(t, func() bool {
		_, ok := src.CurrentFrame()
		return ok
	}, time.Second, 5*time.Millisecond)
}
