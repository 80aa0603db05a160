// Package gstcam reads camera frames through a GStreamer appsink pipeline.
package gstcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/rbright/glimpse/internal/capture"
)

// Config selects the V4L2 device and output geometry.
type Config struct {
	Device string
	Width  int
	Height int
	Logger *slog.Logger
}

type frame struct {
	data []byte
	at   time.Time
}

// Camera is a capture.Device backed by v4l2src.
type Camera struct {
	cfg      Config
	logger   *slog.Logger
	pipeline *gst.Pipeline
	sink     *app.Sink

	mu     sync.Mutex
	latest *frame
	err    error

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open builds and starts the pipeline:
//
//	v4l2src ! videoconvert ! videoscale ! capsfilter(RGB) ! appsink
//
// Any failure is reported as capture.ErrDeviceUnavailable.
func Open(cfg Config) (*Camera, error) {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	gst.Init(nil)

	pipeline, sink, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	c := &Camera{
		cfg:      cfg,
		logger:   cfg.Logger,
		pipeline: pipeline,
		sink:     sink,
		stop:     make(chan struct{}),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start pipeline: %v", capture.ErrDeviceUnavailable, err)
	}

	c.wg.Add(1)
	go c.watchBus()

	c.logger.Info("camera pipeline started", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return c, nil
}

func build(cfg Config) (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("create v4l2src: %w", err)
	}
	if cfg.Device != "" {
		if err := src.SetProperty("device", cfg.Device); err != nil {
			return nil, nil, fmt.Errorf("set device: %w", err)
		}
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("create capsfilter: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", cfg.Width, cfg.Height)
	if err := capsfilter.SetProperty("caps", gst.NewCapsFromString(caps)); err != nil {
		return nil, nil, fmt.Errorf("set caps: %w", err)
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, nil, fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, nil, fmt.Errorf("link elements: %w", err)
	}
	return pipeline, sink, nil
}

// onSample keeps only the newest buffer; older unread frames are overwritten.
func (c *Camera) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	buffer.Unmap()

	c.mu.Lock()
	c.latest = &frame{data: copied, at: time.Now()}
	c.mu.Unlock()
	return gst.FlowOK
}

func (c *Camera) watchBus() {
	defer c.wg.Done()
	bus := c.pipeline.GetPipelineBus()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			c.fail(fmt.Errorf("end of stream"))
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			c.logger.Error("camera pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			c.fail(fmt.Errorf("pipeline error: %s", gerr.Error()))
			return
		}
	}
}

func (c *Camera) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.latest = nil
}

// NextFrame converts the newest RGB buffer into an image.
func (c *Camera) NextFrame(context.Context) (image.Image, error) {
	c.mu.Lock()
	f, err := c.latest, c.err
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	if f == nil {
		return nil, capture.ErrNoFrame
	}
	return rgbToImage(f.data, c.cfg.Width, c.cfg.Height)
}

// Close stops the pipeline and waits for the bus watcher.
func (c *Camera) Close() error {
	select {
	case <-c.stop:
		return nil
	default:
		close(c.stop)
	}
	c.wg.Wait()
	return c.pipeline.SetState(gst.StateNull)
}

// rgbToImage expands packed 24-bit RGB into RGBA. GStreamer pads rows to 4 bytes.
func rgbToImage(data []byte, width, height int) (*image.RGBA, error) {
	stride := (width*3 + 3) &^ 3
	if len(data) < stride*(height-1)+width*3 {
		return nil, fmt.Errorf("short frame: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[y*stride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			out[x*4] = row[x*3]
			out[x*4+1] = row[x*3+1]
			out[x*4+2] = row[x*3+2]
			out[x*4+3] = 0xff
		}
	}
	return img, nil
}
