package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/jfreymuth/pulse"

	"github.com/rbright/glimpse/internal/audioconv"
)

// Player plays mono PCM to completion or until ctx is cancelled.
type Player interface {
	Play(ctx context.Context, pcm audioconv.PCM) error
}

// PulsePlayer opens one Pulse playback stream per utterance.
type PulsePlayer struct{}

func (PulsePlayer) Play(ctx context.Context, pcm audioconv.PCM) error {
	if len(pcm.Samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("glimpse"),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Float32Reader(func(buf []float32) (int, error) {
		if ctx.Err() != nil || cursor >= len(pcm.Samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, pcm.Samples[cursor:])
		cursor += n
		if cursor >= len(pcm.Samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(pcm.Rate),
		pulse.PlaybackMediaName("glimpse reply"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play reply stream: %w", err)
	}
	return ctx.Err()
}

// BeepPlayer plays through the faiface/beep speaker. The speaker is
// initialized on first use at that utterance's rate and resampled afterwards.
type BeepPlayer struct {
	once sync.Once
	rate beep.SampleRate
	err  error
}

func (b *BeepPlayer) init(rate int) error {
	b.once.Do(func() {
		b.rate = beep.SampleRate(rate)
		b.err = speaker.Init(b.rate, b.rate.N(time.Second/10))
	})
	return b.err
}

func (b *BeepPlayer) Play(ctx context.Context, pcm audioconv.PCM) error {
	if len(pcm.Samples) == 0 {
		return nil
	}
	if err := b.init(pcm.Rate); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	var streamer beep.Streamer = samplesStreamer(pcm.Samples)
	if src := beep.SampleRate(pcm.Rate); src != b.rate {
		streamer = beep.Resample(4, src, b.rate, streamer)
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamer, beep.Callback(func() { close(done) }))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

// samplesStreamer feeds mono samples to both stereo channels.
func samplesStreamer(samples []float32) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := 0
		for n < len(out) && pos < len(samples) {
			v := float64(samples[pos])
			out[n][0], out[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})
}
