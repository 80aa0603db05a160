package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/glimpse/internal/audioconv"
	"github.com/rbright/glimpse/internal/config"
)

type cueKind int

const (
	cueListen cueKind = iota + 1
	cueHeard
	cueError
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	listenCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	heardCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	errorCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

// cueSamples prefers a configured cue file and falls back to the synthesized tone.
func (h *HyprNotify) cueSamples(kind cueKind) []int16 {
	if path := h.cuePath(kind); path != "" {
		pcm, err := loadCueFile(path)
		if err == nil {
			return pcm
		}
		h.log("indicator cue file unusable; using tone", err)
	}
	return synthCue(kind)
}

func (h *HyprNotify) cuePath(kind cueKind) string {
	switch kind {
	case cueHeard:
		return config.ExpandHome(h.cfg.SoundHeardFile)
	case cueError:
		return config.ExpandHome(h.cfg.SoundErrorFile)
	default:
		return ""
	}
}

func synthCue(kind cueKind) []int16 {
	switch kind {
	case cueListen:
		return listenCuePCM
	case cueHeard:
		return heardCuePCM
	case cueError:
		return errorCuePCM
	default:
		return nil
	}
}

// loadCueFile decodes a wav/mp3/ogg cue at the cue sample rate.
func loadCueFile(path string) ([]int16, error) {
	pcm, err := audioconv.DecodeFile(path, cueSampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	out := make([]int16, len(pcm.Samples))
	for i, v := range pcm.Samples {
		out[i] = int16(math.Round(math.Max(-1, math.Min(1, float64(v))) * 32767))
	}
	return out, nil
}

func playPCM(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("glimpse"),
		pulse.ClientApplicationIconName("camera-web"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("glimpse indicator cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}

	return ctx.Err()
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += samplesForDuration(part.duration)
		if i < len(parts)-1 {
			total += gapSamples
		}
	}

	pcm := make([]int16, 0, total)
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}

	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	attackRelease := n / 10
	maxRamp := cueSampleRate / 200 // 5ms
	if attackRelease > maxRamp {
		attackRelease = maxRamp
	}
	if attackRelease < 1 {
		attackRelease = 1
	}

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < attackRelease {
			envelope = float64(i) / float64(attackRelease)
		}
		releaseIndex := n - i - 1
		if releaseIndex < attackRelease {
			release := float64(releaseIndex) / float64(attackRelease)
			if release < envelope {
				envelope = release
			}
		}
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}

	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
