package indicator

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/glimpse/internal/audioconv"
	"github.com/rbright/glimpse/internal/config"
)

func TestSynthCuesPresent(t *testing.T) {
	require.NotEmpty(t, synthCue(cueListen))
	require.NotEmpty(t, synthCue(cueHeard))
	require.NotEmpty(t, synthCue(cueError))
	require.Empty(t, synthCue(cueKind(99)))
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	want := samplesForDuration(100 * time.Millisecond)
	require.Len(t, got, want)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Greater(t, samplesForDuration(25*time.Millisecond), 0)
}

func TestCueFileIsDecodedAtCueRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heard.wav")
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	require.NoError(t, audioconv.WriteWAVFile(path, samples, 8000))

	h := NewHyprNotify(config.IndicatorConfig{SoundHeardFile: path}, nil)
	pcm := h.cueSamples(cueHeard)
	require.InDelta(t, cueSampleRate, len(pcm), 2)
}

func TestMissingCueFileFallsBackToTone(t *testing.T) {
	h := NewHyprNotify(config.IndicatorConfig{SoundErrorFile: filepath.Join(t.TempDir(), "none.wav")}, nil)
	require.Equal(t, errorCuePCM, h.cueSamples(cueError))
}

func TestPlayPCMRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := playPCM(ctx, heardCuePCM)
	require.ErrorIs(t, err, context.Canceled)
}
