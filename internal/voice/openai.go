package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"

	"github.com/rbright/glimpse/internal/audioconv"
)

// OpenAISpeech synthesizes WAV through the speech endpoint and plays it locally.
type OpenAISpeech struct {
	client openai.Client
	model  string
	voice  string
	volume float64
	player Player
}

func NewOpenAISpeech(client openai.Client, model, voiceName string, volume float64, player Player) *OpenAISpeech {
	if model == "" {
		model = string(openai.SpeechModelTTS1)
	}
	if voiceName == "" {
		voiceName = "alloy"
	}
	if volume <= 0 {
		volume = 1
	}
	return &OpenAISpeech{client: client, model: model, voice: voiceName, volume: volume, player: player}
}

func (s *OpenAISpeech) Speak(ctx context.Context, text string) error {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return fmt.Errorf("%w: openai speech: %w", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read speech: %w", ErrSynthesis, err)
	}

	pcm, err := audioconv.Decode(bytes.NewReader(data), ".wav", 0)
	if err != nil {
		return fmt.Errorf("%w: decode speech: %w", ErrSynthesis, err)
	}
	if s.volume != 1 {
		audioconv.Gain(pcm.Samples, s.volume)
	}
	if err := s.player.Play(ctx, pcm); err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return nil
}
