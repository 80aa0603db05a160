package speech

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"github.com/rbright/glimpse/internal/audio"
	"github.com/rbright/glimpse/internal/audioconv"
)

// OpenAITranscriber uploads each phrase as WAV to the transcription endpoint.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(client openai.Client, model, language string) *OpenAITranscriber {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAITranscriber{client: client, model: model, language: language}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}
	wav, err := audioconv.EncodeWAV(pcm, audio.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "phrase.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" && t.language != "auto" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}
