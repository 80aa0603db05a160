package inference

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

type gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func newGemini(ctx context.Context, cfg Config) (*gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, wrap(ProviderGemini, err)
	}
	return &gemini{
		client: client,
		model:  cfg.Model,
		config: &genai.GenerateContentConfig{MaxOutputTokens: int32(cfg.MaxTokens)},
	}, nil
}

func (g *gemini) Infer(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, genai.Text(prompt))
}

func (g *gemini) InferImage(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(jpeg, "image/jpeg"),
	}
	return g.generate(ctx, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)})
}

func (g *gemini) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", wrap(ProviderGemini, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", emptyAnswer(ProviderGemini)
	}
	return text, nil
}
