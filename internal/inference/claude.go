package inference

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func newClaude(cfg Config) *claude {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &claude{client: client, model: cfg.Model, maxTokens: int64(cfg.MaxTokens)}
}

func (c *claude) Infer(ctx context.Context, prompt string) (string, error) {
	return c.send(ctx, anthropic.NewTextBlock(prompt))
}

func (c *claude) InferImage(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	return c.send(ctx,
		anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(jpeg)),
		anthropic.NewTextBlock(prompt),
	)
}

func (c *claude) send(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", wrap(ProviderClaude, err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", emptyAnswer(ProviderClaude)
	}
	return text, nil
}
