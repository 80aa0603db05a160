package inference

import (
	"context"
	"encoding/base64"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openaiChat struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func newOpenAI(cfg Config) *openaiChat {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiChat{client: client, model: cfg.Model, maxTokens: int64(cfg.MaxTokens)}
}

func (o *openaiChat) Infer(ctx context.Context, prompt string) (string, error) {
	return o.complete(ctx, openai.UserMessage(prompt))
}

func (o *openaiChat) InferImage(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	return o.complete(ctx, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
	}))
}

func (o *openaiChat) complete(ctx context.Context, msg openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{msg},
		Model:               openai.ChatModel(o.model),
		MaxCompletionTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return "", wrap(ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", emptyAnswer(ProviderOpenAI)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", emptyAnswer(ProviderOpenAI)
	}
	return text, nil
}
