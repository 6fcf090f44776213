package translator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const deepseekTimeout = 30 * time.Second

// DeepSeek talks to an OpenAI-compatible chat completions endpoint.
type DeepSeek struct {
	client *openai.Client
	model  openai.ChatModel
}

func NewDeepSeek(apiKey, baseURL, model string) *DeepSeek {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(deepseekTimeout),
		option.WithMaxRetries(0),
	)
	return &DeepSeek{client: &client, model: openai.ChatModel(model)}
}

func (d *DeepSeek) Name() string { return "DeepSeek" }

func (d *DeepSeek) Complete(ctx context.Context, text string) (string, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: d.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPromptPrefix + text),
		},
		Temperature: openai.Float(0.2),
		TopP:        openai.Float(0.3),
		MaxTokens:   openai.Int(8000),
	})
	if err != nil {
		return "", fmt.Errorf("deepseek API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from deepseek")
	}
	slog.Debug("DeepSeek usage", "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
