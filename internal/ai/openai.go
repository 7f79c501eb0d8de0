package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	Client openai.Client
	Model  string
}

func NewOpenAIProvider(baseURL, apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		Client: openai.NewClient(append(base, opts...)...),
		Model:  model,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	history := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			history = append(history, openai.SystemMessage(m.Content))
		case "assistant":
			history = append(history, openai.AssistantMessage(m.Content))
		default:
			history = append(history, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.Model,
		Messages: history,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response from model")
	}
	return resp.Choices[0].Message.Content, nil
}
