package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama server's /api/chat without streaming.
type OllamaProvider struct {
	BaseURL string
	Model   string
	// KeepAlive is how long Ollama keeps the model loaded after a call ("5m", "-1").
	KeepAlive   string
	Temperature *float64
	Client      *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaReq struct {
	Model     string         `json:"model"`
	Messages  []wireMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   *ollamaOptions `json:"options,omitempty"`
}

type ollamaResp struct {
	Message    wireMessage `json:"message"`
	DoneReason string      `json:"done_reason,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	in := ollamaReq{
		Model:     p.Model,
		Messages:  toWire(messages),
		KeepAlive: p.KeepAlive,
	}
	if p.Temperature != nil {
		in.Options = &ollamaOptions{Temperature: p.Temperature}
	}

	var out ollamaResp
	if err := postJSON(ctx, p.Client, "ollama", p.BaseURL+"/api/chat", nil, in, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New("ollama: " + out.Error)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", errors.New("ollama: empty reply")
	}
	return out.Message.Content, nil
}
