package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const onlineSuffix = ":online"

// OpenRouterProvider calls OpenRouter's chat completions API. With Online set
// the model gets the ":online" suffix, which turns on OpenRouter's web search
// plugin; live-search mode uses that.
type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Online  bool
	// SiteURL and AppName are sent as HTTP-Referer and X-Title for
	// OpenRouter's app attribution; both are optional.
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterReq struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type openRouterResp struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenRouterProvider) model() string {
	m := strings.TrimSpace(p.Model)
	if p.Online && m != "" && !strings.HasSuffix(m, onlineSuffix) {
		m += onlineSuffix
	}
	return m
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openrouter: api key is required")
	}
	model := p.model()
	if model == "" {
		return "", errors.New("openrouter: model is required")
	}

	headers := map[string]string{
		"Authorization": bearer(p.APIKey),
		"HTTP-Referer":  p.SiteURL,
		"X-Title":       p.AppName,
	}
	var out openRouterResp
	in := openRouterReq{Model: model, Messages: toWire(messages)}
	if err := postJSON(ctx, p.Client, "openrouter", p.BaseURL+"/chat/completions", headers, in, &out); err != nil {
		return "", err
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", errors.New("openrouter: " + out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return out.Choices[0].Message.Content, nil
}
