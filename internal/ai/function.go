package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FunctionProvider calls a serverless chat function that takes
// {message, context[, mode]} and answers {response}.
type FunctionProvider struct {
	URL string
	// APIKey is used when the request carries no caller token.
	APIKey string
	// SendMode adds the mode field; metered functions need it to pick a backend.
	SendMode bool
	Client   *http.Client
}

type functionReq struct {
	Message string `json:"message"`
	Context string `json:"context"`
	Mode    string `json:"mode,omitempty"`
}

type functionResp struct {
	Response *string `json:"response"`
	Error    string  `json:"error,omitempty"`
}

func NewFunctionProvider(url, apiKey string, sendMode bool) *FunctionProvider {
	return &FunctionProvider{
		URL:      url,
		APIKey:   apiKey,
		SendMode: sendMode,
		Client:   &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *FunctionProvider) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(p.URL) == "" {
		return "", errors.New("function: url is required")
	}

	body := functionReq{Message: req.Message, Context: req.Context}
	if p.SendMode {
		body.Mode = string(req.Mode)
	}
	token := req.Token
	if token == "" {
		token = p.APIKey
	}

	var decoded functionResp
	if err := postJSON(ctx, p.Client, "function", p.URL,
		map[string]string{"Authorization": bearer(token)}, body, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("function: %s", decoded.Error)
	}
	if decoded.Response == nil {
		return "", errors.New("function: response field missing")
	}
	return *decoded.Response, nil
}
