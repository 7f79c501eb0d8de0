package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/config"
)

// newRegistry registers every backend kind the config can name.
func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("function", func(_ context.Context, mode ai.Mode, _ string) (ai.Completer, error) {
		url := cfg.FunctionURLs[mode]
		if url == "" {
			return nil, fmt.Errorf("FUNCTION_%s_URL is not set", envInfix(mode))
		}
		return ai.NewFunctionProvider(url, cfg.FunctionAPIKey, mode.Metered()), nil
	})

	reg.RegisterProvider("ollama", cfg.SystemPrompt, func(model string) ai.Provider {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m)
	})

	reg.Register("openrouter", func(_ context.Context, mode ai.Mode, model string) (ai.Completer, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		p := ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
		p.Online = mode == ai.ModeLiveSearch
		return ai.ChatCompleter{Provider: p, SystemPrompt: cfg.SystemPrompt}, nil
	})

	reg.RegisterProvider("openai", cfg.SystemPrompt, func(model string) ai.Provider {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m)
	})

	return reg
}

func envInfix(mode ai.Mode) string {
	switch mode {
	case ai.ModeLiveSearch:
		return "LIVE_SEARCH"
	case ai.ModeSecondaryAI:
		return "SECONDARY_AI"
	}
	return "GENERAL"
}
