package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BackendFactory builds a Completer for one mode. model may be empty.
type BackendFactory func(ctx context.Context, mode Mode, model string) (Completer, error)

// Registry maps backend names ("function", "ollama", ...) to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BackendFactory)}
}

func (r *Registry) Register(name string, f BackendFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterProvider registers a factory for a plain chat Provider.
func (r *Registry) RegisterProvider(name, systemPrompt string, f func(model string) Provider) {
	r.Register(name, func(_ context.Context, _ Mode, model string) (Completer, error) {
		return ChatCompleter{Provider: f(model), SystemPrompt: systemPrompt}, nil
	})
}

func (r *Registry) Get(ctx context.Context, name string, mode Mode, model string) (Completer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend: %s", name)
	}
	return f(ctx, mode, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Binding says which backend and model serve a mode.
type Binding struct {
	Backend string
	Model   string
}

// Resolve builds one Completer per bound mode. A mode bound to an empty
// backend is left out; general must be present.
func (r *Registry) Resolve(ctx context.Context, bindings map[Mode]Binding) (map[Mode]Completer, error) {
	out := make(map[Mode]Completer, len(bindings))
	for mode, b := range bindings {
		if strings.TrimSpace(b.Backend) == "" {
			continue
		}
		c, err := r.Get(ctx, b.Backend, mode, b.Model)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
		out[mode] = c
	}
	if _, ok := out[ModeGeneral]; !ok {
		return nil, fmt.Errorf("mode %s has no backend", ModeGeneral)
	}
	return out, nil
}
