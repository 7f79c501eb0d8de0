package ai

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the AI backend a chat session talks to.
type Mode string

const (
	ModeGeneral     Mode = "general"
	ModeLiveSearch  Mode = "liveSearch"
	ModeSecondaryAI Mode = "secondaryAI"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeGeneral, ModeLiveSearch, ModeSecondaryAI}

// Metered reports whether calls in this mode count against a quota.
func (m Mode) Metered() bool { return m != ModeGeneral }

func (m Mode) Valid() bool {
	switch m {
	case ModeGeneral, ModeLiveSearch, ModeSecondaryAI:
		return true
	}
	return false
}

// ParseMode accepts the canonical names plus snake/kebab spellings.
func ParseMode(s string) (Mode, error) {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	switch k {
	case "", "general":
		return ModeGeneral, nil
	case "livesearch":
		return ModeLiveSearch, nil
	case "secondaryai":
		return ModeSecondaryAI, nil
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

type Message struct {
	Role    string
	Content string
}

// Provider is a chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Request is one completion request as the router sees it.
type Request struct {
	Mode    Mode
	Message string
	Context string
	// Token is forwarded as the bearer credential where the backend wants one.
	Token string
}

// Completer answers a single Request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ChatCompleter turns a Provider into a Completer: the request context becomes
// the system message and the user text the single user turn.
type ChatCompleter struct {
	Provider     Provider
	SystemPrompt string
}

func (c ChatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]Message, 0, 3)
	if s := strings.TrimSpace(c.SystemPrompt); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	if s := strings.TrimSpace(req.Context); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: "Conversation so far:\n" + s})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.Message})
	return c.Provider.Chat(ctx, msgs)
}
