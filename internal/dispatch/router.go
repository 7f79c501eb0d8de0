// Package dispatch decides which AI backend answers a chat message.
//
// General is unmetered and always tried directly. A metered mode is tried
// only after its quota check passes; when the check fails or the metered call
// errors, general answers that one message instead and the result says why.
// RouteMessage makes at most two outbound calls and returns an error only
// when general itself fails.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/suPer8Hu/kairos/internal/ai"
)

// ErrGeneralUnavailable wraps a failure of the general provider; there is
// nothing left to fall back to.
var ErrGeneralUnavailable = errors.New("general provider unavailable")

// QuotaHooks are bound to a single chat session.
type QuotaHooks interface {
	CheckQuota(ctx context.Context, mode ai.Mode) (bool, error)
	IncrementUsage(ctx context.Context, mode ai.Mode) error
}

type RouteResult struct {
	Content           string  `json:"content"`
	Source            ai.Mode `json:"source"`
	FellBackToGeneral bool    `json:"fell_back_to_general"`
	FallbackReason    string  `json:"fallback_reason,omitempty"`
}

type Router struct {
	providers map[ai.Mode]ai.Completer
}

// NewRouter needs a completer for ai.ModeGeneral; metered modes are optional.
func NewRouter(providers map[ai.Mode]ai.Completer) (*Router, error) {
	if providers[ai.ModeGeneral] == nil {
		return nil, errors.New("dispatch: general provider is required")
	}
	p := make(map[ai.Mode]ai.Completer, len(providers))
	for m, c := range providers {
		if c != nil {
			p[m] = c
		}
	}
	return &Router{providers: p}, nil
}

// Has reports whether a backend is configured for mode.
func (r *Router) Has(mode ai.Mode) bool { return r.providers[mode] != nil }

// Session carries what the router forwards on behalf of the caller.
type Session struct {
	ID    string
	Token string
}

func (r *Router) RouteMessage(ctx context.Context, mode ai.Mode, text, convContext string, sess Session, hooks QuotaHooks) (RouteResult, error) {
	req := ai.Request{Mode: mode, Message: text, Context: convContext, Token: sess.Token}

	if !mode.Metered() {
		req.Mode = ai.ModeGeneral
		return r.general(ctx, req, "")
	}

	ok, err := hooks.CheckQuota(ctx, mode)
	if err != nil {
		log.Printf("[dispatch] quota check failed session=%s mode=%s err=%v", sess.ID, mode, err)
		return r.fallback(ctx, req, fmt.Sprintf("quota check failed for %s", mode))
	}
	if !ok {
		return r.fallback(ctx, req, fmt.Sprintf("Quota exceeded for %s", mode))
	}

	metered := r.providers[mode]
	if metered == nil {
		return r.fallback(ctx, req, fmt.Sprintf("%s provider not configured", mode))
	}

	content, err := metered.Complete(ctx, req)
	if err != nil {
		log.Printf("[dispatch] metered call failed session=%s mode=%s err=%v", sess.ID, mode, err)
		return r.fallback(ctx, req, fmt.Sprintf("%s unavailable: %v", mode, err))
	}

	if err := hooks.IncrementUsage(ctx, mode); err != nil {
		log.Printf("[dispatch] usage increment failed session=%s mode=%s err=%v", sess.ID, mode, err)
	}
	return RouteResult{Content: content, Source: mode}, nil
}

func (r *Router) fallback(ctx context.Context, req ai.Request, reason string) (RouteResult, error) {
	req.Mode = ai.ModeGeneral
	return r.general(ctx, req, reason)
}

func (r *Router) general(ctx context.Context, req ai.Request, reason string) (RouteResult, error) {
	content, err := r.providers[ai.ModeGeneral].Complete(ctx, req)
	if err != nil {
		if reason != "" {
			return RouteResult{}, fmt.Errorf("%w: %v (after fallback: %s)", ErrGeneralUnavailable, err, reason)
		}
		return RouteResult{}, fmt.Errorf("%w: %v", ErrGeneralUnavailable, err)
	}
	return RouteResult{
		Content:           content,
		Source:            ai.ModeGeneral,
		FellBackToGeneral: reason != "",
		FallbackReason:    reason,
	}, nil
}
