// Package quota owns the active chat mode of each session and the usage
// counters of the metered modes.
//
// The check before a metered call and the increment after it are separate
// round trips to the Store, so two sends racing on one session can both pass
// the check and push Used past Limit by a little. That overshoot is accepted.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/suPer8Hu/kairos/internal/ai"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

// ModeStore holds the active mode per session.
type ModeStore interface {
	ActiveMode(ctx context.Context, sessionID string) (ai.Mode, error)
	SetActiveMode(ctx context.Context, sessionID string, mode ai.Mode) error
}

type Counter struct {
	Mode  ai.Mode `json:"provider"`
	Used  int64   `json:"used"`
	Limit int64   `json:"limit"`
	// ResetsIn is the time left in a windowed store's current window; zero
	// when the store has no window or the counter is untouched.
	ResetsIn time.Duration `json:"resets_in_ms,omitempty"`
}

func (c Counter) Remaining() int64 {
	if c.Used >= c.Limit {
		return 0
	}
	return c.Limit - c.Used
}

func (c Counter) Exhausted() bool { return c.Used >= c.Limit }

// Limits maps each metered mode to its ceiling. A metered mode with no
// positive limit is never available.
type Limits map[ai.Mode]int64

type Manager struct {
	counters Store
	modes    ModeStore
	limits   Limits
}

func NewManager(counters Store, modes ModeStore, limits Limits) *Manager {
	l := make(Limits, len(limits))
	for m, n := range limits {
		if m.Metered() && n > 0 {
			l[m] = n
		}
	}
	return &Manager{counters: counters, modes: modes, limits: l}
}

func (m *Manager) Limit(mode ai.Mode) int64 { return m.limits[mode] }

// CheckQuota reports whether one more call in mode is allowed. General is
// never metered. It does not change any counter.
func (m *Manager) CheckQuota(ctx context.Context, sessionID string, mode ai.Mode) (bool, error) {
	if !mode.Metered() {
		return true, nil
	}
	limit := m.limits[mode]
	if limit <= 0 {
		return false, nil
	}
	used, err := m.counters.Used(ctx, sessionID, mode)
	if err != nil {
		return false, fmt.Errorf("read quota %s: %w", mode, err)
	}
	return used < limit, nil
}

// IncrementUsage records one successful call. Callers invoke it only after
// the provider answered.
func (m *Manager) IncrementUsage(ctx context.Context, sessionID string, mode ai.Mode) error {
	if !mode.Metered() {
		return nil
	}
	used, err := m.counters.Incr(ctx, sessionID, mode)
	if err != nil {
		return err
	}
	if limit := m.limits[mode]; limit > 0 && used > limit {
		log.Printf("[quota] overshoot session=%s mode=%s used=%d limit=%d", sessionID, mode, used, limit)
	}
	return nil
}

func (m *Manager) ActiveMode(ctx context.Context, sessionID string) (ai.Mode, error) {
	mode, err := m.modes.ActiveMode(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !mode.Valid() {
		return ai.ModeGeneral, nil
	}
	return mode, nil
}

// Toggle switches the session to mode. Switching to a metered mode whose
// quota is used up is refused with ErrQuotaExceeded and leaves the session
// where it was.
func (m *Manager) Toggle(ctx context.Context, sessionID string, mode ai.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode: %q", mode)
	}
	if mode.Metered() {
		ok, err := m.CheckQuota(ctx, sessionID, mode)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w for %s", ErrQuotaExceeded, mode)
		}
	}
	return m.modes.SetActiveMode(ctx, sessionID, mode)
}

// Usage returns one counter per metered mode.
func (m *Manager) Usage(ctx context.Context, sessionID string) ([]Counter, error) {
	out := make([]Counter, 0, len(ai.Modes))
	for _, mode := range ai.Modes {
		if !mode.Metered() {
			continue
		}
		used, err := m.counters.Used(ctx, sessionID, mode)
		if err != nil {
			return nil, err
		}
		c := Counter{Mode: mode, Used: used, Limit: m.limits[mode]}
		if w, ok := m.counters.(windowed); ok && used > 0 {
			if c.ResetsIn, err = w.ResetsIn(ctx, sessionID, mode); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Reset clears the counter for mode, or every metered counter when mode is empty.
func (m *Manager) Reset(ctx context.Context, sessionID string, mode ai.Mode) error {
	for _, md := range ai.Modes {
		if !md.Metered() || (mode != "" && md != mode) {
			continue
		}
		if err := m.counters.Reset(ctx, sessionID, md); err != nil {
			return err
		}
	}
	return nil
}

// Hooks binds the manager to one session for the router.
func (m *Manager) Hooks(sessionID string) SessionHooks {
	return SessionHooks{m: m, sessionID: sessionID}
}

type SessionHooks struct {
	m         *Manager
	sessionID string
}

func (h SessionHooks) CheckQuota(ctx context.Context, mode ai.Mode) (bool, error) {
	return h.m.CheckQuota(ctx, h.sessionID, mode)
}

func (h SessionHooks) IncrementUsage(ctx context.Context, mode ai.Mode) error {
	return h.m.IncrementUsage(ctx, h.sessionID, mode)
}
