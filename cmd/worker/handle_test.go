package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/intent"
	"github.com/suPer8Hu/kairos/internal/webhook"
)

type fakeHooks struct{ err error }

func (f fakeHooks) Deliver(ctx context.Context, ev actions.Event) error { return f.err }

type fakeRetry struct {
	attempt int
	delay   time.Duration
	calls   int
	err     error
}

func (f *fakeRetry) Retry(ctx context.Context, body []byte, delay time.Duration, attempt int) error {
	f.calls++
	f.attempt = attempt
	f.delay = delay
	return f.err
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(actions.Event{ID: "01EV", Intent: intent.Task, UserID: 1, RecordID: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandle(t *testing.T) {
	body := eventBody(t)
	cases := []struct {
		name     string
		err      error
		attempts int
		want     outcome
		retried  bool
	}{
		{"delivered", nil, 0, ack, false},
		{"no endpoint", webhook.ErrNoEndpoint, 0, ack, false},
		{"client error", &webhook.StatusError{Code: 400}, 0, dead, false},
		{"server error retried", &webhook.StatusError{Code: 503}, 1, ack, true},
		{"transport error retried", errors.New("connection refused"), 0, ack, true},
		{"out of attempts", &webhook.StatusError{Code: 500}, 2, dead, false},
	}
	for _, tc := range cases {
		r := &fakeRetry{}
		h := &eventHandler{hooks: fakeHooks{err: tc.err}, retry: r, maxAttempts: 3, baseDelay: time.Second}
		got := h.handle(context.Background(), 0, body, tc.attempts)
		if got != tc.want {
			t.Fatalf("%s: outcome=%d want %d", tc.name, got, tc.want)
		}
		if (r.calls == 1) != tc.retried {
			t.Fatalf("%s: retry calls=%d", tc.name, r.calls)
		}
		if tc.retried && r.attempt != tc.attempts+1 {
			t.Fatalf("%s: attempt=%d want %d", tc.name, r.attempt, tc.attempts+1)
		}
	}
}

func TestHandle_BadMessageAndRetryFailure(t *testing.T) {
	h := &eventHandler{hooks: fakeHooks{}, retry: &fakeRetry{}, maxAttempts: 3, baseDelay: time.Second}
	if got := h.handle(context.Background(), 0, []byte("{"), 0); got != dead {
		t.Fatalf("bad json should be dead-lettered")
	}

	r := &fakeRetry{err: errors.New("channel closed")}
	h = &eventHandler{hooks: fakeHooks{err: errors.New("timeout")}, retry: r, maxAttempts: 3, baseDelay: time.Second}
	if got := h.handle(context.Background(), 0, eventBody(t), 0); got != dead {
		t.Fatalf("failed retry publish should dead-letter")
	}
}

func TestBackoff(t *testing.T) {
	h := &eventHandler{baseDelay: time.Second}
	if h.backoff(0) != time.Second || h.backoff(2) != 4*time.Second || h.backoff(9) != 32*time.Second {
		t.Fatalf("unexpected backoff %s %s %s", h.backoff(0), h.backoff(2), h.backoff(9))
	}
}
