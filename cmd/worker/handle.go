package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/webhook"
)

type deliverer interface {
	Deliver(ctx context.Context, ev actions.Event) error
}

type retrier interface {
	Retry(ctx context.Context, body []byte, delay time.Duration, attempt int) error
}

type outcome int

const (
	ack outcome = iota
	// dead rejects without requeue so the broker moves it to the DLQ.
	dead
)

type eventHandler struct {
	hooks       deliverer
	retry       retrier
	maxAttempts int
	baseDelay   time.Duration
}

// backoff doubles per attempt, capped at 32x the base delay.
func (h *eventHandler) backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	return h.baseDelay << attempt
}

func (h *eventHandler) handle(ctx context.Context, workerID int, body []byte, attempts int) outcome {
	var ev actions.Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" {
		log.Printf("[worker] worker=%d bad message: %v", workerID, err)
		return dead
	}

	start := time.Now()
	err := h.hooks.Deliver(ctx, ev)
	switch {
	case err == nil:
		log.Printf("[worker] worker=%d delivered event=%s intent=%s attempt=%d cost=%s", workerID, ev.ID, ev.Intent, attempts+1, time.Since(start))
		return ack
	case errors.Is(err, webhook.ErrNoEndpoint):
		return ack
	case !webhook.Retryable(err):
		log.Printf("[worker] worker=%d event=%s rejected by webhook err=%v", workerID, ev.ID, err)
		return dead
	}

	next := attempts + 1
	if next >= h.maxAttempts {
		log.Printf("[worker] worker=%d event=%s giving up after %d attempts err=%v", workerID, ev.ID, next, err)
		return dead
	}
	if rerr := h.retry.Retry(ctx, body, h.backoff(attempts), next); rerr != nil {
		log.Printf("[worker] worker=%d event=%s retry publish failed err=%v deliver_err=%v", workerID, ev.ID, rerr, err)
		return dead
	}
	log.Printf("[worker] worker=%d event=%s retry=%d in=%s err=%v", workerID, ev.ID, next, h.backoff(attempts), err)
	return ack
}
