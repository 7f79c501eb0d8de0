// Package webhook forwards recorded chat actions to the external endpoint
// configured for their intent.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/intent"
)

// ErrNoEndpoint means no webhook is configured for the event's intent.
var ErrNoEndpoint = errors.New("webhook: no endpoint for intent")

type Client struct {
	URLs   map[intent.Kind]string
	Token  string
	Client *http.Client
}

func NewClient(urls map[intent.Kind]string, token string) *Client {
	clean := make(map[intent.Kind]string, len(urls))
	for k, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean[k] = u
		}
	}
	return &Client{URLs: clean, Token: token, Client: &http.Client{Timeout: 15 * time.Second}}
}

// StatusError is a non-2xx webhook answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: status %d: %s", e.Code, e.Body)
}

// Retryable reports whether a later attempt could succeed: transport errors,
// 429 and 5xx are retryable, other statuses are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNoEndpoint) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func (c *Client) Deliver(ctx context.Context, ev actions.Event) error {
	url, ok := c.URLs[ev.Intent]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoEndpoint, ev.Intent)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ev.ID)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
