package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON sends in as a JSON POST and decodes a 2xx body into out.
// Non-2xx answers become errors carrying up to 4KB of the body.
func postJSON(ctx context.Context, client *http.Client, label, url string, headers map[string]string, in, out any) error {
	if client == nil {
		return fmt.Errorf("%s: http client is nil", label)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &StatusError{Label: label, Code: resp.StatusCode, Body: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: malformed response: %w", label, err)
	}
	return nil
}

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	Label string
	Code  int
	Body  string
}

func (e *StatusError) Error() string {
	if e.Body == fmt.Sprintf("status %d", e.Code) {
		return fmt.Sprintf("%s: %s", e.Label, e.Body)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Label, e.Code, e.Body)
}

func bearer(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return "Bearer " + token
}

// wireMessage is the {role, content} shape shared by the chat-style APIs.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
