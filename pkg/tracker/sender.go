package tracker

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
)

// ErrTransient marks a tracking request that did not reach the backend.
// Callers log and drop it.
var ErrTransient = errors.New("tracking request failed")

// Payload is the body of POST /events
type Payload struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Sender delivers a payload to the ingestion endpoint
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// HTTPSender posts payloads as JSON
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender targets baseURL + "/events". A nil client gets a 10s timeout.
func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{
		endpoint: strings.TrimRight(baseURL, "/") + "/events",
		client:   client,
	}
}

func (s *HTTPSender) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	return nil
}
