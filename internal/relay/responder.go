// Package relay pumps admitted inbound messages to a responder and
// routes its replies back onto the stream. It owns reconnection after
// transport loss; the protocol client only reports it.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Envelope is one admitted inbound message plus the routing metadata a
// responder needs to address its reply.
type Envelope struct {
	Channel    string    `json:"channel"`
	AccountID  string    `json:"accountId"`
	SessionKey string    `json:"sessionKey"`
	ChatType   string    `json:"chatType"` // "direct" or "group"
	ChatID     string    `json:"chatId"`
	From       string    `json:"from"`
	SenderName string    `json:"senderName,omitempty"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`

	Mention           bool `json:"mention"`
	CommandAuthorized bool `json:"commandAuthorized"`
}

// Reply is one outbound message produced by a responder. Text and
// MediaURL may both be set; they become separate stanzas.
type Reply struct {
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Responder turns an inbound envelope into zero or more replies.
type Responder interface {
	Respond(ctx context.Context, env Envelope) ([]Reply, error)
}

// ---- HTTP responder ----

// HTTPResponder posts envelopes as JSON to an upstream service and
// expects a JSON array of replies back.
type HTTPResponder struct {
	URL    string
	Client *http.Client
}

func NewHTTPResponder(url string) *HTTPResponder {
	return &HTTPResponder{
		URL:    url,
		Client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *HTTPResponder) Respond(ctx context.Context, env Envelope) ([]Reply, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("relay: encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: responder call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("relay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("relay: responder status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var replies []Reply
	if err := json.Unmarshal(raw, &replies); err != nil {
		// Tolerate a single-object response.
		var one Reply
		if err2 := json.Unmarshal(raw, &one); err2 != nil {
			return nil, fmt.Errorf("relay: decode replies: %w", err)
		}
		replies = []Reply{one}
	}
	return replies, nil
}
