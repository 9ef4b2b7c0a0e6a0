// Package api is the HTTP client for the Talk platform's session REST
// endpoints: OTP exchange, token refresh, directory listings, message
// history, and media-upload-URL issuance.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"talkwire/internal/auth/creds"
)

// DefaultBaseURL is the platform's REST endpoint.
const DefaultBaseURL = "https://api.talkapp.chat"

// The platform rejects requests without a client-identification header
// describing a synthetic device/browser profile. The value is fixed;
// the platform pattern-matches it.
const (
	clientHeader = "X-Talk-Client"
	clientValue  = "TalkDesktop/3.4.2 (X11; Linux x86_64) talkwire"
)

const requestTimeout = 30 * time.Second

// Client talks to the session REST endpoints. Safe for concurrent use.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// NewClient constructs a Client. An empty base falls back to the
// platform default.
func NewClient(base string, log *slog.Logger) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: requestTimeout},
		log:  log,
	}
}

// DirectoryEntry is one row of a chat or group listing.
type DirectoryEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// HistoryItem is one archived message from the history endpoint.
type HistoryItem struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}

// UploadTarget is an issued media-upload destination.
type UploadTarget struct {
	URL     string `json:"url"`
	MediaID string `json:"mediaId"`
}

// RequestOTP asks the platform to send a one-time password to the
// account's registered contact.
func (c *Client) RequestOTP(ctx context.Context, account string) error {
	var ignored struct{}
	return c.post(ctx, "/v2/auth/otp", "", map[string]string{"account": account}, &ignored)
}

// VerifyOTP exchanges the one-time password for a session payload.
// The response passes through the tolerant session-shaped extractor.
func (c *Client) VerifyOTP(ctx context.Context, account, code string, dev creds.DeviceIdentity) (SessionPayload, error) {
	body, err := c.postRaw(ctx, "/v2/auth/otp/verify", "", map[string]string{
		"account":     account,
		"code":        code,
		"deviceId":    dev.DeviceID,
		"deviceToken": dev.DeviceToken,
		"platform":    dev.PlatformType,
	})
	if err != nil {
		return SessionPayload{}, err
	}
	return ExtractSessionPayload(body)
}

// RefreshSession exchanges a refresh token for fresh tokens. The bearer
// credential for this one call is the refresh token, not the access
// token. 401 means the refresh token itself was rejected.
func (c *Client) RefreshSession(ctx context.Context, dev creds.DeviceIdentity, refreshToken string) (SessionPayload, error) {
	body, err := c.postRaw(ctx, "/v2/auth/refresh", refreshToken, map[string]string{
		"deviceId":    dev.DeviceID,
		"deviceToken": dev.DeviceToken,
		"platform":    dev.PlatformType,
	})
	if err != nil {
		return SessionPayload{}, err
	}
	return ExtractSessionPayload(body)
}

// Logout invalidates the session server-side. Best effort; the caller
// deletes the local record regardless.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	var ignored struct{}
	return c.post(ctx, "/v2/auth/logout", accessToken, struct{}{}, &ignored)
}

// ListChats returns the direct-chat directory listing.
func (c *Client) ListChats(ctx context.Context, accessToken string) ([]DirectoryEntry, error) {
	var out struct {
		Chats []DirectoryEntry `json:"chats"`
	}
	if err := c.get(ctx, "/v2/directory/chats", accessToken, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// ListGroups returns the group directory listing.
func (c *Client) ListGroups(ctx context.Context, accessToken string) ([]DirectoryEntry, error) {
	var out struct {
		Groups []DirectoryEntry `json:"groups"`
	}
	if err := c.get(ctx, "/v2/directory/groups", accessToken, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// History fetches up to limit archived messages for a channel.
func (c *Client) History(ctx context.Context, accessToken, channelID string, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var out struct {
		Messages []HistoryItem `json:"messages"`
	}
	path := fmt.Sprintf("/v2/channels/%s/history?limit=%d", channelID, limit)
	if err := c.get(ctx, path, accessToken, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// MediaUploadURL issues an upload destination for a media blob.
func (c *Client) MediaUploadURL(ctx context.Context, accessToken, name, mimeType string, size int64) (UploadTarget, error) {
	var out UploadTarget
	err := c.post(ctx, "/v2/media/upload-url", accessToken, map[string]any{
		"name":     name,
		"mimeType": mimeType,
		"size":     size,
	}, &out)
	return out, err
}

// ---- request plumbing ----

func (c *Client) get(ctx context.Context, path, bearer string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, bearer, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) post(ctx context.Context, path, bearer string, in, out any) error {
	body, err := c.postRaw(ctx, path, bearer, in)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postRaw(ctx context.Context, path, bearer string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("api: encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bearer, payload)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set(clientHeader, clientValue)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("api: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.log.Debug("api.status.fail", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Detail: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
