package api

import "encoding/json"

// SessionPayload is the normalized result of a session-shaped response
// (OTP verify, token refresh).
type SessionPayload struct {
	UserID          string
	AccessToken     string
	ChatAccessToken string
	RefreshToken    string
}

// Historical key spellings observed across platform API revisions. The
// upstream API is not contractually stable; every spelling listed here
// has shipped at some point, so all of them must keep working.
var (
	wrapperKeys = []string{"result", "data", "session", "auth"}

	userIDKeys       = []string{"userId", "user_id", "uid", "id"}
	accessTokenKeys  = []string{"accessToken", "access_token", "token"}
	chatTokenKeys    = []string{"chatAccessToken", "chat_access_token", "chatToken", "chat_token"}
	refreshTokenKeys = []string{"refreshToken", "refresh_token"}
)

// ExtractSessionPayload probes a session-shaped response body for the
// token fields, trying the payload at top level and then under each known
// wrapper key. A body that explicitly signals failure, or that yields no
// access token under any convention, is ErrMalformedSessionResponse.
func ExtractSessionPayload(body []byte) (SessionPayload, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return SessionPayload{}, ErrMalformedSessionResponse
	}
	if indicatesFailure(root) {
		return SessionPayload{}, ErrMalformedSessionResponse
	}

	if p, ok := extractFrom(root); ok {
		return p, nil
	}
	for _, key := range wrapperKeys {
		raw, ok := root[key]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			continue
		}
		if p, ok := extractFrom(inner); ok {
			return p, nil
		}
	}

	return SessionPayload{}, ErrMalformedSessionResponse
}

func extractFrom(m map[string]json.RawMessage) (SessionPayload, bool) {
	p := SessionPayload{
		UserID:          firstString(m, userIDKeys),
		AccessToken:     firstString(m, accessTokenKeys),
		ChatAccessToken: firstString(m, chatTokenKeys),
		RefreshToken:    firstString(m, refreshTokenKeys),
	}
	// The access token is the one field every historical shape carried.
	// UserID and refresh token may legitimately be absent (the caller
	// falls back to prior values).
	return p, p.AccessToken != ""
}

func firstString(m map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// indicatesFailure detects explicit-failure bodies that still return 200.
func indicatesFailure(m map[string]json.RawMessage) bool {
	if raw, ok := m["status"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && (s == "error" || s == "fail" || s == "failed") {
			return true
		}
	}
	for _, key := range []string{"success", "ok"} {
		if raw, ok := m[key]; ok {
			var b bool
			if err := json.Unmarshal(raw, &b); err == nil && !b {
				return true
			}
		}
	}
	return false
}
