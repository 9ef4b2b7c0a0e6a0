// Package session owns the token-validity checks and the refresh
// protocol for the persisted platform session. It holds no independent
// copy of the session; internal/auth/creds stays the single owner.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"talkwire/internal/auth/creds"
	"talkwire/internal/talk/api"
)

// expiryBuffer is subtracted from a token's nominal expiry so refresh
// happens before the platform starts rejecting it.
const expiryBuffer = 60 * time.Second

// RefreshAPI is the slice of the REST client the manager needs.
type RefreshAPI interface {
	RefreshSession(ctx context.Context, dev creds.DeviceIdentity, refreshToken string) (api.SessionPayload, error)
}

// Manager tracks token expiry and transparently refreshes.
type Manager struct {
	store *creds.Store
	api   RefreshAPI
	log   *slog.Logger

	now     func() time.Time
	observe func(outcome string)
}

// NewManager constructs a Manager over the credential store and the
// platform's refresh endpoint.
func NewManager(store *creds.Store, refreshAPI RefreshAPI, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, api: refreshAPI, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// OnRefresh registers an observer called once per refresh attempt with
// its outcome: "ok", "rejected" (refresh token refused), or "failed".
// Used by the app layer to feed the refresh metrics.
func (m *Manager) OnRefresh(fn func(outcome string)) { m.observe = fn }

func (m *Manager) record(outcome string) {
	if m.observe != nil {
		m.observe(outcome)
	}
}

// IsExpiring reports whether the token's expiry claim falls within the
// safety buffer. Tokens without a decodable expiry claim are treated as
// non-expiring.
func (m *Manager) IsExpiring(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(m.now().Add(expiryBuffer))
}

// GetValidSession returns a session whose access token is not about to
// expire, refreshing first when needed.
func (m *Manager) GetValidSession(ctx context.Context) (creds.Session, error) {
	sess, err := m.store.LoadSession()
	if err != nil {
		if errors.Is(err, creds.ErrNoSession) {
			return creds.Session{}, ErrNotLoggedIn
		}
		return creds.Session{}, err
	}

	if m.IsExpiring(sess.AccessToken) {
		return m.Refresh(ctx)
	}
	return sess, nil
}

// Refresh exchanges the refresh token for fresh tokens and persists the
// updated session. The refresh token is the bearer credential for this
// one call. A 401 here means the refresh token itself was rejected:
// ErrSessionExpired, full re-authentication required.
func (m *Manager) Refresh(ctx context.Context) (creds.Session, error) {
	cur, err := m.store.LoadSession()
	if err != nil {
		if errors.Is(err, creds.ErrNoSession) {
			return creds.Session{}, ErrNotLoggedIn
		}
		return creds.Session{}, err
	}
	if cur.RefreshToken == "" {
		return creds.Session{}, ErrNoRefreshToken
	}

	dev, err := m.store.LoadOrCreateDevice()
	if err != nil {
		return creds.Session{}, err
	}

	payload, err := m.api.RefreshSession(ctx, dev, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			m.log.Warn("session.refresh.rejected")
			m.record("rejected")
			return creds.Session{}, ErrSessionExpired
		}
		m.record("failed")
		return creds.Session{}, &RefreshFailedError{Detail: err.Error()}
	}

	next := creds.Session{
		UserID:          payload.UserID,
		AccessToken:     payload.AccessToken,
		ChatAccessToken: payload.ChatAccessToken,
		RefreshToken:    payload.RefreshToken,
	}
	// Historical response shapes may omit these; keep the prior values.
	if next.UserID == "" {
		next.UserID = cur.UserID
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if next.ChatAccessToken == "" {
		next.ChatAccessToken = cur.ChatAccessToken
	}

	if err := m.store.SaveSession(next); err != nil {
		m.record("failed")
		return creds.Session{}, err
	}

	m.record("ok")
	m.log.Info("session.refresh.ok", "user_id", next.UserID)
	return next, nil
}

// WithAutoRefresh obtains a valid session and runs op with it. If op
// fails with an authorization-shaped error, it refreshes once and
// retries op once with the new session. Any other failure, or a second
// failure after refresh, propagates unmodified.
//
// Concurrent calls may each perform their own refresh; refresh is
// idempotent from the caller's perspective, so no cross-call locking.
func WithAutoRefresh[T any](ctx context.Context, m *Manager, op func(context.Context, creds.Session) (T, error)) (T, error) {
	var zero T

	sess, err := m.GetValidSession(ctx)
	if err != nil {
		return zero, err
	}

	out, err := op(ctx, sess)
	if err == nil || !IsAuthError(err) {
		return out, err
	}

	m.log.Info("session.autorefresh", "cause", err.Error())
	sess, rerr := m.Refresh(ctx)
	if rerr != nil {
		return zero, rerr
	}

	return op(ctx, sess)
}

// IsAuthError reports whether an opaque error text indicates an
// authorization failure. Collaborator APIs surface errors as messages,
// so this is a substring match.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "401") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "expired")
}
