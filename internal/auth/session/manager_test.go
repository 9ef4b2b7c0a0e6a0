package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"talkwire/internal/auth/creds"
	"talkwire/internal/talk/api"
)

func tokenExpiring(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func tokenNoExpiry(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type fakeRefresh struct {
	payload api.SessionPayload
	err     error
	calls   int
}

func (f *fakeRefresh) RefreshSession(_ context.Context, _ creds.DeviceIdentity, _ string) (api.SessionPayload, error) {
	f.calls++
	return f.payload, f.err
}

func newTestManager(t *testing.T, refresh *fakeRefresh) (*Manager, *creds.Store) {
	t.Helper()
	store, err := creds.NewStore(t.TempDir(), "acct")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewManager(store, refresh, nil), store
}

func TestIsExpiring(t *testing.T) {
	m, _ := newTestManager(t, &fakeRefresh{})
	now := time.Now()

	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"already expired", tokenExpiring(t, now.Add(-time.Hour)), true},
		{"inside buffer", tokenExpiring(t, now.Add(30*time.Second)), true},
		{"far future", tokenExpiring(t, now.Add(24*time.Hour)), false},
		{"no expiry claim", tokenNoExpiry(t), false},
		{"not a JWT", "opaque-token", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.IsExpiring(tc.token); got != tc.want {
				t.Fatalf("IsExpiring = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetValidSession_NotLoggedIn(t *testing.T) {
	m, _ := newTestManager(t, &fakeRefresh{})
	if _, err := m.GetValidSession(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestGetValidSession_RefreshesExpiring(t *testing.T) {
	refresh := &fakeRefresh{payload: api.SessionPayload{AccessToken: "at2", ChatAccessToken: "cat2", RefreshToken: "rt2"}}
	m, store := newTestManager(t, refresh)

	seed := creds.Session{
		UserID:          "u1",
		AccessToken:     tokenExpiring(t, time.Now().Add(10*time.Second)),
		ChatAccessToken: "cat1",
		RefreshToken:    "rt1",
	}
	if err := store.SaveSession(seed); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	sess, err := m.GetValidSession(context.Background())
	if err != nil {
		t.Fatalf("GetValidSession: %v", err)
	}
	if refresh.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", refresh.calls)
	}
	if sess.AccessToken != "at2" {
		t.Fatalf("access token = %q, want refreshed", sess.AccessToken)
	}
	// UserID absent in the refresh payload: prior value kept.
	if sess.UserID != "u1" {
		t.Fatalf("user id = %q, want prior value preserved", sess.UserID)
	}

	persisted, err := store.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if persisted.AccessToken != "at2" || persisted.RefreshToken != "rt2" {
		t.Fatalf("refresh not persisted: %+v", persisted)
	}
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	m, store := newTestManager(t, &fakeRefresh{})
	if err := store.SaveSession(creds.Session{AccessToken: "at", ChatAccessToken: "cat"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("err = %v, want ErrNoRefreshToken", err)
	}
}

func TestRefresh_RejectedMeansSessionExpired(t *testing.T) {
	m, store := newTestManager(t, &fakeRefresh{err: api.ErrUnauthorized})
	if err := store.SaveSession(creds.Session{AccessToken: "at", ChatAccessToken: "cat", RefreshToken: "rt"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestRefresh_OtherFailure(t *testing.T) {
	m, store := newTestManager(t, &fakeRefresh{err: &api.StatusError{Code: 502, Detail: "upstream sad"}})
	if err := store.SaveSession(creds.Session{AccessToken: "at", ChatAccessToken: "cat", RefreshToken: "rt"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	_, err := m.Refresh(context.Background())
	var rf *RefreshFailedError
	if !errors.As(err, &rf) {
		t.Fatalf("err = %v, want RefreshFailedError", err)
	}
}

func TestRefresh_ObserverSeesOutcomes(t *testing.T) {
	refresh := &fakeRefresh{payload: api.SessionPayload{AccessToken: "at2", ChatAccessToken: "cat2"}}
	m, store := newTestManager(t, refresh)

	var outcomes []string
	m.OnRefresh(func(outcome string) { outcomes = append(outcomes, outcome) })

	seed := creds.Session{UserID: "u1", AccessToken: "at", ChatAccessToken: "cat", RefreshToken: "rt"}
	if err := store.SaveSession(seed); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	refresh.err = api.ErrUnauthorized
	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}

	refresh.err = &api.StatusError{Code: 502, Detail: "upstream sad"}
	if _, err := m.Refresh(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}

	want := []string{"ok", "rejected", "failed"}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", outcomes, want)
		}
	}
}

func TestWithAutoRefresh_AtMostTwoCalls(t *testing.T) {
	refresh := &fakeRefresh{payload: api.SessionPayload{AccessToken: "at2", ChatAccessToken: "cat2"}}
	m, store := newTestManager(t, refresh)
	seed := creds.Session{UserID: "u1", AccessToken: tokenNoExpiry(t), ChatAccessToken: "cat", RefreshToken: "rt"}
	if err := store.SaveSession(seed); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	t.Run("success first try", func(t *testing.T) {
		calls := 0
		_, err := WithAutoRefresh(context.Background(), m, func(_ context.Context, _ creds.Session) (string, error) {
			calls++
			return "ok", nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("retry once on auth error", func(t *testing.T) {
		calls := 0
		out, err := WithAutoRefresh(context.Background(), m, func(_ context.Context, _ creds.Session) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("request failed: 401 unauthorized")
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if calls != 2 {
			t.Fatalf("calls = %d, want 2", calls)
		}
		if out != "ok" {
			t.Fatalf("out = %q", out)
		}
	})

	t.Run("non-auth error propagates without retry", func(t *testing.T) {
		calls := 0
		boom := errors.New("connection reset")
		_, err := WithAutoRefresh(context.Background(), m, func(_ context.Context, _ creds.Session) (string, error) {
			calls++
			return "", boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want original error", err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
	})

	t.Run("second auth failure propagates", func(t *testing.T) {
		calls := 0
		_, err := WithAutoRefresh(context.Background(), m, func(_ context.Context, _ creds.Session) (string, error) {
			calls++
			return "", errors.New("still unauthorized")
		})
		if err == nil {
			t.Fatalf("expected error")
		}
		if calls != 2 {
			t.Fatalf("calls = %d, want exactly 2", calls)
		}
	})
}

func TestIsAuthError(t *testing.T) {
	for _, s := range []string{"HTTP 401", "token Unauthorized", "session expired upstream"} {
		if !IsAuthError(errors.New(s)) {
			t.Fatalf("%q should be auth-shaped", s)
		}
	}
	if IsAuthError(errors.New("connection refused")) {
		t.Fatalf("connection refused is not auth-shaped")
	}
	if IsAuthError(nil) {
		t.Fatalf("nil is not auth-shaped")
	}
}
