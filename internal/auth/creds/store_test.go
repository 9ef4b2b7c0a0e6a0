package creds

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "acct-1")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSession_AbsentUntilSaved(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("LoadSession on empty store: err = %v, want ErrNoSession", err)
	}

	in := Session{UserID: "u1", AccessToken: "at", ChatAccessToken: "cat", RefreshToken: "rt"}
	if err := s.SaveSession(in); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	out, err := s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if out.UserID != "u1" || out.AccessToken != "at" || out.ChatAccessToken != "cat" || out.RefreshToken != "rt" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.SavedAt.IsZero() {
		t.Fatalf("SavedAt not stamped")
	}
}

func TestSession_InvariantEnforced(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSession(Session{UserID: "u1", AccessToken: "at"}); err == nil {
		t.Fatalf("expected save of token-incomplete session to fail")
	}
}

func TestSession_DeleteIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSession(Session{AccessToken: "a", ChatAccessToken: "c"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.DeleteSession(); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := s.DeleteSession(); err != nil {
		t.Fatalf("DeleteSession (repeat): %v", err)
	}
	if _, err := s.LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("after delete: err = %v, want ErrNoSession", err)
	}
}

func TestDevice_CreatedOnceAndStable(t *testing.T) {
	s := newTestStore(t)

	d1, err := s.LoadOrCreateDevice()
	if err != nil {
		t.Fatalf("LoadOrCreateDevice: %v", err)
	}
	if d1.DeviceID == "" || d1.DeviceToken == "" || d1.Resource == "" {
		t.Fatalf("incomplete device identity: %+v", d1)
	}
	if d1.PlatformType != PlatformType {
		t.Fatalf("platform type = %q", d1.PlatformType)
	}
	if !strings.HasPrefix(d1.Resource, "talkwire-") {
		t.Fatalf("resource = %q", d1.Resource)
	}

	d2, err := s.LoadOrCreateDevice()
	if err != nil {
		t.Fatalf("LoadOrCreateDevice (second): %v", err)
	}
	if d2.DeviceID != d1.DeviceID || d2.DeviceToken != d1.DeviceToken || d2.Resource != d1.Resource {
		t.Fatalf("device identity not stable across loads: %+v vs %+v", d1, d2)
	}
}

func TestProfile_MissingIsEmpty(t *testing.T) {
	s := newTestStore(t)

	p, err := s.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.DisplayName != "" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if err := s.SaveProfile(Profile{DisplayName: "Bot"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	p, err = s.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile (after save): %v", err)
	}
	if p.DisplayName != "Bot" {
		t.Fatalf("DisplayName = %q", p.DisplayName)
	}
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "acct-1")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SaveProfile(Profile{DisplayName: "x"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "acct-1"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
