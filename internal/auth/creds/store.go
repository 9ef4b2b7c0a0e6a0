// Package creds persists the three per-account credential records:
// session tokens, the stable device identity, and the display-name
// profile. Pure storage; token-validity policy lives in auth/session.
package creds

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionFile = "session.json"
	deviceFile  = "device.json"
	profileFile = "profile.json"

	// PlatformType is the synthetic device profile presented to the
	// platform. Fixed: changing it invalidates device re-authentication.
	PlatformType = "desktop"
)

// Session holds the platform tokens for one account.
// Invariant: AccessToken and ChatAccessToken are both non-empty, or the
// session is considered absent.
type Session struct {
	UserID          string    `json:"userId"`
	AccessToken     string    `json:"accessToken"`
	ChatAccessToken string    `json:"chatAccessToken"`
	RefreshToken    string    `json:"refreshToken"`
	SavedAt         time.Time `json:"savedAt"`
}

// Valid reports whether the record satisfies the presence invariant.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.ChatAccessToken != ""
}

// DeviceIdentity is created once, lazily, and reused across all sessions
// for stable re-authentication. Immutable after creation.
type DeviceIdentity struct {
	DeviceID     string    `json:"deviceId"`
	DeviceToken  string    `json:"deviceToken"`
	PlatformType string    `json:"platformType"`
	Resource     string    `json:"resource"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile carries the display name used in outbound message envelopes.
type Profile struct {
	DisplayName string `json:"displayName"`
}

// ErrNoSession is returned when no persisted session exists (or the
// stored record violates the presence invariant).
var ErrNoSession = errors.New("no persisted session")

// Store persists credential records under a fixed per-account directory.
// Each record is whole-file overwritten on save via atomic replace.
type Store struct {
	dir string
}

// NewStore builds a Store rooted at stateDir/account.
func NewStore(stateDir, account string) (*Store, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, errors.New("creds: empty account")
	}
	dir := filepath.Join(stateDir, account)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creds: create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// LoadSession returns the persisted session or ErrNoSession.
func (s *Store) LoadSession() (Session, error) {
	var sess Session
	if err := s.readJSON(sessionFile, &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	if !sess.Valid() {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// SaveSession overwrites the session record with a fresh SavedAt.
func (s *Store) SaveSession(sess Session) error {
	if !sess.Valid() {
		return errors.New("creds: refusing to save invalid session")
	}
	sess.SavedAt = time.Now().UTC()
	return s.writeJSON(sessionFile, sess)
}

// DeleteSession removes the session record. Idempotent.
func (s *Store) DeleteSession() error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("creds: delete session: %w", err)
	}
	return nil
}

// LoadOrCreateDevice returns the stable device identity, creating it on
// first need. The created record is never mutated afterwards.
func (s *Store) LoadOrCreateDevice() (DeviceIdentity, error) {
	var dev DeviceIdentity
	err := s.readJSON(deviceFile, &dev)
	if err == nil && dev.DeviceID != "" {
		return dev, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return DeviceIdentity{}, err
	}

	dev = DeviceIdentity{
		DeviceID:     uuid.NewString(),
		DeviceToken:  newRandomHex(24),
		PlatformType: PlatformType,
		Resource:     "talkwire-" + newRandomHex(4),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.writeJSON(deviceFile, dev); err != nil {
		return DeviceIdentity{}, err
	}
	return dev, nil
}

// LoadProfile returns the display-name profile; a missing record is an
// empty profile, not an error.
func (s *Store) LoadProfile() (Profile, error) {
	var p Profile
	if err := s.readJSON(profileFile, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Profile{}, nil
		}
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile overwrites the display-name profile.
func (s *Store) SaveProfile(p Profile) error {
	return s.writeJSON(profileFile, p)
}

// ---- file primitives ----

func (s *Store) readJSON(name string, v any) error {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("creds: decode %s: %w", name, err)
	}
	return nil
}

// writeJSON writes the record to a temp file and renames it into place,
// so a crash never leaves a half-written record behind.
func (s *Store) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("creds: encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creds: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("creds: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("creds: close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("creds: replace %s: %w", name, err)
	}
	return nil
}

func newRandomHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
