package pairing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the single-process Store used when no database is
// configured. Pending requests never expire (upstream lifetime policy is
// unspecified); restarts drop them, which re-issues codes.
type MemoryStore struct {
	mu   sync.Mutex
	reqs map[string]*Request // key: channel + "\x00" + senderID
}

// NewMemoryStore constructs an in-memory pairing Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]*Request)}
}

func memKey(channel, senderID string) string {
	return strings.ToLower(channel) + "\x00" + strings.ToLower(senderID)
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, channel, senderID string, meta map[string]string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if channel == "" || senderID == "" {
		return "", false, errors.New("pairing: empty channel or sender")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(channel, senderID)
	if req, ok := s.reqs[key]; ok {
		return req.Code, false, nil
	}

	req := &Request{
		Channel:   channel,
		SenderID:  senderID,
		Code:      NewCode(),
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	s.reqs[key] = req
	return req.Code, true, nil
}

// ReadAllow implements Store.
func (s *MemoryStore) ReadAllow(ctx context.Context, channel string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, req := range s.reqs {
		if req.Approved && strings.EqualFold(req.Channel, channel) {
			out = append(out, req.SenderID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Approve implements Store.
func (s *MemoryStore) Approve(ctx context.Context, channel, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.reqs {
		if strings.EqualFold(req.Channel, channel) && strings.EqualFold(req.Code, code) {
			req.Approved = true
			return req.SenderID, nil
		}
	}
	return "", errors.New("pairing: unknown code")
}
