// Package directory maps human-entered targets (names, raw ids, full
// addresses) to protocol addresses, backed by a refreshable index
// populated from the platform's directory listings.
package directory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"talkwire/internal/talk/wire"
)

// Entry is one cached recipient. Entries are overwritten on the next
// listing refresh, never proactively expired, and not persisted.
type Entry struct {
	Address       string
	Title         string
	IsGroup       bool
	LastIndexedAt time.Time
}

// Lister supplies the two directory listings. Implemented over the REST
// client in the app layer so this package stays transport-free.
type Lister interface {
	ListChats(ctx context.Context) ([]Listing, error)
	ListGroups(ctx context.Context) ([]Listing, error)
}

// Listing is one row from a directory call: a bare platform id plus its
// human-readable title.
type Listing struct {
	ID    string
	Title string
}

// Resolver resolves targets against a dual-keyed cache (by lowercase
// address and by lowercase title).
type Resolver struct {
	lister Lister
	log    *slog.Logger

	mu        sync.RWMutex
	byAddress map[string]Entry
	byTitle   map[string]Entry
}

// NewResolver constructs a Resolver with an empty cache.
func NewResolver(lister Lister, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		lister:    lister,
		log:       log,
		byAddress: make(map[string]Entry),
		byTitle:   make(map[string]Entry),
	}
}

// Resolve maps query to a protocol address.
//
// A query that is already an address is returned verbatim. Otherwise the
// cache is probed by address key then title key (exact match only); on a
// miss, both listings are refreshed once and the lookup retried. ok is
// false when the target stays unresolved — the caller decides whether to
// treat it as a raw direct-message identifier.
func (r *Resolver) Resolve(ctx context.Context, query string) (addr string, ok bool) {
	if wire.IsAddress(query) {
		return wire.Bare(strings.TrimSpace(query)), true
	}

	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return "", false
	}

	if e, ok := r.lookup(key); ok {
		return e.Address, true
	}

	// Cold or stale cache: one refresh, one retry. Resolution is not on
	// the inbound hot path, so the extra round trip is acceptable.
	if err := r.Refresh(ctx); err != nil {
		r.log.Warn("directory.refresh.fail", "err", err)
		return "", false
	}
	if e, ok := r.lookup(key); ok {
		return e.Address, true
	}
	return "", false
}

// Title returns the cached human-readable title for an address, if known.
func (r *Resolver) Title(addr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAddress[strings.ToLower(wire.Bare(addr))]
	if !ok {
		return "", false
	}
	return e.Title, true
}

// Refresh repopulates the cache from both directory listings. Each
// listing overwrites its entries in place; absent entries linger until
// overwritten (no TTL).
func (r *Resolver) Refresh(ctx context.Context) error {
	chats, err := r.lister.ListChats(ctx)
	if err != nil {
		return err
	}
	groups, err := r.lister.ListGroups(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range chats {
		r.index(Entry{Address: wire.DirectAddress(l.ID), Title: l.Title, IsGroup: false, LastIndexedAt: now})
	}
	for _, l := range groups {
		r.index(Entry{Address: wire.GroupAddress(l.ID), Title: l.Title, IsGroup: true, LastIndexedAt: now})
	}
	return nil
}

func (r *Resolver) index(e Entry) {
	r.byAddress[strings.ToLower(e.Address)] = e
	if t := strings.ToLower(strings.TrimSpace(e.Title)); t != "" {
		r.byTitle[t] = e
	}
}

func (r *Resolver) lookup(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byAddress[key]; ok {
		return e, true
	}
	if e, ok := r.byTitle[key]; ok {
		return e, true
	}
	return Entry{}, false
}
