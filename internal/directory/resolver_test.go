package directory

import (
	"context"
	"testing"

	"talkwire/internal/talk/wire"
)

type fakeLister struct {
	chats  []Listing
	groups []Listing
	calls  int
}

func (f *fakeLister) ListChats(_ context.Context) ([]Listing, error) {
	f.calls++
	return f.chats, nil
}

func (f *fakeLister) ListGroups(_ context.Context) ([]Listing, error) {
	return f.groups, nil
}

func TestResolve_AddressPassthrough(t *testing.T) {
	r := NewResolver(&fakeLister{}, nil)

	addr, ok := r.Resolve(context.Background(), "u42@msg.talkapp.chat/phone")
	if !ok {
		t.Fatalf("expected ok")
	}
	if addr != "u42@msg.talkapp.chat" {
		t.Fatalf("addr = %q", addr)
	}
}

func TestResolve_ByTitleAfterRefresh(t *testing.T) {
	lister := &fakeLister{
		chats:  []Listing{{ID: "u42", Title: "Ada Lovelace"}},
		groups: []Listing{{ID: "g7", Title: "Ops Room"}},
	}
	r := NewResolver(lister, nil)

	// Cold cache: one refresh, then a hit.
	addr, ok := r.Resolve(context.Background(), "  ada lovelace ")
	if !ok {
		t.Fatalf("expected resolution by title")
	}
	if addr != wire.DirectAddress("u42") {
		t.Fatalf("addr = %q", addr)
	}
	if lister.calls != 1 {
		t.Fatalf("listing calls = %d, want exactly 1", lister.calls)
	}

	// Warm cache: no further refresh.
	addr, ok = r.Resolve(context.Background(), "Ops Room")
	if !ok {
		t.Fatalf("expected group resolution")
	}
	if addr != wire.GroupAddress("g7") {
		t.Fatalf("addr = %q", addr)
	}
	if lister.calls != 1 {
		t.Fatalf("listing calls = %d, want no second refresh", lister.calls)
	}
}

func TestResolve_MissAfterRefresh(t *testing.T) {
	lister := &fakeLister{}
	r := NewResolver(lister, nil)

	if _, ok := r.Resolve(context.Background(), "nobody"); ok {
		t.Fatalf("expected miss")
	}
	if lister.calls != 1 {
		t.Fatalf("listing calls = %d, want exactly 1 refresh per lookup", lister.calls)
	}
}

func TestResolve_ByBareAddressKey(t *testing.T) {
	lister := &fakeLister{chats: []Listing{{ID: "u42", Title: "Ada"}}}
	r := NewResolver(lister, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	addr, ok := r.Resolve(context.Background(), "u42@msg.talkapp.chat")
	if !ok || addr != wire.DirectAddress("u42") {
		t.Fatalf("addr = %q, ok = %v", addr, ok)
	}

	title, ok := r.Title(addr)
	if !ok || title != "Ada" {
		t.Fatalf("title = %q, ok = %v", title, ok)
	}
}
