package pairing

import (
	"context"
	"testing"
)

func TestUpsert_CreatedOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	code1, created, err := s.Upsert(ctx, "talk", "u42", nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatalf("first upsert must report created")
	}
	if len(code1) != 8 {
		t.Fatalf("code = %q", code1)
	}

	code2, created, err := s.Upsert(ctx, "talk", "u42", nil)
	if err != nil {
		t.Fatalf("Upsert (repeat): %v", err)
	}
	if created {
		t.Fatalf("repeat upsert must not report created")
	}
	if code2 != code1 {
		t.Fatalf("code changed on repeat: %q vs %q", code1, code2)
	}
}

func TestApprove_FeedsAllowList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	code, _, err := s.Upsert(ctx, "talk", "u42", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	allow, err := s.ReadAllow(ctx, "talk")
	if err != nil {
		t.Fatalf("ReadAllow: %v", err)
	}
	if len(allow) != 0 {
		t.Fatalf("pending request must not be allowed: %v", allow)
	}

	sender, err := s.Approve(ctx, "talk", code)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if sender != "u42" {
		t.Fatalf("sender = %q", sender)
	}

	allow, err = s.ReadAllow(ctx, "talk")
	if err != nil {
		t.Fatalf("ReadAllow: %v", err)
	}
	if len(allow) != 1 || allow[0] != "u42" {
		t.Fatalf("allow = %v", allow)
	}
}

func TestApprove_UnknownCode(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Approve(context.Background(), "talk", "NOPE1234"); err == nil {
		t.Fatalf("expected error for unknown code")
	}
}

func TestNewCode_Alphabet(t *testing.T) {
	code := NewCode()
	if len(code) != 8 {
		t.Fatalf("len = %d", len(code))
	}
	for _, r := range code {
		switch r {
		case '0', 'O', '1', 'I':
			t.Fatalf("lookalike rune %q in code %q", r, code)
		}
	}
}
