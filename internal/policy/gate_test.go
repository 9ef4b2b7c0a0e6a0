package policy

import (
	"context"
	"testing"
	"time"

	"talkwire/internal/pairing"
	"talkwire/internal/talk/wire"
)

func boolPtr(b bool) *bool { return &b }

func dmEvent(from, body string) wire.Event {
	return wire.Event{
		ID:        "e1",
		From:      from,
		Kind:      wire.KindDirect,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

func groupEvent(from, body string) wire.Event {
	ev := dmEvent(from, body)
	ev.Kind = wire.KindGroup
	return ev
}

type gateFixture struct {
	gate    *Gate
	store   *pairing.MemoryStore
	notices []string
}

func newGate(t *testing.T, cfg ChannelConfig) *gateFixture {
	t.Helper()
	if cfg.Channel == "" {
		cfg.Channel = "talk"
	}
	f := &gateFixture{store: pairing.NewMemoryStore()}
	notify := func(_ context.Context, _ string, notice string) error {
		f.notices = append(f.notices, notice)
		return nil
	}
	f.gate = NewGate(func() ChannelConfig { return cfg }, f.store, notify, nil)
	return f
}

func TestDM_Open(t *testing.T) {
	f := newGate(t, ChannelConfig{DMEnabled: true, DMPolicy: DMOpen})
	d := f.gate.Decide(context.Background(), dmEvent("u42@msg.talkapp.chat/phone", "hi"))
	if !d.Admit {
		t.Fatalf("open policy must admit: %+v", d)
	}
}

func TestDM_Disabled(t *testing.T) {
	for _, cfg := range []ChannelConfig{
		{DMEnabled: false, DMPolicy: DMOpen},
		{DMEnabled: true, DMPolicy: DMDisabled},
	} {
		f := newGate(t, cfg)
		if d := f.gate.Decide(context.Background(), dmEvent("u42@msg.talkapp.chat", "hi")); d.Admit {
			t.Fatalf("disabled policy must deny: %+v", d)
		}
	}
}

func TestDM_AllowlistMatching(t *testing.T) {
	cases := []struct {
		name  string
		allow []string
		from  string
		want  bool
	}{
		{"wildcard", []string{"*"}, "u42@msg.talkapp.chat/phone", true},
		{"bare id", []string{"u42"}, "u42@msg.talkapp.chat/phone", true},
		{"full address", []string{"u42@msg.talkapp.chat/phone"}, "u42@msg.talkapp.chat/phone", true},
		{"bare address", []string{"u42@msg.talkapp.chat"}, "u42@msg.talkapp.chat/phone", true},
		{"no match", []string{"u7"}, "u42@msg.talkapp.chat/phone", false},
		{"empty list", nil, "u42@msg.talkapp.chat", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGate(t, ChannelConfig{DMEnabled: true, DMPolicy: DMAllowlist, AllowList: tc.allow})
			d := f.gate.Decide(context.Background(), dmEvent(tc.from, "hi"))
			if d.Admit != tc.want {
				t.Fatalf("admit = %v, want %v (%+v)", d.Admit, tc.want, d)
			}
		})
	}
}

func TestDM_PairingIssuesOneNotice(t *testing.T) {
	f := newGate(t, ChannelConfig{DMEnabled: true, DMPolicy: DMPairing})
	ev := dmEvent("u42@msg.talkapp.chat/phone", "hello?")

	d := f.gate.Decide(context.Background(), ev)
	if d.Admit {
		t.Fatalf("unknown sender must be denied")
	}
	if d.PairingCodeIssued == "" {
		t.Fatalf("first contact must issue a pairing code")
	}
	if len(f.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.notices))
	}

	// Repeat message: silent denial, no second notice.
	d = f.gate.Decide(context.Background(), ev)
	if d.Admit || d.PairingCodeIssued != "" {
		t.Fatalf("repeat must deny silently: %+v", d)
	}
	if len(f.notices) != 1 {
		t.Fatalf("notices = %d after repeat, want still 1", len(f.notices))
	}
}

func TestDM_PairingApprovalAdmits(t *testing.T) {
	f := newGate(t, ChannelConfig{DMEnabled: true, DMPolicy: DMPairing})
	ev := dmEvent("u42@msg.talkapp.chat/phone", "hello?")

	d := f.gate.Decide(context.Background(), ev)
	if _, err := f.store.Approve(context.Background(), "talk", d.PairingCodeIssued); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	d = f.gate.Decide(context.Background(), ev)
	if !d.Admit {
		t.Fatalf("approved sender must be admitted: %+v", d)
	}
}

func TestGroup_Disabled(t *testing.T) {
	f := newGate(t, ChannelConfig{GroupPolicy: GroupDisabled})
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "@bot hi")); d.Admit {
		t.Fatalf("disabled group policy must deny: %+v", d)
	}
}

func TestGroup_AllowlistRequiresConfigEntry(t *testing.T) {
	cfg := ChannelConfig{
		GroupPolicy:     GroupAllowlist,
		MentionPatterns: []string{"@bot"},
	}
	f := newGate(t, cfg)

	// No configuration entry: deny even with a mention.
	d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "@bot hi"))
	if d.Admit {
		t.Fatalf("unconfigured group must be denied: %+v", d)
	}

	// Entry present but disabled: still denied.
	cfg.Groups = []GroupConfig{{ChatID: "g7", Enabled: false}}
	f = newGate(t, cfg)
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "@bot hi")); d.Admit {
		t.Fatalf("disabled group must be denied: %+v", d)
	}

	// Enabled entry with a mention: admitted.
	cfg.Groups = []GroupConfig{{ChatID: "g7", Enabled: true}}
	f = newGate(t, cfg)
	d = f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "@bot hi"))
	if !d.Admit || !d.Mentioned {
		t.Fatalf("enabled group with mention must be admitted: %+v", d)
	}
}

func TestGroup_MemberAllowlist(t *testing.T) {
	cfg := ChannelConfig{
		GroupPolicy:     GroupAllowlist,
		MentionPatterns: []string{"@bot"},
		Groups: []GroupConfig{{
			ChatID:    "g7",
			Enabled:   true,
			AllowList: []string{"u42", "Ada Lovelace"},
		}},
	}
	f := newGate(t, cfg)

	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "@bot hi")); !d.Admit {
		t.Fatalf("listed member must be admitted: %+v", d)
	}

	ev := groupEvent("g7@conference.talkapp.chat/u99", "@bot hi")
	ev.SenderName = "Ada Lovelace"
	if d := f.gate.Decide(context.Background(), ev); !d.Admit {
		t.Fatalf("display-name match must be admitted: %+v", d)
	}

	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u99", "@bot hi")); d.Admit {
		t.Fatalf("unlisted member must be denied: %+v", d)
	}
}

func TestGroup_MentionRequirement(t *testing.T) {
	base := ChannelConfig{
		GroupPolicy:     GroupOpen,
		MentionPatterns: []string{"@bot"},
	}

	// Default: mention required.
	f := newGate(t, base)
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "just chatting")); d.Admit {
		t.Fatalf("missing mention must deny by default: %+v", d)
	}

	// Explicitly no mention needed.
	cfg := base
	cfg.Groups = []GroupConfig{{ChatID: "g7", Enabled: true, ReplyWithoutMention: boolPtr(true)}}
	f = newGate(t, cfg)
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "just chatting")); !d.Admit {
		t.Fatalf("reply_without_mention=true must admit: %+v", d)
	}

	// Explicitly required.
	cfg.Groups = []GroupConfig{{ChatID: "g7", Enabled: true, ReplyWithoutMention: boolPtr(false)}}
	f = newGate(t, cfg)
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "just chatting")); d.Admit {
		t.Fatalf("reply_without_mention=false must deny without mention: %+v", d)
	}
}

func TestGroup_CommandBypass(t *testing.T) {
	cfg := ChannelConfig{
		GroupPolicy:          GroupOpen,
		MentionPatterns:      []string{"@bot"},
		AccessGroupsRequired: true,
		AllowList:            []string{"u42"},
	}
	f := newGate(t, cfg)

	// No mention, no command: denied.
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "status please")); d.Admit {
		t.Fatalf("plain message without mention must deny: %+v", d)
	}

	// Same sender, authorized command: admitted despite missing mention.
	d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u42", "/status"))
	if !d.Admit || !d.CommandAuthorized {
		t.Fatalf("authorized command must bypass mention: %+v", d)
	}

	// Unauthorized sender's command: denied.
	if d := f.gate.Decide(context.Background(), groupEvent("g7@conference.talkapp.chat/u99", "/status")); d.Admit {
		t.Fatalf("unauthorized command must not bypass: %+v", d)
	}
}
