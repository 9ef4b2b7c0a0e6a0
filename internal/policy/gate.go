// Package policy decides, per inbound message, whether the automated
// responder may act: direct-message policy, group policy, mention
// detection, and pairing-code issuance for unknown senders.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"talkwire/internal/pairing"
	"talkwire/internal/talk/wire"
)

// Decision is the per-event verdict. Derived, never stored: allow-lists
// and group configuration may change between messages.
type Decision struct {
	Admit  bool
	Reason string

	// PairingCodeIssued is set when this event created a new pairing
	// request (the one case with a sender-visible side effect).
	PairingCodeIssued string

	Mentioned         bool
	CommandAuthorized bool

	// Group is the matched configuration entry for group events.
	Group *GroupConfig
}

// Notifier delivers the one-time pairing notice to a requester.
type Notifier func(ctx context.Context, addr, code string) error

// Gate evaluates inbound events against channel policy.
type Gate struct {
	cfg     func() ChannelConfig
	pairing pairing.Store
	notify  Notifier
	log     *slog.Logger
}

// NewGate constructs a Gate. cfg is called per decision so edited
// policy files take effect between messages. notify may be nil (pairing
// notices are then skipped, but requests are still recorded).
func NewGate(cfg func() ChannelConfig, store pairing.Store, notify Notifier, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{cfg: cfg, pairing: store, notify: notify, log: log}
}

// Decide computes the admit/deny/pair verdict for one event.
// Denials are expected and frequent; they log at debug only.
func (g *Gate) Decide(ctx context.Context, ev wire.Event) Decision {
	cfg := g.cfg()

	var d Decision
	if ev.Kind == wire.KindGroup {
		d = g.decideGroup(ctx, cfg, ev)
	} else {
		d = g.decideDirect(ctx, cfg, ev)
	}

	if !d.Admit {
		g.log.Debug("policy.deny", "from", ev.From, "reason", d.Reason)
	}
	return d
}

// ---- direct messages ----

func (g *Gate) decideDirect(ctx context.Context, cfg ChannelConfig, ev wire.Event) Decision {
	if !cfg.DMEnabled || cfg.DMPolicy == DMDisabled {
		return Decision{Reason: "dm handling disabled"}
	}
	if cfg.DMPolicy == DMOpen {
		return Decision{Admit: true, Reason: "dm policy open"}
	}

	senderID := wire.LocalPart(ev.From)
	allow := g.combinedAllow(ctx, cfg)
	permitted := matchAllow(allow, senderID, ev.From)

	if permitted {
		return Decision{Admit: true, Reason: "sender allowed"}
	}

	switch cfg.DMPolicy {
	case DMPairing:
		return g.pair(ctx, cfg, ev, senderID)
	default: // DMAllowlist
		return Decision{Reason: "sender not in allow-list"}
	}
}

func (g *Gate) pair(ctx context.Context, cfg ChannelConfig, ev wire.Event, senderID string) Decision {
	meta := map[string]string{"name": ev.SenderName, "address": wire.Bare(ev.From)}

	code, created, err := g.pairing.Upsert(ctx, cfg.Channel, senderID, meta)
	if err != nil {
		g.log.Warn("policy.pairing.fail", "sender", senderID, "err", err)
		return Decision{Reason: "pairing store unavailable"}
	}
	if !created {
		// Repeat message from a still-unapproved sender: deny silently,
		// no repeated pairing-code spam.
		return Decision{Reason: "pairing pending"}
	}

	if g.notify != nil {
		notice := fmt.Sprintf(
			"Your messages are not paired yet. Pairing code: %s\nAsk the bot owner to run: pair approve %s",
			code, code)
		if err := g.notify(ctx, wire.Bare(ev.From), notice); err != nil {
			g.log.Warn("policy.pairing.notify.fail", "sender", senderID, "err", err)
		}
	}
	return Decision{Reason: "pairing code issued", PairingCodeIssued: code}
}

// ---- group messages ----

func (g *Gate) decideGroup(ctx context.Context, cfg ChannelConfig, ev wire.Event) Decision {
	if cfg.GroupPolicy == GroupDisabled {
		return Decision{Reason: "group handling disabled"}
	}

	chatID := wire.LocalPart(ev.From)
	senderID := groupSender(ev.From)

	gc := findGroup(cfg.Groups, chatID)
	if gc == nil {
		gc = findGroup(cfg.Groups, senderID)
	}

	if cfg.GroupPolicy == GroupAllowlist {
		if gc == nil || !gc.Enabled {
			return Decision{Reason: "group not configured"}
		}
		if len(gc.AllowList) > 0 && !matchGroupMember(gc.AllowList, senderID, ev.SenderName) {
			return Decision{Group: gc, Reason: "group member not allowed"}
		}
	}

	mentioned := mentionMatch(cfg.MentionPatterns, ev.Body)
	cmdAuthorized := g.commandAuthorized(ctx, cfg, senderID, ev.From)

	if mentionRequired(gc) && !mentioned {
		if isCommand(ev.Body) && cmdAuthorized {
			return Decision{
				Admit:             true,
				Reason:            "authorized command bypasses mention",
				CommandAuthorized: true,
				Group:             gc,
			}
		}
		return Decision{Group: gc, Reason: "mention required"}
	}

	return Decision{
		Admit:             true,
		Reason:            "group policy satisfied",
		Mentioned:         mentioned,
		CommandAuthorized: cmdAuthorized,
		Group:             gc,
	}
}

// mentionRequired resolves the three-state per-group setting; the
// default is "mention required".
func mentionRequired(gc *GroupConfig) bool {
	if gc != nil && gc.ReplyWithoutMention != nil {
		return !*gc.ReplyWithoutMention
	}
	return true
}

// ---- matching primitives ----

func (g *Gate) combinedAllow(ctx context.Context, cfg ChannelConfig) []string {
	allow := append([]string(nil), cfg.AllowList...)
	if g.pairing != nil {
		dynamic, err := g.pairing.ReadAllow(ctx, cfg.Channel)
		if err != nil {
			g.log.Warn("policy.allow.read.fail", "err", err)
		} else {
			allow = append(allow, dynamic...)
		}
	}
	return allow
}

func (g *Gate) commandAuthorized(ctx context.Context, cfg ChannelConfig, senderID, from string) bool {
	if !cfg.AccessGroupsRequired {
		return true
	}
	return matchAllow(g.combinedAllow(ctx, cfg), senderID, from)
}

// matchAllow matches a sender against an allow-list by wildcard, bare
// sender id, full from-address, or bare from-address.
func matchAllow(allow []string, senderID, from string) bool {
	bare := wire.Bare(from)
	for _, entry := range allow {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if strings.EqualFold(entry, senderID) ||
			strings.EqualFold(entry, from) ||
			strings.EqualFold(entry, bare) {
			return true
		}
	}
	return false
}

// matchGroupMember matches by wildcard, sender id, or display name.
func matchGroupMember(allow []string, senderID, displayName string) bool {
	for _, entry := range allow {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" ||
			strings.EqualFold(entry, senderID) ||
			(displayName != "" && strings.EqualFold(entry, displayName)) {
			return true
		}
	}
	return false
}

func mentionMatch(patterns []string, body string) bool {
	lower := strings.ToLower(body)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isCommand(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "/")
}

// groupSender extracts the member id from a group origin address:
// "g7@conference.talkapp.chat/u42" -> "u42".
func groupSender(from string) string {
	if i := strings.IndexByte(from, '/'); i >= 0 {
		return from[i+1:]
	}
	return wire.LocalPart(from)
}

func findGroup(groups []GroupConfig, id string) *GroupConfig {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	for i := range groups {
		if strings.EqualFold(groups[i].ChatID, id) {
			return &groups[i]
		}
	}
	return nil
}
