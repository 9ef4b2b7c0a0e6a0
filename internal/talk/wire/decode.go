package wire

import (
	"encoding/xml"
	"strings"
	"time"
)

// ChatKind distinguishes direct and group events.
type ChatKind string

const (
	KindDirect ChatKind = "direct"
	KindGroup  ChatKind = "group"
)

// Event is one decoded inbound message. Immutable; consumed exactly once
// by the handler pipeline.
type Event struct {
	ID         string
	From       string
	To         string
	Kind       ChatKind
	Body       string
	Timestamp  time.Time
	SenderName string
}

// DecodeMessage turns a raw message stanza into an Event.
//
// Returns ok=false for stanzas that are intentionally ignored: self
// echoes, archive wrappers without an inner message, and stanzas with no
// extractable body (receipts, chat states, non-text rich events). That is
// not an error condition.
func DecodeMessage(selfUserID string, raw []byte, now time.Time) (Event, bool) {
	var msg Message
	if err := xml.Unmarshal(raw, &msg); err != nil {
		return Event{}, false
	}
	return decodeStanza(selfUserID, &msg, now)
}

func decodeStanza(selfUserID string, msg *Message, now time.Time) (Event, bool) {
	timestamp := now

	// Archive envelope: unwrap to the inner forwarded message and prefer
	// its delay stamp over wall-clock receive time.
	if msg.Result != nil {
		fwd := msg.Result.Forwarded
		if fwd == nil || fwd.Message == nil {
			return Event{}, false
		}
		if fwd.Delay != nil {
			if ts, err := time.Parse(time.RFC3339, fwd.Delay.Stamp); err == nil {
				timestamp = ts
			}
		}
		msg = fwd.Message
	} else if msg.Delay != nil {
		if ts, err := time.Parse(time.RFC3339, msg.Delay.Stamp); err == nil {
			timestamp = ts
		}
	}

	// Self-echo suppression: our own id embedded anywhere in the origin
	// address means this is a copy of something we sent.
	selfUserID = strings.ToLower(strings.TrimSpace(selfUserID))
	if selfUserID != "" && strings.Contains(strings.ToLower(msg.From), selfUserID) {
		return Event{}, false
	}

	body := DecodeBody(msg.Body)
	if strings.TrimSpace(body.Text) == "" {
		return Event{}, false
	}

	kind := KindDirect
	if msg.Type == TypeGroupchat || IsGroupAddress(msg.From) {
		kind = KindGroup
	}

	id := body.ID
	if id == "" {
		id = msg.ID
	}
	if id == "" {
		id = NewID(timestamp)
	}

	return Event{
		ID:         id,
		From:       msg.From,
		To:         msg.To,
		Kind:       kind,
		Body:       body.Text,
		Timestamp:  timestamp,
		SenderName: body.SenderName,
	}, true
}
