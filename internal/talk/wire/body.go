package wire

import (
	"encoding/json"
	"strings"
)

// OriginTag identifies this client in outbound body envelopes.
const OriginTag = "talkwire"

// BodyEnvelope is the JSON payload carried inside a message body for rich
// messages. Legacy/plain stanzas carry bare text instead; DecodeBody
// tolerates both.
type BodyEnvelope struct {
	SenderName string   `json:"senderName,omitempty"`
	Ver        int      `json:"ver"`
	Info       BodyInfo `json:"info"`
	ID         string   `json:"id,omitempty"`
	Type       string   `json:"type,omitempty"`
	Lang       string   `json:"lang,omitempty"`
	IsFwd      bool     `json:"isFwd"`
	Origin     string   `json:"origin,omitempty"`
}

// BodyInfo holds the human-readable content. Message takes precedence
// over Caption when both are present.
type BodyInfo struct {
	Message string `json:"message,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// NewTextEnvelope builds the canonical outbound body envelope for text.
// The embedded id is what the platform treats as canonical for dedupe
// across carbons and echoes.
func NewTextEnvelope(senderName, text, id string) BodyEnvelope {
	return BodyEnvelope{
		SenderName: senderName,
		Ver:        1,
		Info:       BodyInfo{Message: text},
		ID:         id,
		Type:       "text",
		Lang:       "en",
		IsFwd:      false,
		Origin:     OriginTag,
	}
}

// Encode marshals the envelope into the stanza body string.
func (e BodyEnvelope) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodedBody is the result of interpreting a stanza body.
type DecodedBody struct {
	Text       string
	ID         string
	SenderName string
}

// DecodeBody interprets a stanza body string. A parseable envelope yields
// info.message (or info.caption); anything else is returned verbatim.
func DecodeBody(raw string) DecodedBody {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return DecodedBody{Text: raw}
	}

	var env BodyEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return DecodedBody{Text: raw}
	}

	// A parseable envelope with no message and no caption is a non-text
	// rich event (sticker, reaction); the caller drops empty bodies.
	text := env.Info.Message
	if text == "" {
		text = env.Info.Caption
	}

	return DecodedBody{Text: text, ID: env.ID, SenderName: env.SenderName}
}
