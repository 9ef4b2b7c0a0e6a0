package wire

import (
	"encoding/base64"
	"time"
)

// NewTextMessage builds an outbound text stanza. The returned id is the
// envelope's embedded id, not the stanza id: that is the identifier the
// platform treats as canonical for dedupe across carbons and echoes.
func NewTextMessage(addr, senderName, text string, now time.Time) (Message, string, error) {
	envID := NewID(now)
	body, err := NewTextEnvelope(senderName, text, envID).Encode()
	if err != nil {
		return Message{}, "", err
	}

	msg := Message{
		Type:     stanzaTypeFor(addr),
		To:       addr,
		ID:       NewID(now),
		Body:     body,
		OriginID: &OriginID{Xmlns: nsOriginID, ID: envID},
	}
	return msg, envID, nil
}

// NewMediaMessage builds an outbound media stanza. The caption rides in
// the body, the descriptor in the media element (only attributes that
// are present are emitted). Returns the stanza id.
func NewMediaMessage(addr string, media Media, caption, nick string, now time.Time) (Message, string) {
	media.Xmlns = nsMedia

	msg := Message{
		Type:  stanzaTypeFor(addr),
		To:    addr,
		ID:    NewID(now),
		Body:  caption,
		Media: &media,
		Nick:  nick,
	}
	return msg, msg.ID
}

// NewSASLAuth builds the PLAIN authentication stanza. The username is
// the platform user id, the password the chat-specific access token. The
// authorization identity carries the fixed login-domain placeholder plus
// the device's persistent resource; this is the only place the resource
// reaches the wire, so reusing the stored resource string is what makes
// re-authentication land on the same logical device.
func NewSASLAuth(userID, chatToken, resource string) SASLAuth {
	authzid := userID + "@" + DomainLogin
	if resource != "" {
		authzid += "/" + resource
	}
	payload := authzid + "\x00" + userID + "\x00" + chatToken
	return SASLAuth{
		Xmlns:     nsSASL,
		Mechanism: "PLAIN",
		Payload:   base64.StdEncoding.EncodeToString([]byte(payload)),
	}
}
