package wire

import "encoding/xml"

// Stanza type attributes (wire-stable).
const (
	TypeChat      = "chat"
	TypeGroupchat = "groupchat"
)

// XML namespaces used by the platform's stanza dialect.
const (
	nsSASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsSession  = "urn:ietf:params:xml:ns:xmpp-session"
	nsRoster   = "jabber:iq:roster"
	nsCarbons  = "urn:xmpp:carbons:2"
	nsOriginID = "urn:xmpp:sid:0"
	nsChatStat = "http://jabber.org/protocol/chatstates"
	nsMAM      = "urn:xmpp:mam:2"
	nsForward  = "urn:xmpp:forward:0"
	nsDelay    = "urn:xmpp:delay"
	nsMedia    = "urn:talkapp:media:1"
)

// Message is a message stanza. Optional children cover the platform's
// rich-message extensions: origin-id for client-side dedupe, a media
// descriptor, chat states, and the archive (MAM) result envelope.
type Message struct {
	XMLName xml.Name `xml:"message"`
	Type    string   `xml:"type,attr,omitempty"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	ID      string   `xml:"id,attr,omitempty"`

	Body     string    `xml:"body,omitempty"`
	OriginID *OriginID `xml:"origin-id,omitempty"`
	Media    *Media    `xml:"media,omitempty"`
	Nick     string    `xml:"nick,omitempty"`

	Composing *ChatState `xml:"composing,omitempty"`
	Paused    *ChatState `xml:"paused,omitempty"`

	Result *MAMResult `xml:"result,omitempty"`
	Delay  *Delay     `xml:"delay,omitempty"`
}

// OriginID is the client-asserted stable id (urn:xmpp:sid:0).
type OriginID struct {
	XMLName xml.Name `xml:"origin-id"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	ID      string   `xml:"id,attr"`
}

// ChatState is an empty chat-state marker element.
type ChatState struct {
	Xmlns string `xml:"xmlns,attr,omitempty"`
}

// Media describes an out-of-band media attachment. Only attributes that
// are known are emitted.
type Media struct {
	XMLName  xml.Name `xml:"media"`
	Xmlns    string   `xml:"xmlns,attr,omitempty"`
	Type     string   `xml:"type,attr,omitempty"`
	URL      string   `xml:"url,attr,omitempty"`
	ID       string   `xml:"id,attr,omitempty"`
	Name     string   `xml:"name,attr,omitempty"`
	Size     int64    `xml:"size,attr,omitempty"`
	MimeType string   `xml:"mimeType,attr,omitempty"`
	Duration int64    `xml:"duration,attr,omitempty"`
	Thumb    string   `xml:"thumbnail,attr,omitempty"`
}

// MAMResult wraps an archived message (urn:xmpp:mam:2).
type MAMResult struct {
	XMLName   xml.Name   `xml:"result"`
	ID        string     `xml:"id,attr,omitempty"`
	Forwarded *Forwarded `xml:"forwarded,omitempty"`
}

// Forwarded carries the archived inner message plus its delay stamp.
type Forwarded struct {
	XMLName xml.Name `xml:"forwarded"`
	Delay   *Delay   `xml:"delay,omitempty"`
	Message *Message `xml:"message,omitempty"`
}

// Delay is the archived delivery timestamp (urn:xmpp:delay).
// Stamp is RFC 3339.
type Delay struct {
	XMLName xml.Name `xml:"delay"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Stamp   string   `xml:"stamp,attr"`
}

// Presence is an outbound presence declaration. The platform does not
// deliver messages to absent-presence connections, so one must be sent
// immediately after session establishment.
type Presence struct {
	XMLName xml.Name `xml:"presence"`
	ID      string   `xml:"id,attr,omitempty"`
	Show    string   `xml:"show,omitempty"`
}

// IQ is an info/query stanza.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	Type    string   `xml:"type,attr"`
	ID      string   `xml:"id,attr"`

	Session *xmlnsOnly `xml:"session,omitempty"`
	Enable  *xmlnsOnly `xml:"enable,omitempty"`
	Query   *xmlnsOnly `xml:"query,omitempty"`
}

type xmlnsOnly struct {
	Xmlns string `xml:"xmlns,attr"`
}

// SASLAuth opens authentication over the established transport.
type SASLAuth struct {
	XMLName   xml.Name `xml:"auth"`
	Xmlns     string   `xml:"xmlns,attr"`
	Mechanism string   `xml:"mechanism,attr"`
	Payload   string   `xml:",chardata"`
}

// SASLSuccess is the server's acceptance of authentication.
type SASLSuccess struct {
	XMLName xml.Name `xml:"success"`
}

// SASLFailure is the server's rejection of authentication.
type SASLFailure struct {
	XMLName xml.Name `xml:"failure"`
	Text    string   `xml:"text,omitempty"`
}

// NewSessionIQ builds the session-establishment request.
func NewSessionIQ(id string) IQ {
	return IQ{Type: "set", ID: id, Session: &xmlnsOnly{Xmlns: nsSession}}
}

// NewCarbonsEnableIQ builds the message-carbons enable request, so copies
// of messages sent from the account's other devices are also delivered.
func NewCarbonsEnableIQ(id string) IQ {
	return IQ{Type: "set", ID: id, Enable: &xmlnsOnly{Xmlns: nsCarbons}}
}

// NewRosterIQ builds the roster request. Fire-and-forget: the reply is
// not required for correctness but the platform expects the request.
func NewRosterIQ(id string) IQ {
	return IQ{Type: "get", ID: id, Query: &xmlnsOnly{Xmlns: nsRoster}}
}

// NewComposing builds a composing chat-state notification for addr.
func NewComposing(addr string) Message {
	return Message{Type: stanzaTypeFor(addr), To: addr, Composing: &ChatState{Xmlns: nsChatStat}}
}

// NewPaused builds a paused chat-state notification for addr.
func NewPaused(addr string) Message {
	return Message{Type: stanzaTypeFor(addr), To: addr, Paused: &ChatState{Xmlns: nsChatStat}}
}

func stanzaTypeFor(addr string) string {
	if IsGroupAddress(addr) {
		return TypeGroupchat
	}
	return TypeChat
}
