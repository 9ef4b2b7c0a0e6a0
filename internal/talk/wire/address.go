package wire

import "strings"

// Address domain suffixes (wire-stable).
//
// Direct chats route through the user domain, group chats through the
// conference domain. The login domain is the literal value the platform
// expects during SASL binding regardless of the account's real domain.
const (
	DomainDirect = "msg.talkapp.chat"
	DomainGroup  = "conference.talkapp.chat"
	DomainLogin  = "talkapp.chat"
)

// IsGroupAddress reports whether addr routes to a group chat.
func IsGroupAddress(addr string) bool {
	return strings.HasSuffix(strings.ToLower(Bare(addr)), "@"+DomainGroup)
}

// IsDirectAddress reports whether addr routes to a direct (1:1) chat.
func IsDirectAddress(addr string) bool {
	return strings.HasSuffix(strings.ToLower(Bare(addr)), "@"+DomainDirect)
}

// IsAddress reports whether s is already a routable platform address
// (direct or group), as opposed to a human-entered name or raw id.
func IsAddress(s string) bool {
	return IsDirectAddress(s) || IsGroupAddress(s)
}

// Bare strips the connection resource suffix from an address.
// "u123@msg.talkapp.chat/desktop-abc" -> "u123@msg.talkapp.chat".
func Bare(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// LocalPart returns the identifier before the domain, or the input
// unchanged when no domain is present.
func LocalPart(addr string) string {
	addr = Bare(addr)
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// DirectAddress builds a direct-chat address from a bare user id.
func DirectAddress(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID)) + "@" + DomainDirect
}

// GroupAddress builds a group-chat address from a bare group id.
func GroupAddress(groupID string) string {
	return strings.ToLower(strings.TrimSpace(groupID)) + "@" + DomainGroup
}
