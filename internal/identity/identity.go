// Package identity canonicalizes raw WhatsApp contact and group identifiers
// so the rest of the system can compare them structurally.
package identity

import "strings"

const (
	// UserServer is the domain suffix of an individual chat JID.
	UserServer = "s.whatsapp.net"
	// GroupServer is the domain suffix of a group chat JID.
	GroupServer = "g.us"
)

// Kind of a canonical identity.
const (
	KindUser       = "user"
	KindIndividual = "individual"
	KindGroup      = "group"
)

// Normalize returns the canonical form of a raw identifier. It is total and
// idempotent: phone-like inputs are reduced to bare digits, identifiers
// already carrying a known server suffix keep it with the local part
// cleaned, and anything else passes through trimmed.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if local, ok := cutSuffix(s, "@"+GroupServer); ok {
		return strings.TrimSpace(local) + "@" + GroupServer
	}
	if local, ok := cutSuffix(s, "@"+UserServer); ok {
		return digits(local) + "@" + UserServer
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		// unknown server, keep as-is with trimmed parts
		return strings.TrimSpace(s[:i]) + s[i:]
	}
	return digits(s)
}

// Same reports whether two raw identifiers denote the same conversation.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsGroup reports whether the identifier denotes a group chat.
func IsGroup(id string) bool {
	return strings.HasSuffix(Normalize(id), "@"+GroupServer)
}

// Kind classifies a normalized identifier.
func Kind(id string) string {
	n := Normalize(id)
	switch {
	case strings.HasSuffix(n, "@"+GroupServer):
		return KindGroup
	case strings.HasSuffix(n, "@"+UserServer):
		return KindIndividual
	default:
		return KindUser
	}
}

// ToUserJID upgrades a bare number to the individual JID form. Group and
// already-suffixed identifiers are returned normalized, unchanged in kind.
func ToUserJID(id string) string {
	n := Normalize(id)
	if n == "" || strings.ContainsRune(n, '@') {
		return n
	}
	return n + "@" + UserServer
}

// BareNumber strips the server suffix from an individual identity. Group
// identities have no number form and yield "".
func BareNumber(id string) string {
	n := Normalize(id)
	if strings.HasSuffix(n, "@"+GroupServer) {
		return ""
	}
	if i := strings.IndexByte(n, '@'); i >= 0 {
		return n[:i]
	}
	return n
}

// ValidPhone reports whether raw reduces to a non-empty digit string,
// the precondition for issuing a pairing connect.
func ValidPhone(raw string) bool {
	d := digits(raw)
	return d != "" && d == Normalize(raw)
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cutSuffix(s, suffix string) (string, bool) {
	if strings.HasSuffix(s, suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}
