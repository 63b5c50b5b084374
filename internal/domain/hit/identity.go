package hit

import "strings"

const sha1URNPrefix = "urn:sha1:"

// Identity is an opaque strong content identity (a content hash). The zero value means "none".
type Identity string

// ParseIdentity normalizes a content hash. Accepts "urn:sha1:<base32>" or a bare hash.
// Returns the zero Identity for empty input.
func ParseIdentity(s string) Identity {
	s = strings.TrimSpace(s)
	if len(s) >= len(sha1URNPrefix) && strings.EqualFold(s[:len(sha1URNPrefix)], sha1URNPrefix) {
		s = s[len(sha1URNPrefix):]
	}
	return Identity(strings.ToUpper(s))
}

// IsZero reports whether the identity is absent.
func (id Identity) IsZero() bool { return id == "" }

// String returns the identity as a string.
func (id Identity) String() string { return string(id) }
