package domain

import (
	"strings"
	"unicode"
)

// PrivatePrefix marks a context key that belongs to a private conversation.
const PrivatePrefix = "private_"

// PrivateContext returns the context key for a private conversation with userID.
func PrivateContext(userID string) string {
	return PrivatePrefix + userID
}

// IsPrivateContext reports whether ctx is a private conversation key.
func IsPrivateContext(ctx string) bool {
	return strings.HasPrefix(ctx, PrivatePrefix)
}

// ParseContextToken expands the sync shorthand: a token starting with p or P
// followed by digits means the private conversation with that user. Any other
// token is returned as a raw context key.
func ParseContextToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || (raw[0] != 'p' && raw[0] != 'P') {
		return raw
	}
	rest := raw[1:]
	for _, r := range rest {
		if !unicode.IsDigit(r) {
			return raw
		}
	}
	return PrivateContext(rest)
}
