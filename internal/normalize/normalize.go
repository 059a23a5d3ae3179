// Package normalize folds user-typed meme names into the canonical form used
// for storage and lookup.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Name returns the canonical stored form of a library name: NFC composed,
// stripped of null bytes and surrounding whitespace, lower-cased rune by rune.
//
// Folding is rune-local after composition, so for any prefix p of a folded
// name n, Name(p) is a prefix of n. Trigger matching relies on that.
func Name(raw string) string {
	s := strings.TrimSpace(sanitizeString(norm.NFC.String(raw)))
	return strings.Map(unicode.ToLower, s)
}

// Trigger prepares free trigger text for prefix matching. Case is left alone
// so the caller can echo what the user typed; matching folds separately.
func Trigger(raw string) string {
	return strings.TrimSpace(sanitizeString(norm.NFC.String(raw)))
}

// IsFolded reports whether s is already in canonical name form.
func IsFolded(s string) bool {
	return Name(s) == s
}

// sanitizeString removes null bytes, which some chat clients leave in
// message text and which SQLite treats as string terminators in places.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
