// Package id generates identifiers for long-running operations such as sync
// and reindex runs, so their log lines can be correlated.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for operation run ids.
const (
	PrefixSync    = "sync"
	PrefixReindex = "reindex"
	PrefixMigrate = "migrate"
)

// runAlphabet avoids characters that are awkward to copy out of chat clients.
const runAlphabet = "0123456789abcdefghijkmnpqrstuvwxyz"

const runLength = 12

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "sync-k3v9x0q2m7ab").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(runAlphabet, runLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
