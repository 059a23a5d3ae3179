// Package search indexes library names for trigger matching and suggestions.
//
// Two structures are kept side by side. A rune trie per context answers
// "which registered names are prefixes of this text" in one walk, which is
// what trigger resolution needs. A bleve index over the same names answers
// fuzzy "did you mean" queries when nothing matched.
package search

import (
	"github.com/feiju-bot/feiju/internal/domain"
)

// nameDocument is the bleve document for one bound name.
type nameDocument struct {
	ID      string
	Context string
	Name    string
	Library int64
}

// docID keys a document by (context, name). The separator cannot appear in
// a folded name because control characters never survive chat input.
func docID(contextID, name string) string {
	return contextID + "\x1f" + name
}

func newNameDocument(b domain.NameBinding) *nameDocument {
	return &nameDocument{
		ID:      docID(b.Context, b.Name),
		Context: b.Context,
		Name:    b.Name,
		Library: int64(b.LibraryID),
	}
}

// ToMap converts the document to a map with the field names of the mapping.
func (d *nameDocument) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"context": d.Context,
		"name":    d.Name,
		"library": float64(d.Library),
	}
}
