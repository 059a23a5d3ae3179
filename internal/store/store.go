// Package store defines the persistence interface for the meme library.
package store

import (
	"context"

	"github.com/feiju-bot/feiju/internal/domain"
)

// HashComparator decides whether two persisted perceptual hashes count as
// the same image.
type HashComparator interface {
	SameString(a, b string) bool
}

// LibraryStore maps (name, context) pairs to libraries and libraries to images.
//
// Names passed in must already be folded (see package normalize). Every
// multi-statement mutation runs in a single transaction.
type LibraryStore interface {
	// Lifecycle
	Close() error
	SetNameIndexer(indexer NameIndexer)

	// Libraries and names
	ResolveLibrary(ctx context.Context, name, contextID string) (domain.LibraryID, error)
	CreateLibrary(ctx context.Context, name, contextID string) (domain.LibraryID, error)
	BindName(ctx context.Context, name string, id domain.LibraryID, contextID string) (bool, error)
	UnbindName(ctx context.Context, name, contextID string) (bool, error)
	MergeLibraries(ctx context.Context, src, dst domain.LibraryID) error
	ListNames(ctx context.Context, id domain.LibraryID) ([]string, error)
	GetLibrary(ctx context.Context, id domain.LibraryID) (*domain.Library, error)
	ListLibraries(ctx context.Context, contextID string) ([]*domain.Library, error)
	ListContexts(ctx context.Context) ([]string, error)
	AllNames(ctx context.Context) ([]domain.NameBinding, error)

	// Images
	AddImage(ctx context.Context, id domain.LibraryID, data []byte, hash string) (int64, error)
	AddImageIfUnique(ctx context.Context, id domain.LibraryID, data []byte, hash string, cmp HashComparator) (*domain.Image, int64, error)
	ListImages(ctx context.Context, id domain.LibraryID) ([]*domain.Image, error)
	ListImageRefs(ctx context.Context, id domain.LibraryID) ([]domain.ImageRef, error)
	GetImage(ctx context.Context, imageID int64) (*domain.Image, error)
	RandomImage(ctx context.Context, id domain.LibraryID) (*domain.Image, error)
	DeleteImageByHash(ctx context.Context, id domain.LibraryID, hash string, cmp HashComparator) (bool, error)
	CopyImages(ctx context.Context, src, dst domain.LibraryID, cmp HashComparator) (copied, skipped int, err error)
	ForEachImage(ctx context.Context, fn func(*domain.Image) error) error
	UpdateImage(ctx context.Context, imageID int64, data []byte, hash string) error

	Stats(ctx context.Context) (domain.Stats, error)
}

// NameIndexer is notified after name bindings change. Calls happen after the
// owning transaction commits.
type NameIndexer interface {
	NameBound(ctx context.Context, binding domain.NameBinding)
	NameUnbound(ctx context.Context, contextID, name string)
}

// NoopNameIndexer is a no-op implementation for testing.
type NoopNameIndexer struct{}

func (NoopNameIndexer) NameBound(context.Context, domain.NameBinding) {}
func (NoopNameIndexer) NameUnbound(context.Context, string, string)  {}

// NewNoopNameIndexer creates a new no-op name indexer.
func NewNoopNameIndexer() NameIndexer { return NoopNameIndexer{} }
