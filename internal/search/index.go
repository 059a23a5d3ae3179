package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/normalize"
	"github.com/feiju-bot/feiju/internal/store"
)

// NameSource lists every bound name. The library store satisfies it.
type NameSource interface {
	AllNames(ctx context.Context) ([]domain.NameBinding, error)
}

// NameIndex keeps the name trie and suggestion index in step with the store.
//
// Thread safety: All public methods are safe for concurrent use.
// The mutex guards the tries and the index swap during Rebuild.
type NameIndex struct {
	mu     sync.RWMutex
	tries  map[string]*trieNode
	index  bleve.Index
	logger *slog.Logger

	// While a rebuild is in flight, changes are also journaled and replayed
	// onto the new state at the swap, since its snapshot may predate them.
	rebuilding int
	journal    []nameEvent
}

type nameEvent struct {
	binding domain.NameBinding
	unbound bool
}

var _ store.NameIndexer = (*NameIndex)(nil)

// Options configures the name index.
type Options struct {
	Logger *slog.Logger // Logger for operations (uses stderr if nil)
}

// NewNameIndex creates an empty in-memory name index.
// Call Rebuild or Load to fill it from the store.
func NewNameIndex(opts Options) (*NameIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &NameIndex{
		tries:  make(map[string]*trieNode),
		index:  index,
		logger: logger,
	}, nil
}

// Close releases the suggestion index.
func (x *NameIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}

// NameBound records a new or moved binding.
func (x *NameIndex) NameBound(_ context.Context, b domain.NameBinding) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record(nameEvent{binding: b})
}

// NameUnbound forgets a binding.
func (x *NameIndex) NameUnbound(_ context.Context, contextID, name string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record(nameEvent{binding: domain.NameBinding{Context: contextID, Name: name}, unbound: true})
}

// record applies ev and journals it for running rebuilds. Callers hold mu.
func (x *NameIndex) record(ev nameEvent) {
	x.apply(ev)
	if x.rebuilding > 0 {
		x.journal = append(x.journal, ev)
	}
}

// apply changes the current tries and index. Callers hold mu.
func (x *NameIndex) apply(ev nameEvent) {
	b := ev.binding
	if ev.unbound {
		if root, ok := x.tries[b.Context]; ok {
			root.remove(b.Name)
			if root.empty() {
				delete(x.tries, b.Context)
			}
		}
		if err := x.index.Delete(docID(b.Context, b.Name)); err != nil {
			x.logger.Warn("failed to unindex name", "name", b.Name, "context", b.Context, "error", err)
		}
		return
	}

	root, ok := x.tries[b.Context]
	if !ok {
		root = newTrieNode()
		x.tries[b.Context] = root
	}
	root.insert(b.Name, b.LibraryID)

	doc := newNameDocument(b)
	if err := x.index.Index(doc.ID, doc.ToMap()); err != nil {
		x.logger.Warn("failed to index name", "name", b.Name, "context", b.Context, "error", err)
	}
}

func (x *NameIndex) beginRebuild() {
	x.mu.Lock()
	x.rebuilding++
	x.mu.Unlock()
}

// endRebuild drops the journal once no rebuild needs it. Callers hold mu.
func (x *NameIndex) endRebuild() {
	x.rebuilding--
	if x.rebuilding == 0 {
		x.journal = nil
	}
}

// Rebuild replaces the whole index with bindings.
//
// The new trie and bleve index are built before taking the write lock, so
// lookups keep answering from the old state until the swap. Changes that
// arrive during the build are replayed onto the new state. Use Load to also
// cover changes made while the bindings are read.
func (x *NameIndex) Rebuild(ctx context.Context, bindings []domain.NameBinding) error {
	x.beginRebuild()
	return x.rebuild(ctx, bindings)
}

// rebuild builds and swaps in the new state. beginRebuild must have run.
func (x *NameIndex) rebuild(ctx context.Context, bindings []domain.NameBinding) error {
	swapped := false
	defer func() {
		if !swapped {
			x.mu.Lock()
			x.endRebuild()
			x.mu.Unlock()
		}
	}()

	tries := make(map[string]*trieNode)
	for _, b := range bindings {
		root, ok := tries[b.Context]
		if !ok {
			root = newTrieNode()
			tries[b.Context] = root
		}
		root.insert(b.Name, b.LibraryID)
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	const batchSize = 500

	for i := 0; i < len(bindings); i += batchSize {
		if err := ctx.Err(); err != nil {
			index.Close()
			return err
		}
		end := min(i+batchSize, len(bindings))

		batch := index.NewBatch()
		for _, b := range bindings[i:end] {
			doc := newNameDocument(b)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				index.Close()
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := index.Batch(batch); err != nil {
			index.Close()
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	x.mu.Lock()
	old := x.index
	x.tries = tries
	x.index = index
	replayed := len(x.journal)
	for _, ev := range x.journal {
		x.apply(ev)
	}
	x.endRebuild()
	swapped = true
	x.mu.Unlock()

	if err := old.Close(); err != nil {
		x.logger.Warn("failed to close previous index", "error", err)
	}

	x.logger.Info("rebuilt name index", "names", len(bindings), "contexts", len(tries), "replayed", replayed)
	return nil
}

// Load rebuilds the index from src. Changes reported while src is read are
// kept.
func (x *NameIndex) Load(ctx context.Context, src NameSource) error {
	x.beginRebuild()
	bindings, err := src.AllNames(ctx)
	if err != nil {
		x.mu.Lock()
		x.endRebuild()
		x.mu.Unlock()
		return fmt.Errorf("list names: %w", err)
	}
	return x.rebuild(ctx, bindings)
}

// Prefixes returns every name of contextID that is a prefix of the folded
// trigger text, longest first.
func (x *NameIndex) Prefixes(contextID, text string) []Match {
	folded := normalize.Name(text)
	if folded == "" {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	root, ok := x.tries[contextID]
	if !ok {
		return nil
	}
	return root.prefixes(folded)
}

// LongestPrefix returns the longest name of contextID that prefixes text.
func (x *NameIndex) LongestPrefix(contextID, text string) (Match, bool) {
	matches := x.Prefixes(contextID, text)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// DocumentCount returns the number of indexed names.
func (x *NameIndex) DocumentCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}
