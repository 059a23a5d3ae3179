package sqlite

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/store"
)

type recordingIndexer struct {
	mu      sync.Mutex
	bound   []domain.NameBinding
	unbound []string
}

func (r *recordingIndexer) NameBound(_ context.Context, b domain.NameBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound = append(r.bound, b)
}

func (r *recordingIndexer) NameUnbound(_ context.Context, contextID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbound = append(r.unbound, contextID+"/"+name)
}

func mustCreate(t *testing.T, s *Store, name, contextID string) domain.LibraryID {
	t.Helper()
	id, err := s.CreateLibrary(context.Background(), name, contextID)
	if err != nil {
		t.Fatalf("CreateLibrary(%q, %q): %v", name, contextID, err)
	}
	return id
}

func TestCreateAndResolveLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCreate(t, s, "猫", "g1")

	got, err := s.ResolveLibrary(ctx, "猫", "g1")
	if err != nil {
		t.Fatalf("ResolveLibrary: %v", err)
	}
	if got != id {
		t.Errorf("ResolveLibrary = %d, want %d", got, id)
	}

	if _, err := s.ResolveLibrary(ctx, "猫", "g2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("other context: expected ErrNotFound, got %v", err)
	}
	if _, err := s.ResolveLibrary(ctx, "狗", "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown name: expected ErrNotFound, got %v", err)
	}
}

func TestCreateLibrary_Idempotent(t *testing.T) {
	s := newTestStore(t)

	first := mustCreate(t, s, "a", "g1")
	second := mustCreate(t, s, "a", "g1")
	if first != second {
		t.Errorf("CreateLibrary twice: %d != %d", first, second)
	}

	libs, err := s.ListLibraries(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ListLibraries: %v", err)
	}
	if len(libs) != 1 {
		t.Errorf("expected 1 library, got %d", len(libs))
	}
}

func TestCreateLibrary_Concurrent(t *testing.T) {
	s := newTestStore(t)

	const n = 8
	ids := make([]domain.LibraryID, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.CreateLibrary(context.Background(), "race", "g1")
			if err != nil {
				t.Errorf("CreateLibrary: %v", err)
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent creates returned different ids: %v", ids)
		}
	}
}

func TestCreateLibrary_EmptyName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateLibrary(context.Background(), "", "g1"); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBindName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	idx := &recordingIndexer{}
	s.SetNameIndexer(idx)

	a := mustCreate(t, s, "a", "g1")
	b := mustCreate(t, s, "b", "g1")

	ok, err := s.BindName(ctx, "alias", a, "g1")
	if err != nil || !ok {
		t.Fatalf("BindName new: ok=%v err=%v", ok, err)
	}

	// Same library again is fine.
	ok, err = s.BindName(ctx, "alias", a, "g1")
	if err != nil || !ok {
		t.Errorf("BindName same library: ok=%v err=%v", ok, err)
	}

	// Different library must not steal the name.
	ok, err = s.BindName(ctx, "alias", b, "g1")
	if err != nil {
		t.Fatalf("BindName other library: %v", err)
	}
	if ok {
		t.Error("BindName to a different library should return false")
	}
	if got, _ := s.ResolveLibrary(ctx, "alias", "g1"); got != a {
		t.Errorf("alias owner changed to %d", got)
	}

	if _, err := s.BindName(ctx, "x", a, "g2"); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("cross-context bind: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.BindName(ctx, "x", 9999, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing library: expected ErrNotFound, got %v", err)
	}

	names := make([]string, 0, len(idx.bound))
	for _, b := range idx.bound {
		names = append(names, b.Name)
	}
	if !slices.Equal(names, []string{"a", "b", "alias"}) {
		t.Errorf("indexer saw %v", names)
	}
}

func TestUnbindName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	idx := &recordingIndexer{}
	s.SetNameIndexer(idx)

	a := mustCreate(t, s, "a", "g1")
	if _, err := s.BindName(ctx, "b", a, "g1"); err != nil {
		t.Fatalf("BindName: %v", err)
	}

	removed, err := s.UnbindName(ctx, "b", "g1")
	if err != nil || !removed {
		t.Fatalf("UnbindName: removed=%v err=%v", removed, err)
	}
	removed, err = s.UnbindName(ctx, "b", "g1")
	if err != nil || removed {
		t.Errorf("second UnbindName: removed=%v err=%v", removed, err)
	}

	// The store does not guard the last name.
	removed, err = s.UnbindName(ctx, "a", "g1")
	if err != nil || !removed {
		t.Errorf("UnbindName last name: removed=%v err=%v", removed, err)
	}

	if !slices.Equal(idx.unbound, []string{"g1/b", "g1/a"}) {
		t.Errorf("indexer unbound = %v", idx.unbound)
	}
}

func TestMergeLibraries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	idx := &recordingIndexer{}
	s.SetNameIndexer(idx)

	a := mustCreate(t, s, "a", "g1")
	b := mustCreate(t, s, "b", "g1")
	if _, err := s.BindName(ctx, "bb", b, "g1"); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	if _, err := s.AddImage(ctx, a, []byte("img-a"), "0000000000000001"); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if _, err := s.AddImage(ctx, b, []byte("img-b"), "0000000000000002"); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	if err := s.MergeLibraries(ctx, b, a); err != nil {
		t.Fatalf("MergeLibraries: %v", err)
	}

	for _, name := range []string{"a", "b", "bb"} {
		got, err := s.ResolveLibrary(ctx, name, "g1")
		if err != nil || got != a {
			t.Errorf("ResolveLibrary(%q) = %d, %v; want %d", name, got, err, a)
		}
	}

	images, err := s.ListImages(ctx, a)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 2 {
		t.Errorf("expected 2 images after merge, got %d", len(images))
	}

	if _, err := s.GetLibrary(ctx, b); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("merged library still exists: %v", err)
	}

	names, err := s.ListNames(ctx, a)
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	if !slices.Equal(names, []string{"a", "b", "bb"}) {
		t.Errorf("ListNames = %v", names)
	}

	last := idx.bound[len(idx.bound)-2:]
	for _, nb := range last {
		if nb.LibraryID != a {
			t.Errorf("indexer not told about moved name %q", nb.Name)
		}
	}
}

func TestMergeLibraries_SameIsNoop(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, "a", "g1")

	if err := s.MergeLibraries(context.Background(), a, a); err != nil {
		t.Fatalf("MergeLibraries self: %v", err)
	}
	if _, err := s.GetLibrary(context.Background(), a); err != nil {
		t.Errorf("library gone after self merge: %v", err)
	}
}

func TestMergeLibraries_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, "a", "g1")
	b := mustCreate(t, s, "b", "g2")

	if err := s.MergeLibraries(ctx, b, a); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("cross-context merge: expected ErrInvalidInput, got %v", err)
	}
	if err := s.MergeLibraries(ctx, 9999, a); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing source: expected ErrNotFound, got %v", err)
	}

	// Nothing moved.
	if got, _ := s.ResolveLibrary(ctx, "b", "g2"); got != b {
		t.Errorf("b moved to %d", got)
	}
}

func TestListLibrariesAndContexts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a", "g1")
	mustCreate(t, s, "b", "g1")
	mustCreate(t, s, "c", "private_7")
	if _, err := s.BindName(ctx, "a2", a, "g1"); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	if _, err := s.AddImage(ctx, a, []byte("x"), "0000000000000000"); err != nil {
		t.Fatalf("AddImage: %v", err)
	}

	libs, err := s.ListLibraries(ctx, "g1")
	if err != nil {
		t.Fatalf("ListLibraries: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("expected 2 libraries, got %d", len(libs))
	}
	if !slices.Equal(libs[0].Names, []string{"a", "a2"}) || libs[0].ImageCount != 1 {
		t.Errorf("first library = %+v", libs[0])
	}

	contexts, err := s.ListContexts(ctx)
	if err != nil {
		t.Fatalf("ListContexts: %v", err)
	}
	if !slices.Equal(contexts, []string{"g1", "private_7"}) {
		t.Errorf("ListContexts = %v", contexts)
	}

	all, err := s.AllNames(ctx)
	if err != nil {
		t.Fatalf("AllNames: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("AllNames returned %d bindings", len(all))
	}

	lib, err := s.GetLibrary(ctx, a)
	if err != nil {
		t.Fatalf("GetLibrary: %v", err)
	}
	if lib.Context != "g1" || lib.ImageCount != 1 || len(lib.Names) != 2 {
		t.Errorf("GetLibrary = %+v", lib)
	}
}
