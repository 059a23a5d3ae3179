package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/normalize"
	"github.com/feiju-bot/feiju/internal/store"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// AliasService manages the names bound to libraries.
type AliasService struct {
	store  store.LibraryStore
	logger *slog.Logger

	// mu serializes the check-then-act sequences below, so two concurrent
	// removals cannot both pass the last-name check for the same library.
	mu sync.Mutex
}

// NewAliasService creates a new alias service.
func NewAliasService(store store.LibraryStore, logger *slog.Logger) *AliasService {
	return &AliasService{
		store:  store,
		logger: logger,
	}
}

// lookup resolves name, mapping "not bound" to a zero id without error.
func (s *AliasService) lookup(ctx context.Context, name, contextID string) (domain.LibraryID, error) {
	id, err := s.store.ResolveLibrary(ctx, name, contextID)
	if domainerrors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return id, err
}

// AddAlias makes nameA and nameB resolve to the same library.
//
// When both names already have libraries, nameB's library is merged into
// nameA's: the library of the first-typed name always survives.
func (s *AliasService) AddAlias(ctx context.Context, nameA, nameB, contextID string) Reply {
	a := normalize.Name(nameA)
	b := normalize.Name(nameB)
	if a == "" || b == "" {
		return reply(OutcomeInvalid, msgAliasUsage)
	}
	if a == b {
		return reply(OutcomeInvalid, msgAliasSameName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	libA, err := s.lookup(ctx, a, contextID)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}
	libB, err := s.lookup(ctx, b, contextID)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}

	switch {
	case libA != 0 && libB != 0:
		if libA == libB {
			return reply(OutcomeOK, msgAliasAlreadySame(a, b))
		}
		if err := s.store.MergeLibraries(ctx, libB, libA); err != nil {
			s.logger.Error("alias merge failed", "src", libB, "dst", libA, "context", contextID, "error", err)
			return reply(OutcomeFailed, msgAliasMergeFailed(err))
		}
		s.logger.Info("libraries merged by alias", "name", a, "alias", b, "context", contextID)
		return reply(OutcomeOK, msgAliasMerged(a, b))

	case libA != 0:
		return s.bind(ctx, b, libA, contextID)

	case libB != 0:
		return s.bind(ctx, a, libB, contextID)

	default:
		return reply(OutcomeNotFound, msgAliasNeither(a, b))
	}
}

func (s *AliasService) bind(ctx context.Context, name string, id domain.LibraryID, contextID string) Reply {
	ok, err := s.store.BindName(ctx, name, id, contextID)
	if err != nil {
		s.logger.Error("alias bind failed", "name", name, "library_id", id, "error", err)
		return reply(outcomeOf(err), msgAliasBindFailed)
	}
	if !ok {
		return reply(OutcomeConflict, msgAliasBindFailed)
	}
	s.logger.Info("alias added", "name", name, "library_id", id, "context", contextID)
	return reply(OutcomeOK, msgAliasAdded(name))
}

// RemoveAlias unbinds name unless it is the last name of its library.
func (s *AliasService) RemoveAlias(ctx context.Context, name, contextID string) Reply {
	n := normalize.Name(name)
	if n == "" {
		return reply(OutcomeInvalid, msgAliasRemoveWho)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.lookup(ctx, n, contextID)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}
	if id == 0 {
		return reply(OutcomeNotFound, msgAliasNotFound(n))
	}

	names, err := s.store.ListNames(ctx, id)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}
	if len(names) <= 1 {
		return reply(OutcomeConflict, msgAliasLastName(n))
	}

	removed, err := s.store.UnbindName(ctx, n, contextID)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}
	if !removed {
		return reply(OutcomeFailed, msgAliasRemoveFail)
	}

	s.logger.Info("alias removed", "name", n, "library_id", id, "context", contextID)
	return reply(OutcomeOK, msgAliasRemoved(n))
}

// ListAliases reports every name bound to name's library.
func (s *AliasService) ListAliases(ctx context.Context, name, contextID string) Reply {
	n := normalize.Name(name)
	if n == "" {
		return reply(OutcomeInvalid, msgAliasListWho)
	}
	names, err := s.Names(ctx, n, contextID)
	switch {
	case domainerrors.Is(err, domainerrors.ErrNotFound):
		return reply(OutcomeNotFound, msgLibraryNotFound(n))
	case err != nil:
		return reply(OutcomeFailed, msgFailed(err))
	case len(names) == 0:
		return reply(OutcomeFailed, msgAliasNoNames)
	}
	return reply(OutcomeOK, msgAliasList(names))
}

// Names returns the names bound to name's library in insertion order.
func (s *AliasService) Names(ctx context.Context, name, contextID string) ([]string, error) {
	n := normalize.Name(name)
	if n == "" {
		return nil, domainerrors.NotFound("empty name")
	}
	id, err := s.store.ResolveLibrary(ctx, n, contextID)
	if err != nil {
		return nil, translateStoreError(err, "library %q not found", n)
	}
	names, err := s.store.ListNames(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "list names of %q", n)
	}
	return names, nil
}
