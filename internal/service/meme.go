// Package service implements the meme library operations that chat commands
// and the admin API call into. User-facing operations never return errors:
// every failure becomes a Reply with an Outcome and a display text.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/fetch"
	"github.com/feiju-bot/feiju/internal/imagehash"
	"github.com/feiju-bot/feiju/internal/media/images"
	"github.com/feiju-bot/feiju/internal/normalize"
	"github.com/feiju-bot/feiju/internal/ratelimit"
	"github.com/feiju-bot/feiju/internal/search"
	"github.com/feiju-bot/feiju/internal/store"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// MemeService orchestrates fetch, normalize, hash and store for meme
// operations.
//
// No store transaction is open while a fetch is in flight: the fetch and
// hashing happen first, then each store call runs its own short transaction.
type MemeService struct {
	store      store.LibraryStore
	fetcher    fetch.Fetcher
	normalizer *images.Normalizer
	comparator imagehash.Comparator
	index      *search.NameIndex
	cooldown   *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
}

// MemeOption configures optional MemeService collaborators.
type MemeOption func(*MemeService)

// WithNameIndex lets the prefix index narrow trigger resolution and enables
// suggestions.
func WithNameIndex(index *search.NameIndex) MemeOption {
	return func(s *MemeService) { s.index = index }
}

// WithCooldown throttles GetMeme per context.
func WithCooldown(limiter *ratelimit.KeyedRateLimiter) MemeOption {
	return func(s *MemeService) { s.cooldown = limiter }
}

// NewMemeService creates a new meme service.
func NewMemeService(
	store store.LibraryStore,
	fetcher fetch.Fetcher,
	normalizer *images.Normalizer,
	comparator imagehash.Comparator,
	logger *slog.Logger,
	opts ...MemeOption,
) *MemeService {
	s := &MemeService{
		store:      store,
		fetcher:    fetcher,
		normalizer: normalizer,
		comparator: comparator,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Comparator returns the duplicate policy in use.
func (s *MemeService) Comparator() imagehash.Comparator {
	return s.comparator
}

// ResolveTrigger finds the longest prefix of text that names a library in
// contextID. It returns the library and the folded name that matched, or
// store.ErrNotFound.
//
// The store is the authority. memectl writes to the same database file
// without going through this process, so the name index may miss names. Its
// best confirmed candidate only bounds how many prefixes the store is asked
// about, and names found beyond it are added to the index.
func (s *MemeService) ResolveTrigger(ctx context.Context, text, contextID string) (domain.LibraryID, string, error) {
	var (
		hintID   domain.LibraryID
		hintName string
	)
	if s.index != nil {
		for _, m := range s.index.Prefixes(contextID, text) {
			id, err := s.store.ResolveLibrary(ctx, m.Name, contextID)
			if domainerrors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, "", err
			}
			hintID, hintName = id, m.Name
			break
		}
	}

	runes := []rune(normalize.Trigger(text))
	for i := len(runes); i > 0; i-- {
		name := normalize.Name(string(runes[:i]))
		if name == "" {
			continue
		}
		// Folding can change length, so stop at the hint's length too.
		if hintName != "" && (name == hintName || utf8.RuneCountInString(name) < utf8.RuneCountInString(hintName)) {
			return hintID, hintName, nil
		}
		id, err := s.store.ResolveLibrary(ctx, name, contextID)
		if domainerrors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, "", err
		}
		if s.index != nil {
			s.index.NameBound(ctx, domain.NameBinding{Context: contextID, Name: name, LibraryID: id})
		}
		return id, name, nil
	}
	if hintName != "" {
		return hintID, hintName, nil
	}
	return 0, "", store.ErrNotFound
}

// GetMeme picks a random image from the library that the longest prefix of
// text names. A library without images is reported as OutcomeEmpty, which
// is different from no library matching at all.
func (s *MemeService) GetMeme(ctx context.Context, text, contextID string) Reply {
	trigger := normalize.Trigger(text)
	if trigger == "" {
		return reply(OutcomeNotFound, msgNoMeme(trigger))
	}

	if s.cooldown != nil && !s.cooldown.Allow(contextID) {
		return reply(OutcomeRateLimited, msgCooldown)
	}

	id, matched, err := s.ResolveTrigger(ctx, trigger, contextID)
	if domainerrors.Is(err, store.ErrNotFound) {
		return reply(OutcomeNotFound, msgNoMeme(trigger))
	}
	if err != nil {
		s.logger.Error("failed to resolve trigger", "context", contextID, "error", err)
		return reply(OutcomeFailed, msgFailed(err))
	}

	img, err := s.store.RandomImage(ctx, id)
	if err != nil {
		s.logger.Error("failed to pick image", "library_id", id, "error", err)
		return reply(OutcomeFailed, msgFailed(err))
	}
	if img == nil {
		r := reply(OutcomeEmpty, msgNoMeme(matched))
		r.MatchedName = matched
		return r
	}

	return Reply{
		Outcome:     OutcomeOK,
		Image:       img.Data,
		ImageID:     img.ID,
		MatchedName: matched,
	}
}

// prepared is a fetched image after normalization and hashing.
type prepared struct {
	data []byte
	hash imagehash.Hash
}

// prepare fetches url, normalizes the bytes and hashes the result.
// Normalization failures pass the original bytes through; hashing
// failures are CorruptMedia.
func (s *MemeService) prepare(ctx context.Context, url string) (*prepared, error) {
	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	data, _ := s.normalizer.Normalize(raw)

	hash, err := imagehash.Compute(data)
	if err != nil {
		return nil, err
	}
	return &prepared{data: data, hash: hash}, nil
}

// resolveOrCreate returns the library name points to, creating it if needed.
func (s *MemeService) resolveOrCreate(ctx context.Context, name, contextID string) (domain.LibraryID, error) {
	id, err := s.store.ResolveLibrary(ctx, name, contextID)
	if err == nil {
		return id, nil
	}
	if !domainerrors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return s.store.CreateLibrary(ctx, name, contextID)
}

// AddMeme downloads the image at url and stores it under name. Unless force
// is set, an image within the duplicate threshold of one already in the
// library is rejected and the stored one is attached to the reply.
func (s *MemeService) AddMeme(ctx context.Context, name, url, contextID string, force bool) Reply {
	display := normalize.Trigger(name)
	folded := normalize.Name(name)
	if folded == "" {
		return reply(OutcomeInvalid, msgAddFailed(domainerrors.Validation("empty name")))
	}

	img, err := s.prepare(ctx, url)
	if err != nil {
		s.logger.Warn("add meme: image unusable", "name", folded, "context", contextID, "error", err)
		return reply(outcomeOf(err), msgAddFailed(err))
	}

	id, err := s.resolveOrCreate(ctx, folded, contextID)
	if err != nil {
		s.logger.Error("add meme: resolve library", "name", folded, "context", contextID, "error", err)
		return reply(outcomeOf(err), msgAddFailed(err))
	}

	var imageID int64
	if force {
		imageID, err = s.store.AddImage(ctx, id, img.data, img.hash.String())
	} else {
		var conflict *domain.Image
		conflict, imageID, err = s.store.AddImageIfUnique(ctx, id, img.data, img.hash.String(), s.comparator)
		if err == nil && conflict != nil {
			s.logger.Info("duplicate meme rejected",
				"name", folded,
				"context", contextID,
				"conflict_image_id", conflict.ID,
			)
			return Reply{
				Outcome:     OutcomeDuplicate,
				Text:        msgDuplicate,
				Image:       conflict.Data,
				ImageID:     conflict.ID,
				MatchedName: folded,
			}
		}
	}
	if err != nil {
		s.logger.Error("add meme: store image", "library_id", id, "error", err)
		return reply(outcomeOf(err), msgAddFailed(err))
	}

	s.logger.Info("meme added",
		"name", folded,
		"context", contextID,
		"library_id", id,
		"image_id", imageID,
		"size", len(img.data),
		"force", force,
	)

	return Reply{
		Outcome:     OutcomeOK,
		Text:        msgAdded(display),
		ImageID:     imageID,
		MatchedName: folded,
	}
}

// DeleteMeme removes the first image of name's library that is within the
// duplicate threshold of the image at url. Matching is perceptual so a copy
// that was re-encoded in transit still finds the stored original.
func (s *MemeService) DeleteMeme(ctx context.Context, name, url, contextID string) Reply {
	display := normalize.Trigger(name)
	folded := normalize.Name(name)
	if folded == "" {
		return reply(OutcomeInvalid, msgDeleteFailed(domainerrors.Validation("empty name"), display))
	}

	img, err := s.prepare(ctx, url)
	if err != nil {
		s.logger.Warn("delete meme: image unusable", "name", folded, "context", contextID, "error", err)
		return reply(outcomeOf(err), msgDeleteFailed(err, display))
	}

	id, err := s.store.ResolveLibrary(ctx, folded, contextID)
	if domainerrors.Is(err, store.ErrNotFound) {
		return reply(OutcomeNotFound, msgNothingDeleted(display))
	}
	if err != nil {
		return reply(outcomeOf(err), msgDeleteFailed(err, display))
	}

	deleted, err := s.store.DeleteImageByHash(ctx, id, img.hash.String(), s.comparator)
	if err != nil {
		s.logger.Error("delete meme: store", "library_id", id, "error", err)
		return reply(outcomeOf(err), msgDeleteFailed(err, display))
	}
	if !deleted {
		return reply(OutcomeNotFound, msgNothingDeleted(display))
	}

	s.logger.Info("meme deleted", "name", folded, "context", contextID, "library_id", id)
	r := reply(OutcomeOK, msgDeleted(display))
	r.MatchedName = folded
	return r
}

// Suggest returns names of contextID resembling text. It returns nothing
// when the service runs without a name index.
func (s *MemeService) Suggest(ctx context.Context, contextID, text string, limit int) ([]search.Suggestion, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.Suggest(ctx, contextID, text, limit)
}

// ListLibraries returns the libraries of a context with their names.
func (s *MemeService) ListLibraries(ctx context.Context, contextID string) ([]*domain.Library, error) {
	libs, err := s.store.ListLibraries(ctx, contextID)
	if err != nil {
		return nil, translateStoreError(err, "list libraries of %s", contextID)
	}
	return libs, nil
}

// ListContexts returns every context that owns a library.
func (s *MemeService) ListContexts(ctx context.Context) ([]string, error) {
	contexts, err := s.store.ListContexts(ctx)
	if err != nil {
		return nil, translateStoreError(err, "list contexts")
	}
	return contexts, nil
}

// ListImages returns metadata of the images in name's library.
func (s *MemeService) ListImages(ctx context.Context, name, contextID string) ([]domain.ImageRef, error) {
	folded := normalize.Name(name)
	id, err := s.store.ResolveLibrary(ctx, folded, contextID)
	if err != nil {
		return nil, translateStoreError(err, "library %q not found", folded)
	}
	refs, err := s.store.ListImageRefs(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "list images of %q", folded)
	}
	return refs, nil
}

// Image returns one stored image.
func (s *MemeService) Image(ctx context.Context, imageID int64) (*domain.Image, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, translateStoreError(err, "image %d not found", imageID)
	}
	return img, nil
}

// Stats summarizes the store.
func (s *MemeService) Stats(ctx context.Context) (domain.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
