package service

import (
	"context"
	"time"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/id"
	"github.com/feiju-bot/feiju/internal/normalize"
	"github.com/feiju-bot/feiju/internal/store"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// SyncReport describes one sync run.
type SyncReport struct {
	RunID         string           `json:"run_id"`
	SourceContext string           `json:"source_context"`
	TargetContext string           `json:"target_context"`
	Keyword       string           `json:"keyword"`
	SourceLibrary domain.LibraryID `json:"source_library"`
	TargetLibrary domain.LibraryID `json:"target_library"`
	Copied        int              `json:"copied"`
	Skipped       int              `json:"skipped"`
	Duration      time.Duration    `json:"duration"`
}

// SyncMemes copies every image of keyword's library in the source context
// into the library of the same name in the target context, creating it if
// needed. Images within the duplicate threshold of something already in the
// target are skipped. The source is never modified.
//
// Context tokens accept the p<digits> shorthand for private chats.
func (s *MemeService) SyncMemes(ctx context.Context, rawSource, rawTarget, keyword string) Reply {
	start := time.Now()
	src := domain.ParseContextToken(rawSource)
	dst := domain.ParseContextToken(rawTarget)
	display := normalize.Trigger(keyword)
	folded := normalize.Name(keyword)
	if src == "" || dst == "" || folded == "" {
		return reply(OutcomeInvalid, msgSyncNoSource(src, display))
	}

	runID, err := id.Generate(id.PrefixSync)
	if err != nil {
		return reply(OutcomeFailed, msgFailed(err))
	}
	logger := s.logger.With("run_id", runID)

	srcLib, err := s.store.ResolveLibrary(ctx, folded, src)
	if domainerrors.Is(err, store.ErrNotFound) {
		return reply(OutcomeNotFound, msgSyncNoSource(src, display))
	}
	if err != nil {
		logger.Error("sync: resolve source", "error", err)
		return reply(outcomeOf(err), msgFailed(err))
	}

	refs, err := s.store.ListImageRefs(ctx, srcLib)
	if err != nil {
		logger.Error("sync: list source images", "error", err)
		return reply(outcomeOf(err), msgFailed(err))
	}
	if len(refs) == 0 {
		return reply(OutcomeEmpty, msgSyncEmptySource(src, display))
	}

	dstLib, err := s.resolveOrCreate(ctx, folded, dst)
	if err != nil {
		logger.Error("sync: resolve target", "error", err)
		return reply(outcomeOf(err), msgFailed(err))
	}

	copied, skipped, err := s.store.CopyImages(ctx, srcLib, dstLib, s.comparator)
	if err != nil {
		logger.Error("sync: copy images", "error", err)
		return reply(outcomeOf(err), msgFailed(err))
	}

	report := &SyncReport{
		RunID:         runID,
		SourceContext: src,
		TargetContext: dst,
		Keyword:       folded,
		SourceLibrary: srcLib,
		TargetLibrary: dstLib,
		Copied:        copied,
		Skipped:       skipped,
		Duration:      time.Since(start),
	}

	logger.Info("sync complete",
		"source", src,
		"target", dst,
		"keyword", folded,
		"copied", copied,
		"skipped", skipped,
		"duration", report.Duration,
	)

	return Reply{
		Outcome:     OutcomeOK,
		Text:        msgSyncDone(display, copied, skipped),
		MatchedName: folded,
		Sync:        report,
	}
}
