package service

import (
	"context"
	"time"

	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/id"
	"github.com/feiju-bot/feiju/internal/imagehash"
)

// ReindexReport describes one reindex run.
type ReindexReport struct {
	RunID    string        `json:"run_id"`
	Scanned  int           `json:"scanned"`
	Resized  int           `json:"resized"`
	Rehashed int           `json:"rehashed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Reindex walks every stored image, shrinks the ones over the normalizer's
// size limit and recomputes hashes that differ from the stored value. Hashes
// carried over from a legacy database were computed on a 32px DCT input and
// are rewritten here with the current 64px pipeline.
//
// Images that cannot be decoded are counted and left as they are.
func (s *MemeService) Reindex(ctx context.Context) (*ReindexReport, error) {
	start := time.Now()
	runID, err := id.Generate(id.PrefixReindex)
	if err != nil {
		return nil, err
	}
	report := &ReindexReport{RunID: runID}
	logger := s.logger.With("run_id", runID)

	logger.Info("reindex started", "max_dimension", s.normalizer.MaxDimension())

	err = s.store.ForEachImage(ctx, func(img *domain.Image) error {
		report.Scanned++

		data, resized := s.normalizer.Normalize(img.Data)

		hash, err := imagehash.Compute(data)
		if err != nil {
			report.Failed++
			logger.Warn("reindex: undecodable image", "image_id", img.ID, "error", err)
			return nil
		}

		rehashed := hash.String() != img.Hash
		if !resized && !rehashed {
			return nil
		}
		if err := s.store.UpdateImage(ctx, img.ID, data, hash.String()); err != nil {
			return err
		}
		if resized {
			report.Resized++
		}
		if rehashed {
			report.Rehashed++
		}
		return nil
	})
	report.Duration = time.Since(start)
	if err != nil {
		logger.Error("reindex aborted", "scanned", report.Scanned, "error", err)
		return report, err
	}

	logger.Info("reindex complete",
		"scanned", report.Scanned,
		"resized", report.Resized,
		"rehashed", report.Rehashed,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}
