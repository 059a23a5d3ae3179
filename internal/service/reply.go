package service

import (
	"github.com/feiju-bot/feiju/internal/store"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// Outcome classifies a user-facing operation result.
type Outcome string

// Operation outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeEmpty          Outcome = "empty"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeConflict       Outcome = "conflict"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeNetworkFailure Outcome = "network_failure"
	OutcomeCorruptMedia   Outcome = "corrupt_media"
	OutcomeFailed         Outcome = "failed"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeForbidden      Outcome = "forbidden"
)

// Reply is what a user-facing operation hands back to the messaging layer:
// a display text and, for some outcomes, image bytes to attach.
type Reply struct {
	Outcome     Outcome     `json:"outcome"`
	Text        string      `json:"text"`
	Image       []byte      `json:"-"`
	ImageID     int64       `json:"image_id,omitempty"`
	MatchedName string      `json:"matched_name,omitempty"`
	Sync        *SyncReport `json:"sync,omitempty"`
}

// OK reports whether the operation succeeded.
func (r Reply) OK() bool { return r.Outcome == OutcomeOK }

func reply(outcome Outcome, text string) Reply {
	return Reply{Outcome: outcome, Text: text}
}

// outcomeOf classifies an internal error.
func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case domainerrors.Is(err, domainerrors.ErrNetworkFailure):
		return OutcomeNetworkFailure
	case domainerrors.Is(err, domainerrors.ErrCorruptMedia):
		return OutcomeCorruptMedia
	case domainerrors.Is(err, domainerrors.ErrValidation),
		domainerrors.Is(err, store.ErrInvalidInput):
		return OutcomeInvalid
	case domainerrors.Is(err, domainerrors.ErrNotFound),
		domainerrors.Is(err, store.ErrNotFound):
		return OutcomeNotFound
	case domainerrors.Is(err, domainerrors.ErrConflict),
		domainerrors.Is(err, store.ErrAlreadyExists):
		return OutcomeConflict
	case domainerrors.Is(err, domainerrors.ErrRateLimited):
		return OutcomeRateLimited
	case domainerrors.Is(err, domainerrors.ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeFailed
	}
}

// translateStoreError converts store sentinels into domain errors for
// callers that return errors rather than replies.
func translateStoreError(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case domainerrors.Is(err, store.ErrNotFound):
		return domainerrors.NotFoundf(format, args...)
	case domainerrors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Conflictf(format, args...)
	case domainerrors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation(err.Error())
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "store failure")
	}
}
