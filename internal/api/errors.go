package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/feiju-bot/feiju/internal/http/response"
	"github.com/feiju-bot/feiju/internal/service"
	"github.com/feiju-bot/feiju/internal/store"

	domainerrors "github.com/feiju-bot/feiju/internal/errors"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return &APIError{
					status:  domainErr.HTTPStatus(),
					Code:    string(domainErr.Code),
					Message: domainErr.Message,
					Details: domainErr.Details,
				}
			}

			// Store errors carry their own status.
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return &APIError{
					status:  storeErr.HTTPCode(),
					Code:    string(response.CodeForStatus(storeErr.HTTPCode())),
					Message: storeErr.Message,
				}
			}
		}

		return &APIError{
			status:  status,
			Code:    string(response.CodeForStatus(status)),
			Message: message,
		}
	}
}

// replyError converts a failed reply into an API error carrying the reply text.
func replyError(r service.Reply) error {
	e := &APIError{
		status:  statusForOutcome(r.Outcome),
		Code:    string(codeForOutcome(r.Outcome)),
		Message: r.Text,
	}
	if r.ImageID != 0 || r.MatchedName != "" {
		details := map[string]any{"outcome": r.Outcome}
		if r.ImageID != 0 {
			details["image_id"] = r.ImageID
		}
		if r.MatchedName != "" {
			details["matched_name"] = r.MatchedName
		}
		e.Details = details
	}
	return e
}

// statusForOutcome maps a service outcome to an HTTP status.
func statusForOutcome(o service.Outcome) int {
	switch o {
	case service.OutcomeOK:
		return http.StatusOK
	case service.OutcomeNotFound, service.OutcomeEmpty:
		return http.StatusNotFound
	case service.OutcomeDuplicate, service.OutcomeConflict:
		return http.StatusConflict
	case service.OutcomeInvalid:
		return http.StatusBadRequest
	case service.OutcomeNetworkFailure:
		return http.StatusBadGateway
	case service.OutcomeCorruptMedia:
		return http.StatusUnprocessableEntity
	case service.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case service.OutcomeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func codeForOutcome(o service.Outcome) domainerrors.Code {
	switch o {
	case service.OutcomeNotFound, service.OutcomeEmpty:
		return domainerrors.CodeNotFound
	case service.OutcomeDuplicate, service.OutcomeConflict:
		return domainerrors.CodeConflict
	case service.OutcomeInvalid:
		return domainerrors.CodeValidation
	case service.OutcomeNetworkFailure:
		return domainerrors.CodeNetworkFailure
	case service.OutcomeCorruptMedia:
		return domainerrors.CodeCorruptMedia
	case service.OutcomeRateLimited:
		return domainerrors.CodeRateLimited
	case service.OutcomeForbidden:
		return domainerrors.CodeForbidden
	default:
		return domainerrors.CodeInternal
	}
}
