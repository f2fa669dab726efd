// Package common holds response shapes and error mapping shared by the REST
// and MCP server surfaces.
package common

import (
	"errors"
	"net/http"

	"github.com/hylla/draftwork/internal/domain"
)

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Stable machine-readable error codes shared by both surfaces.
const (
	CodeNotFound             = "not_found"
	CodeForbidden            = "forbidden"
	CodeInvalidTransition    = "invalid_transition"
	CodePreconditionFailed   = "precondition_failed"
	CodeAlreadyAssigned      = "already_assigned"
	CodeConflict             = "conflict"
	CodeInvalidRequest       = "invalid_request"
	CodeUnauthorized         = "unauthorized"
	CodeBlockerHasDiscussion = "blocker_has_discussion"
	CodeInternalError        = "internal_error"
)

// Classify maps a service error onto its HTTP status and stable code. The
// mapping is shared so the REST surface and MCP tool errors never disagree.
func Classify(err error) (int, APIError) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: "unknown error"}
	case errors.Is(err, ErrMissingActor):
		return http.StatusUnauthorized, APIError{
			Code:    CodeUnauthorized,
			Message: err.Error(),
			Hint:    "Send the acting user id in the " + ActorHeader + " header.",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, APIError{Code: CodeForbidden, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, APIError{
			Code:    CodeInvalidTransition,
			Message: err.Error(),
			Hint:    "Reload the item and check its allowed transitions.",
		}
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity, APIError{Code: CodePreconditionFailed, Message: err.Error()}
	case errors.Is(err, domain.ErrAlreadyAssigned):
		return http.StatusConflict, APIError{
			Code:    CodeAlreadyAssigned,
			Message: err.Error(),
			Hint:    "Another creator claimed this item first; refresh to see the assignee.",
		}
	case errors.Is(err, domain.ErrBlockerHasDiscussion):
		return http.StatusConflict, APIError{Code: CodeBlockerHasDiscussion, Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    CodeConflict,
			Message: err.Error(),
			Hint:    "Reload the item and retry the whole operation.",
		}
	case isValidationErr(err):
		return http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: err.Error()}
	default:
		return http.StatusInternalServerError, APIError{Code: CodeInternalError, Message: err.Error()}
	}
}

// isValidationErr groups the domain's input validation sentinels.
func isValidationErr(err error) bool {
	for _, sentinel := range []error{
		domain.ErrInvalidID,
		domain.ErrInvalidName,
		domain.ErrInvalidStatus,
		domain.ErrInvalidRole,
		domain.ErrInvalidBody,
		domain.ErrInvalidBlockerType,
		domain.ErrInvalidBlockerPriority,
		domain.ErrInvalidBlockerStatus,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
