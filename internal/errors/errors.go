package errors

import (
	stderrors "errors"
	"net/http"

	"dgit/internal/decision"
	"dgit/internal/mergerequest"
	"dgit/internal/repository"
	"dgit/internal/storage"
	"dgit/internal/tree"
	"dgit/internal/vcs"
)

type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

func Internal(message string) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
	}
}

// From maps a domain error onto its API error. Errors that are already
// *Error pass through; anything unrecognised is internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var (
		apiErr  *Error
		missing *decision.MissingDecisionError
	)
	switch {
	case stderrors.As(err, &apiErr):
		return apiErr
	case stderrors.As(err, &missing):
		return NotFound("Decision not found: " + missing.Key)
	case stderrors.Is(err, storage.ErrNotFound),
		stderrors.Is(err, tree.ErrNoSuchEntry),
		stderrors.Is(err, decision.ErrDecisionNotFound):
		return NotFound(err.Error())
	case stderrors.Is(err, storage.ErrConflict):
		return Conflict(err.Error())
	case stderrors.Is(err, storage.ErrInvalid),
		stderrors.Is(err, mergerequest.ErrNotMergeable),
		stderrors.Is(err, mergerequest.ErrInvalidTransition),
		stderrors.Is(err, vcs.ErrNotFastForward),
		stderrors.Is(err, repository.ErrOwnerRequired),
		stderrors.Is(err, tree.ErrCycle),
		stderrors.Is(err, tree.ErrTooDeep),
		stderrors.Is(err, decision.ErrInvalidGraph):
		return ValidationError(err.Error(), nil)
	}
	return Internal(err.Error())
}
