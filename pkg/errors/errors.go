// Package errors defines the typed error carried from services to the HTTP
// envelope. Codes are stable and clients branch on them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error is a domain failure with its HTTP status and machine-readable code.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so clones and wraps of a sentinel compare equal to it.
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

var (
	ErrInvalidCredentials     = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid role or access code")
	ErrInactiveAccount        = New("ACCESS_CODE_INACTIVE", http.StatusForbidden, "access code is inactive")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden              = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrIllegalTransition      = New("ILLEGAL_TRANSITION", http.StatusConflict, "transition not allowed from current status")
	ErrConcurrentModification = New("CONCURRENT_MODIFICATION", http.StatusConflict, "transfer was modified by another session")
	ErrLookup                 = New("LOOKUP_ERROR", http.StatusNotFound, "transfer not found")
	ErrStoreUnavailable       = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "transfer store unavailable")
	ErrRateLimited            = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// RequiresRefresh reports whether the caller's view is stale and must be re-read.
func RequiresRefresh(err error) bool {
	return errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrConcurrentModification)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies err, replacing the message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation converts a validator failure into ErrValidation with one detail
// per offending field. Other errors are wrapped unchanged.
func Validation(err error, message string) *Error {
	appErr := Wrap(err, ErrValidation.Code, ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr
	}
	appErr.Details = make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		appErr.Details[strings.ToLower(fe.Field())] = rule
	}
	return appErr
}
