package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error. Callers outside the core only ever see
// the code, the kind and the message; Err stays server-side.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinels like ErrBedUnavailable
// can be used with errors.Is regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Kind returns the stable machine-readable name of the error code.
func (e *AppError) Kind() string {
	return e.Code.String()
}

const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrUnauthorized
	ErrStateConflict
	ErrBedUnavailable
	ErrSequenceExhausted
	ErrTransientStorage
	ErrInternal
	ErrRateLimited
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "validation_error"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrStateConflict:
		return "state_conflict"
	case ErrBedUnavailable:
		return "bed_unavailable"
	case ErrSequenceExhausted:
		return "sequence_exhausted"
	case ErrTransientStorage:
		return "transient_storage_error"
	case ErrRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// Sentinels for errors.Is checks.
var (
	NotFoundError          = &AppError{Code: ErrNotFound, Message: "not found"}
	ValidationFailure      = &AppError{Code: ErrValidation, Message: "validation failed"}
	UnauthorizedError      = &AppError{Code: ErrUnauthorized, Message: "unauthorized"}
	StateConflictError     = &AppError{Code: ErrStateConflict, Message: "state conflict"}
	BedUnavailableError    = &AppError{Code: ErrBedUnavailable, Message: "bed unavailable"}
	SequenceExhaustedError = &AppError{Code: ErrSequenceExhausted, Message: "sequence exhausted"}
	TransientStorageError  = &AppError{Code: ErrTransientStorage, Message: "transient storage error"}
)

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
	}
}

func StateConflict(message string) *AppError {
	return &AppError{
		Code:    ErrStateConflict,
		Message: message,
	}
}

func BedUnavailable(bedNumber string) *AppError {
	return &AppError{
		Code:    ErrBedUnavailable,
		Message: fmt.Sprintf("bed %s is not available", bedNumber),
	}
}

func SequenceExhausted(scope string, limit int64) *AppError {
	return &AppError{
		Code:    ErrSequenceExhausted,
		Message: fmt.Sprintf("sequence %s exceeded %d", scope, limit),
	}
}

// SequenceContended is a SequenceExhausted raised when contention outlasted the
// retry budget rather than the scope overflowing.
func SequenceContended(scope string, attempts int, err error) *AppError {
	return &AppError{
		Code:    ErrSequenceExhausted,
		Message: fmt.Sprintf("sequence %s unavailable after %d attempts", scope, attempts),
		Err:     err,
	}
}

func Transient(err error) *AppError {
	return &AppError{
		Code:    ErrTransientStorage,
		Message: "storage temporarily unavailable",
		Err:     err,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Message: "rate limit exceeded",
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrTransientStorage
}

// Is and As forward to the standard library so callers need one errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
