// Package errors defines the structured error taxonomy shared by every
// snaptext component.
//
// Each error carries a stable ErrorCode so transports can map it onto a wire
// representation and callers can branch on the condition without string
// matching. Most codes describe recoverable conditions: nothing here is
// fatal to a running coordinator or panel.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	ErrCaptureUnavailable ErrorCode = "CAPTURE_UNAVAILABLE"  // privileged capture denied or absent
	ErrSelectionTooSmall  ErrorCode = "SELECTION_TOO_SMALL"  // selection under the minimum size
	ErrStoreWriteMismatch ErrorCode = "STORE_WRITE_MISMATCH" // read-back disagrees with the write
	ErrRecognitionFailure ErrorCode = "RECOGNITION_FAILURE"  // OCR error, timeout, or empty text
	ErrRecordNotFound     ErrorCode = "RECORD_NOT_FOUND"     // id absent (benign for update/delete)
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrConflict           ErrorCode = "CONFLICT" // optimistic write retries exhausted
	ErrInternal           ErrorCode = "INTERNAL"
)

// Error is a structured snaptext error.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewCaptureUnavailable reports that a capture tier could not produce an image.
func NewCaptureUnavailable(tier string, cause error) *Error {
	return &Error{
		Code:    ErrCaptureUnavailable,
		Message: fmt.Sprintf("capture tier %q unavailable", tier),
		Details: map[string]any{"tier": tier},
		Err:     cause,
	}
}

// NewSelectionTooSmall reports a selection below the minimum dimension.
func NewSelectionTooSmall(width, height, min int) *Error {
	return &Error{
		Code:    ErrSelectionTooSmall,
		Message: fmt.Sprintf("selection %dx%d is too small (minimum %dx%d)", width, height, min, min),
		Details: map[string]any{"width": width, "height": height, "min": min},
	}
}

// NewStoreWriteMismatch reports that the durable copy does not reflect a write.
func NewStoreWriteMismatch(key string, wrote, found int64) *Error {
	return &Error{
		Code:    ErrStoreWriteMismatch,
		Message: fmt.Sprintf("write to %q not visible on read-back (wrote version %d, found %d)", key, wrote, found),
		Details: map[string]any{"key": key, "wrote_version": wrote, "found_version": found},
	}
}

// NewRecognitionFailure reports a failed or empty OCR pass.
func NewRecognitionFailure(msg string, cause error) *Error {
	return &Error{
		Code:    ErrRecognitionFailure,
		Message: msg,
		Err:     cause,
	}
}

// NewRecordNotFound reports a missing record id.
func NewRecordNotFound(id string) *Error {
	return &Error{
		Code:    ErrRecordNotFound,
		Message: fmt.Sprintf("record not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewInvalidRequest reports malformed input.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewConflict reports that concurrent writers kept winning.
func NewConflict(msg string) *Error {
	return &Error{
		Code:    ErrConflict,
		Message: msg,
	}
}

// NewInternal wraps an unexpected error.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is reports whether err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// Retryable reports whether the condition is transient.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrRecognitionFailure, ErrConflict, ErrCaptureUnavailable:
		return true
	}
	return false
}

// As is errors.As from the standard library, re-exported so callers that
// import this package under the name errors still have it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
