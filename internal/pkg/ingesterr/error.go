// Package ingesterr defines the structured error type used across the
// ingestion pipeline. Every internal retry or fallback happens at its own
// layer; only the final failure of the last fallback surfaces as one of
// these, carrying a user-facing message and whether a retry is safe.
package ingesterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies pipeline failures into the buckets callers act on.
type Kind int

const (
	KindInternal         Kind = iota // unspecified server-side failure
	KindValidation                   // bad file type or empty file, fatal
	KindPermission                   // storage container unwritable
	KindTransientNetwork             // single network call failure
	KindConflict                     // duplicate dataset name, needs a decision
	KindConstraint                   // metadata write rejected
	KindMerge                        // chunk finalize failed
	KindCancelled                    // attempt cancelled by the caller
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindTransientNetwork:
		return "transient_network"
	case KindConflict:
		return "conflict"
	case KindConstraint:
		return "constraint"
	case KindMerge:
		return "merge"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a user-facing message, a kind, and a
// retry hint. The raw cause is never shown to users.
type Error struct {
	kind      Kind
	msg       string
	retryable bool
	err       error

	// ConflictID carries the existing record id for KindConflict.
	ConflictID uint
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Msg is the user-facing message.
func (e *Error) Msg() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

// Retryable reports whether re-invoking the operation is safe.
func (e *Error) Retryable() bool { return e.retryable }

// StatusCode maps the kind to an HTTP status code.
func (e *Error) StatusCode() int {
	switch e.kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermission:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindTransientNetwork:
		return http.StatusBadGateway
	case KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, msg string, retryable bool, err error) *Error {
	return &Error{kind: kind, msg: msg, retryable: retryable, err: err}
}

// NewValidation creates a fatal validation error. Never retryable.
func NewValidation(msg string) error {
	return newError(KindValidation, msg, false, nil)
}

// NewPermission creates a storage-permission error. Retryable after the
// bootstrap cascade has had a chance to fix policies.
func NewPermission(msg string, err error) error {
	return newError(KindPermission, msg, true, err)
}

// NewTransient creates a transient network error.
func NewTransient(msg string, err error) error {
	return newError(KindTransientNetwork, msg, true, err)
}

// NewConflict creates a duplicate-name conflict carrying the existing id.
func NewConflict(existingID uint) error {
	e := newError(KindConflict, "a dataset with this name already exists", false, nil)
	e.ConflictID = existingID
	return e
}

// NewConstraint creates a metadata-write rejection error.
func NewConstraint(err error) error {
	return newError(KindConstraint, "failed to save dataset metadata", true, err)
}

// NewMerge creates a hard chunk-finalize error. The transferred chunks are
// orphaned; retrying restarts the transfer.
func NewMerge(err error) error {
	return newError(KindMerge, "failed to finalize chunked upload", true, err)
}

// NewCancelled marks an attempt aborted by its caller.
func NewCancelled() error {
	return newError(KindCancelled, "upload cancelled", false, context.Canceled)
}

// NewInternal wraps an unclassified failure.
func NewInternal(msg string, err error) error {
	return newError(KindInternal, msg, false, err)
}

// KindOf extracts the kind from err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports the retry hint of err; plain errors are not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.retryable
	}
	return false
}

// UserMessage returns the user-facing message for err, falling back to a
// generic one so raw internals never leak.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}
