// Package fielderr defines the structured error taxonomy the field sampling
// engine surfaces to its callers, mirroring the way the teacher distinguishes
// a handler-level ForbiddenError from an ordinary authentication failure.
package fielderr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure into one of the taxonomy buckets a caller (HTTP
// handler, CLI, or test) needs to branch on.
type Kind string

const (
	// BadRequest covers missing/invalid targetId, non-integer chunk
	// coordinates, an out-of-range chunk count, or a malformed body.
	BadRequest Kind = "bad_request"
	// TargetNotFound means no eligible record exists for the focal id.
	TargetNotFound Kind = "target_not_found"
	// PcaUnavailable means the PCA basis failed to load or has rank < 2.
	PcaUnavailable Kind = "pca_unavailable"
	// StoreFailure covers vector-store query or connection errors.
	StoreFailure Kind = "store_failure"
	// Internal covers any other unanticipated fault.
	Internal Kind = "internal"
)

// Error is a typed error carrying enough information for a caller to pick an
// HTTP status code and a stable machine-readable kind without string
// matching on the message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Status maps a Kind to its HTTP status code per spec §7.
func Status(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case TargetNotFound:
		return http.StatusNotFound
	case PcaUnavailable, StoreFailure, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, defaulting
// to Internal otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}
