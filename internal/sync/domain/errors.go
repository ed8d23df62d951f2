package domain

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotAuthorized means no valid access token exists for the user
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound means the document no longer exists upstream
	ErrNotFound = errors.New("document not found")
	// ErrTransient marks failures worth retrying (timeouts, rate limits, 5xx)
	ErrTransient = errors.New("transient upstream failure")
	// ErrPermanent marks content errors that must not be retried
	ErrPermanent = errors.New("permanent content error")
	// ErrUnknownKind means no handler is registered for a document kind
	ErrUnknownKind = errors.New("unknown document kind")
	// ErrDocumentTooLarge means the document exceeds the configured size limit
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrMalformedEvent means a change notification is structurally invalid
	ErrMalformedEvent = errors.New("malformed event")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// TransientError wraps err so that errors.Is(err, ErrTransient) holds
func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
