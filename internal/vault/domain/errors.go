package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies acquisition and storage failures so callers can decide
// whether a retry makes sense without parsing message text.
type ErrorKind string

const (
	// KindProvisioning covers browser/profile setup failures. Retryable.
	KindProvisioning ErrorKind = "provisioning_failed"
	// KindNavigation covers portal unreachable or page-load timeouts. Retryable.
	KindNavigation ErrorKind = "navigation_failed"
	// KindValidation covers malformed account identifiers, secrets or codes.
	// Not retryable without caller correction.
	KindValidation ErrorKind = "invalid_request"
	// KindMFARequired means the portal asked for a one-time code that was not
	// supplied. The caller must resubmit with a code; this is not a system fault.
	KindMFARequired ErrorKind = "mfa_required"
	// KindLoginFailed means the portal rejected the credentials.
	KindLoginFailed ErrorKind = "login_failed"
	// KindStorage covers database connection or constraint failures. Retryable.
	KindStorage ErrorKind = "storage_unavailable"
	// KindCryptoConfig means the encryption keys are missing or malformed.
	// Fatal at startup; never retried silently.
	KindCryptoConfig ErrorKind = "crypto_config"
	// KindIntegrity means stored ciphertext failed authentication on read.
	// Must halt and alert, never auto-repair.
	KindIntegrity ErrorKind = "integrity_violation"
	// KindRateLimited is an admission-control rejection. Retryable after the window.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout means the caller's deadline elapsed while waiting on a future.
	KindTimeout ErrorKind = "timeout"
	// KindInternal is the fallback for unclassified failures.
	KindInternal ErrorKind = "internal_error"
)

// Retryable reports whether a failure of this kind may succeed if the same
// request is repeated without caller-side changes.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindProvisioning, KindNavigation, KindStorage, KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// Error is the structured error that crosses component boundaries. Message is
// sanitized and safe to return to callers; the wrapped cause stays internal
// and must never carry credentials or raw page content.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error with a safe message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError classifies an underlying error. The cause is kept for logs only;
// callers see the sanitized message.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from any error in the chain.
// Unclassified errors report KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// SafeMessage returns the caller-visible message for an error, falling back
// to a generic message for unclassified errors so internal detail never leaks.
func SafeMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
