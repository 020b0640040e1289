// Package apperr defines the error taxonomy shared by the account core and
// the status classification the transport layer maps to protocol codes.
package apperr

import "errors"

// Kind is a machine-readable error category.
type Kind string

const (
	KindDuplicateEmail     Kind = "DuplicateEmail"
	KindDuplicateName      Kind = "DuplicateName"
	KindConflict           Kind = "Conflict"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindMalformedHash      Kind = "MalformedHash"
	KindInvalidSignature   Kind = "InvalidSignature"
	KindExpired            Kind = "Expired"
	KindMalformedToken     Kind = "MalformedToken"
	KindInvalidInput       Kind = "InvalidInput"
	KindInternal           Kind = "InternalError"
)

// Status is a transport-agnostic outcome classification.
type Status string

const (
	StatusOK           Status = "OK"
	StatusUnauthorized Status = "Unauthorized"
	StatusForbidden    Status = "Forbidden"
	StatusBadRequest   Status = "BadRequest"
	StatusConflict     Status = "Conflict"
	StatusNotFound     Status = "NotFound"
	StatusInternal     Status = "InternalError"
)

// Status classifies the kind.
func (k Kind) Status() Status {
	switch k {
	case KindInvalidCredentials, KindInvalidSignature, KindExpired, KindMalformedToken:
		return StatusUnauthorized
	case KindForbidden:
		return StatusForbidden
	case KindDuplicateEmail, KindDuplicateName, KindConflict:
		return StatusConflict
	case KindNotFound:
		return StatusNotFound
	case KindInvalidInput:
		return StatusBadRequest
	default:
		return StatusInternal
	}
}

// Error is a categorized error. Message is safe to show to callers; Err is
// the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind that retains cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Internal wraps an infrastructure fault behind a generic message.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}

// KindOf extracts the kind from err. Errors outside the taxonomy are
// reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusOf classifies err. A nil error is StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	return KindOf(err).Status()
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
