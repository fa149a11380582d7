// Package apperror defines the caller-facing error taxonomy. Every failure
// that crosses the HTTP boundary carries a machine-readable Kind and a
// human-readable message; wrapped internal errors stay server-side.
package apperror

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error code.
type Kind string

const (
	KindInvalidRangeToken      Kind = "INVALID_RANGE_TOKEN"
	KindInvalidRetentionPolicy Kind = "INVALID_RETENTION_POLICY"
	KindGatewayUnavailable     Kind = "GATEWAY_UNAVAILABLE"
	KindPayloadTooLarge        Kind = "PAYLOAD_TOO_LARGE"
	KindExportUnsupported      Kind = "EXPORT_UNSUPPORTED"
	KindInvalidRequest         Kind = "INVALID_REQUEST"
	KindPurgeInProgress        Kind = "PURGE_IN_PROGRESS"
	KindInternal               Kind = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. An *Error matches the sentinel of its kind.
var (
	ErrInvalidRangeToken      = &Error{Kind: KindInvalidRangeToken, Message: "invalid range token"}
	ErrInvalidRetentionPolicy = &Error{Kind: KindInvalidRetentionPolicy, Message: "invalid retention policy"}
	ErrGatewayUnavailable     = &Error{Kind: KindGatewayUnavailable, Message: "storage gateway unavailable"}
	ErrPayloadTooLarge        = &Error{Kind: KindPayloadTooLarge, Message: "payload too large"}
	ErrExportUnsupported      = &Error{Kind: KindExportUnsupported, Message: "export unsupported"}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrPurgeInProgress        = &Error{Kind: KindPurgeInProgress, Message: "purge already in progress"}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind with a caller-facing message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test against the
// package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message. Unclassified errors get a
// generic text so internal details are not leaked.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidRangeToken, KindInvalidRetentionPolicy, KindPayloadTooLarge, KindInvalidRequest:
		return http.StatusBadRequest
	case KindPurgeInProgress:
		return http.StatusConflict
	case KindGatewayUnavailable, KindExportUnsupported, KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
