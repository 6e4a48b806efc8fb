// Package apperr implements the error taxonomy from spec §7: a closed set
// of kinds, each bound to an HTTP status and an OperationOutcome issue code,
// so every layer of the server (store, indexer, search builder, bundle
// processor, HTTP handlers) reports failures through one shape instead of
// ad hoc string errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries from spec §7.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindDeleted             Kind = "deleted"
	KindVersionConflict     Kind = "version_conflict"
	KindPreconditionFailed  Kind = "precondition_failed"
	KindValidation          Kind = "validation"
	KindInvalidResource     Kind = "invalid_resource"
	KindMethodNotAllowed    Kind = "method_not_allowed"
	KindUnsupportedMedia    Kind = "unsupported_media_type"
	KindBusinessRule        Kind = "business_rule"
	KindFhirPath            Kind = "fhirpath"
	KindDatabase            Kind = "database"
	KindInternal            Kind = "internal"
)

// Error is the concrete error type every service-layer function returns.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the status code spec §7 assigns it.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindDeleted:
		return http.StatusGone
	case KindVersionConflict:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindValidation, KindInvalidResource, KindFhirPath:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindDatabase, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IssueCode maps a Kind to an OperationOutcome.issue.code token.
func (k Kind) IssueCode() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindDeleted:
		return "deleted"
	case KindVersionConflict:
		return "conflict"
	case KindPreconditionFailed:
		return "conflict"
	case KindValidation, KindFhirPath:
		return "invalid"
	case KindInvalidResource:
		return "structure"
	case KindMethodNotAllowed:
		return "not-supported"
	case KindUnsupportedMedia:
		return "not-supported"
	case KindBusinessRule:
		return "business-rule"
	case KindDatabase:
		return "transient"
	default:
		return "exception"
	}
}
