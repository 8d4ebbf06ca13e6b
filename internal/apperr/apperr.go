package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the closed failure categories the
// engine can produce. Validation kinds are raised before any mutation
// commits; store kinds wrap failures of the underlying storage.
type Kind int

const (
	EmptyField Kind = iota + 1
	InvalidValue
	InvalidRange
	InvalidRelationship
	InvalidDate
	BusinessRuleViolation
	UnknownZone
	AmbiguousOrInvalidCivilTime
	FetchFailed
	SaveFailed
	DeleteFailed
)

func (k Kind) String() string {
	switch k {
	case EmptyField:
		return "empty_field"
	case InvalidValue:
		return "invalid_value"
	case InvalidRange:
		return "invalid_range"
	case InvalidRelationship:
		return "invalid_relationship"
	case InvalidDate:
		return "invalid_date"
	case BusinessRuleViolation:
		return "business_rule_violation"
	case UnknownZone:
		return "unknown_zone"
	case AmbiguousOrInvalidCivilTime:
		return "ambiguous_or_invalid_civil_time"
	case FetchFailed:
		return "fetch_failed"
	case SaveFailed:
		return "save_failed"
	case DeleteFailed:
		return "delete_failed"
	default:
		return "unknown"
	}
}

// Error carries a kind, the offending field (when there is one) and an
// optional wrapped cause.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Field, e.Msg, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, field, msg string) *Error {
	return &Error{Kind: kind, Field: field, Msg: msg}
}

func Newf(kind Kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, typically a store failure.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsValidation reports whether err is a local, recoverable validation
// failure (as opposed to a store failure the host must surface).
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k >= EmptyField && k <= AmbiguousOrInvalidCivilTime
}
