package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the category of an error.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Generic codes. Packages define their own, more specific ones.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUpstream     = "UPSTREAM_FAILURE"
	CodeInternal     = "INTERNAL_ERROR"
)

// Base errors, matched by Kind through errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream failure")
	ErrInternal     = errors.New("internal error")
)

// Error is the structured error returned across service boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string // operation that failed, e.g. "orders.Cancel"
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is against the base errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// WithOp returns a copy of e tagged with the failing operation.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// WithField returns a copy of e with an extra detail field.
func (e *Error) WithField(key, value string) *Error {
	c := *e
	c.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	c.Fields[key] = value
	return &c
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Unauthorized(code, message string) *Error { return newError(KindUnauthorized, code, message) }
func NotFound(code, message string) *Error     { return newError(KindNotFound, code, message) }
func Forbidden(code, message string) *Error    { return newError(KindForbidden, code, message) }
func Validation(code, message string) *Error   { return newError(KindValidation, code, message) }

// Upstream wraps a failure of an external collaborator (payment provider,
// identity provider, notification relay).
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUpstream, Message: "upstream service failed", Op: op, Err: err}
}

// Internal wraps an unexpected failure, typically from the data store.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Op: op, Err: err}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the Kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf reports the Code of err, or CodeInternal.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok && appErr.Code != "" {
		return appErr.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
