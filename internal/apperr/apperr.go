package apperr

import (
	"errors"
)

// Kind classifies an error for the transport layer.
type Kind uint8

const (
	Internal Kind = iota
	NotFound
	Forbidden
	Unauthorized
	Validation
	Upstream
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	case Validation:
		return "validation"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified application error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
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

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewNotFound(message string) *Error {
	return New(NotFound, message)
}

func NewForbidden(message string) *Error {
	return New(Forbidden, message)
}

func NewUnauthorized(message string) *Error {
	return New(Unauthorized, message)
}

// NewValidation builds a validation failure, optionally with per-field details.
func NewValidation(message string, fields ...FieldError) *Error {
	return &Error{Kind: Validation, Message: message, Fields: fields}
}

func NewUpstream(message string, err error) *Error {
	return Wrap(Upstream, message, err)
}

func NewInternal(message string, err error) *Error {
	return Wrap(Internal, message, err)
}

// KindOf reports the Kind of the first *Error in err's chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
