// Package apperr defines the error taxonomy shared by the domain services
// and the HTTP layer.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Kind classifies a failure independently of the component that raised it.
type Kind string

const (
	Validation          Kind = "validation"
	NotFound            Kind = "not_found"
	InvalidState        Kind = "invalid_state"
	InsufficientStock   Kind = "insufficient_stock"
	PaymentInsufficient Kind = "payment_insufficient"
	RefundExceedsTotal  Kind = "refund_exceeds_total"
	Conflict            Kind = "conflict"
	Internal            Kind = "internal"
)

// StatusCode returns the HTTP status used to surface the kind.
func (k Kind) StatusCode() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case InvalidState, InsufficientStock, Conflict:
		return http.StatusConflict
	case PaymentInsufficient:
		return http.StatusPaymentRequired
	case RefundExceedsTotal:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a message safe to show to API clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it in the chain.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// kinded is implemented by typed domain errors that carry their own kind.
type kinded interface {
	Kind() Kind
}

// KindOf reports the kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the client-facing message for err. Internal errors never
// leak their cause.
func Message(err error) string {
	var k kinded
	if errors.As(err, &k) {
		if k.Kind() == Internal {
			return "internal server error"
		}
		return k.(error).Error()
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal server error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
