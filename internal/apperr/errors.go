// Package apperr defines the error kinds shared by every layer of the storefront.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInvalidState        Kind = "invalid_state"
	KindOutOfStock          Kind = "out_of_stock"
	KindUnauthorized        Kind = "unauthorized"
	KindConflict            Kind = "conflict"
	KindTransactionConflict Kind = "transaction_conflict"
	KindUpstreamFailure     Kind = "upstream_failure"
	KindInternal            Kind = "internal"
)

func (k Kind) String() string {
	return string(k)
}

// Kind sentinels. errors.Is(err, ErrNotFound) is true for any *Error of that kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrOutOfStock          = &Error{Kind: KindOutOfStock, Message: "out of stock"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrTransactionConflict = &Error{Kind: KindTransactionConflict, Message: "transaction conflict"}
	ErrUpstreamFailure     = &Error{Kind: KindUpstreamFailure, Message: "upstream failure"}
)

// Error carries a kind, the operation that produced it and a client-safe message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Available is set for out-of-stock errors.
	Available int
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error of the same kind, so package sentinels compare by kind
// when the target carries no message, and by kind and message otherwise.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if isKindSentinel(t) {
		return true
	}
	return t.Message == e.Message
}

func isKindSentinel(t *Error) bool {
	switch t {
	case ErrNotFound, ErrInvalidArgument, ErrInvalidState, ErrOutOfStock,
		ErrUnauthorized, ErrConflict, ErrTransactionConflict, ErrUpstreamFailure:
		return true
	}
	return false
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func NotFound(op, format string, args ...any) *Error {
	return Newf(KindNotFound, op, format, args...)
}

func InvalidArgument(op, format string, args ...any) *Error {
	return Newf(KindInvalidArgument, op, format, args...)
}

func InvalidState(op, format string, args ...any) *Error {
	return Newf(KindInvalidState, op, format, args...)
}

// OutOfStock reports that a product has only available units left.
func OutOfStock(op, productName string, available int) *Error {
	return &Error{
		Kind:      KindOutOfStock,
		Op:        op,
		Message:   fmt.Sprintf("product %q has only %d in stock", productName, available),
		Available: available,
	}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of the first *Error in the chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return ""
}
