package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes understood by automated handlers. Code semantics are part of the
// service contract: a genuine not-found is never distinguishable from a row
// filtered out by tenant, owner or type scoping.
const (
	EInternal       = "internal error"
	ETypeNotFound   = "type not found"  // referenced resource type is unregistered
	ENotFound       = "not found"       // absent, or filtered out by scoping predicates
	EForbidden      = "forbidden"       // pre-query scope denial (create target, empty list intersection)
	EInvalid        = "invalid"         // payload or request validation failed
	EConflict       = "conflict"        // idempotency key already consumed
	ETooLarge       = "request too large"
	EInvalidQuery   = "invalid query"   // filter/order outside the schema-field grammar
	ENotImplemented = "not implemented" // resolved backend lacks the requested capability
	EUnavailable    = "unavailable"     // transient storage failure, caller may retry
)

// Error is the error struct of resourcedb.
//
// Errors may have error codes, human-readable messages,
// and a logical stack trace.
//
// The Code targets automated handlers so that recovery can occur.
// Msg is used by the system operator to help diagnose and fix the problem.
// Op and Err chain errors together in a logical stack trace to
// further help operators.
//
// To create a simple error,
//
//	&Error{
//	    Code:ENotFound,
//	}
//
// To show where the error happens, add Op.
//
//	&Error{
//	    Code: ENotFound,
//	    Op: "sqlbackend.GetResource",
//	}
//
// To show an error with a unpredictable value, add the value in Msg.
//
//	&Error{
//	    Code: EConflict,
//	    Msg: fmt.Sprintf("idempotency key %q already used", key),
//	}
//
// To show an error wrapped with another error.
//
//	&Error{
//	    Code:EInternal,
//	    Err: err,
//	}.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// NewError returns an instance of an error.
func NewError(options ...func(*Error)) *Error {
	err := &Error{}
	for _, o := range options {
		o(err)
	}

	return err
}

// WithErrorErr sets the err on the error.
func WithErrorErr(err error) func(*Error) {
	return func(e *Error) {
		e.Err = err
	}
}

// WithErrorCode sets the code on the error.
func WithErrorCode(code string) func(*Error) {
	return func(e *Error) {
		e.Code = code
	}
}

// WithErrorMsg sets the message on the error.
func WithErrorMsg(msg string) func(*Error) {
	return func(e *Error) {
		e.Msg = msg
	}
}

// WithErrorOp sets the op on the error.
func WithErrorOp(op string) func(*Error) {
	return func(e *Error) {
		e.Op = op
	}
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the wrapped error, enabling errors.Is and errors.As
// against the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the root error, if available; otherwise returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		var coded *Error
		if errors.As(err, &coded) {
			e = coded
		} else {
			return EInternal
		}
	}

	if e == nil {
		return ""
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise return empty string.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return ""
	}

	if e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return "An internal error has occurred."
	}

	if e == nil {
		return ""
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}
