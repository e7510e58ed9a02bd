// Package docerrors defines the error kinds shared across the extraction
// pipeline, following the teacher's single-purpose *Error pattern
// (internal/extraction/extractor.go's ValidationError) generalized to
// every kind the pipeline can fail with.
package docerrors

import "fmt"

// Kind classifies why an operation failed.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindParse       Kind = "parse"
	KindLLM         Kind = "llm"
	KindPersistence Kind = "persistence"
	KindInternal    Kind = "internal"
)

// Error wraps a cause with a Kind so callers can branch on failure class
// without string-matching the message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error that preserves cause for errors.Is/As chains.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether err is a docerrors.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
