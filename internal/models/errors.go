package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindParse        ErrorKind = "parse"
	KindEmbedding    ErrorKind = "embedding"
	KindStore        ErrorKind = "store"
	KindGeneration   ErrorKind = "generation"
	KindInvalidInput ErrorKind = "invalid_input"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with kind and the failing operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed later: a provider failure or a throttled request.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindEmbedding, KindStore, KindGeneration, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classify returns err unchanged when it already carries a kind; otherwise it wraps err with kind.
func Classify(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(kind, op, err)
}
