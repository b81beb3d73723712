package channel

import (
	"errors"
	"fmt"
)

// Kind is the stable category of an adapter failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindSerialization Kind = "serialization"
	KindTransport     Kind = "transport"
)

// Sentinels for errors.Is checks against a failure category.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrTransport     = &Error{Kind: KindTransport}
)

// Error is a categorized adapter failure.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any Error of the same kind, so errors.Is(err, ErrTransport) holds
// for every transport failure regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Validation reports a malformed inbound payload.
func Validation(op string, detail string) error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

// Serialization reports a failed canonical/wire mapping.
func Serialization(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}

// Transport reports a failed network exchange.
func Transport(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// Transportf reports a failed network exchange described by a format string.
func Transportf(op string, format string, args ...any) error {
	return &Error{Kind: KindTransport, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the outermost category of err, or "" when uncategorized.
func KindOf(err error) Kind {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}
	return ""
}
