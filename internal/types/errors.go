package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the command boundary can report them once.
type ErrorKind int

const (
	// ConfigurationError covers missing databases, invalid config files and
	// identical source/destination targets.
	ConfigurationError ErrorKind = iota + 1

	// SchemaError covers directives naming unknown tables or columns and edge
	// mappings that reference columns absent from returned rows.
	SchemaError

	// QueryServiceError wraps opaque I/O failures from the data store.
	QueryServiceError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration error"
	case SchemaError:
		return "schema error"
	case QueryServiceError:
		return "query error"
	default:
		return "error"
	}
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: SchemaError})
// reports whether err carries that classification anywhere in its chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && t.Err == nil
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil; an err that is already classified
// keeps its original kind.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or 0 if it has none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
