// Package sqlerr defines the error categories reported by the tabular bridge.
//
// Every failure returned by the cursor, statement and connection types is a
// *Error whose Code is one of the sentinel categories below, so callers can
// branch with errors.Is without parsing messages.
package sqlerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCommand reports a malformed command document.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrFeatureNotSupported reports a legacy capability the bridge does not offer.
	ErrFeatureNotSupported = errors.New("feature not supported")
	// ErrCoercion reports a value that cannot be read as the requested type.
	ErrCoercion = errors.New("cannot coerce value")
	// ErrColumnIndex reports a column index outside the registered range.
	// It is also a coercion failure.
	ErrColumnIndex = errors.New("column index out of range")
	// ErrClosed reports use of a closed cursor, statement or connection.
	ErrClosed = errors.New("resource is closed")
)

// Error carries a category, the operation that failed and, when relevant,
// the column it failed on.
type Error struct {
	Code   error
	Op     string
	Column string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Is lets a column index failure also match ErrCoercion.
func (e *Error) Is(target error) bool {
	return e.Code == ErrColumnIndex && target == ErrCoercion
}

// InvalidCommand builds an ErrInvalidCommand failure.
func InvalidCommand(format string, args ...any) error {
	return &Error{Code: ErrInvalidCommand, Err: fmt.Errorf(format, args...)}
}

// NotSupported builds an ErrFeatureNotSupported failure for op.
func NotSupported(op string) error {
	return &Error{Code: ErrFeatureNotSupported, Op: op}
}

// Coercion builds an ErrCoercion failure for op on column.
func Coercion(op, column string, err error) error {
	return &Error{Code: ErrCoercion, Op: op, Column: column, Err: err}
}

// ColumnIndex builds an ErrColumnIndex failure.
func ColumnIndex(index, count int) error {
	return &Error{
		Code: ErrColumnIndex,
		Err:  fmt.Errorf("index %d not in [1, %d]", index, count),
	}
}

// Closed builds an ErrClosed failure for op.
func Closed(op string) error {
	return &Error{Code: ErrClosed, Op: op}
}
