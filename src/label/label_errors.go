package label

import (
	"errors"
	"fmt"
)

// ErrMalformedLabel is the sentinel all MalformedLabelError values wrap,
// so callers can match the whole family with errors.Is.
var ErrMalformedLabel = errors.New("malformed label")

// ErrUnitMismatch is the sentinel for UnitMismatchError values.
var ErrUnitMismatch = errors.New("unit mismatch")

// MalformedLabelError reports a structurally invalid label file.
type MalformedLabelError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedLabelError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed label %s (line %d): %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed label %s: %s", e.Path, e.Reason)
}

func (e *MalformedLabelError) Unwrap() error {
	return ErrMalformedLabel
}

// UnitMismatchError reports a field whose declared unit does not match
// the unit the instrument schema expects for that field.
type UnitMismatchError struct {
	Path  string
	Field string
	Got   string
	Want  string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("label %s: field %s declares unit <%s>, expected <%s>",
		e.Path, e.Field, e.Got, e.Want)
}

func (e *UnitMismatchError) Unwrap() error {
	return ErrUnitMismatch
}
