package pipeline

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrAlreadyRecoded is returned when a checklist table that has already been
// reverse-coded is passed to the scorer again. Recoding twice inverts 0 and 2
// back to their raw values.
var ErrAlreadyRecoded = errors.New("reverse-coded items already recoded")

// SchemaError reports an expected column or field that is absent, or a value
// whose type does not match the declared schema.
type SchemaError struct {
	Source string
	Field  string
	// Row is the zero-based data row, or -1 when the problem is not row specific.
	Row    int
	Reason string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error in %s: field %q", e.Source, e.Field)
	if e.Row >= 0 {
		msg += " row " + strconv.Itoa(e.Row)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func missingField(source, field string) *SchemaError {
	return &SchemaError{Source: source, Field: field, Row: -1, Reason: "missing"}
}

// PivotConflictError reports two values for the same item within one entry.
type PivotConflictError struct {
	EntryID string
	Item    string
	First   string
	Second  string
}

func (e *PivotConflictError) Error() string {
	return fmt.Sprintf("pivot conflict: entry %q item %q has values %q and %q", e.EntryID, e.Item, e.First, e.Second)
}

// DuplicateKeyError reports a key that maps to more than one value where a
// unique mapping is required.
type DuplicateKeyError struct {
	Table  string
	Key    string
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	if e.First == "" && e.Second == "" {
		return fmt.Sprintf("duplicate key %q in %s", e.Key, e.Table)
	}
	return fmt.Sprintf("duplicate key %q in %s: %q vs %q", e.Key, e.Table, e.First, e.Second)
}

// RangeError reports a value outside its bounded domain.
type RangeError struct {
	Column string
	Row    int
	Value  float64
	Min    float64
	Max    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %g in column %q row %d outside [%g, %g]", e.Value, e.Column, e.Row, e.Min, e.Max)
}
