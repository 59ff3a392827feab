package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a schema diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one finding from schema validation.
type Diagnostic struct {
	Severity Severity
	Code     string
	Field    string
	Message  string
}

func (d Diagnostic) String() string {
	msg := fmt.Sprintf("[%s] %s", d.Code, d.Message)
	if d.Field != "" {
		return d.Field + ": " + msg
	}
	return msg
}

// Diagnostics collects validation findings.
type Diagnostics struct {
	Errors   []Diagnostic
	Warnings []Diagnostic
}

func (d *Diagnostics) AddError(code, field, message string) {
	d.Errors = append(d.Errors, Diagnostic{Severity: SeverityError, Code: code, Field: field, Message: message})
}

func (d *Diagnostics) AddWarning(code, field, message string) {
	d.Warnings = append(d.Warnings, Diagnostic{Severity: SeverityWarning, Code: code, Field: field, Message: message})
}

func (d *Diagnostics) IsValid() bool { return len(d.Errors) == 0 }

// Err combines all error diagnostics, or returns nil.
func (d *Diagnostics) Err() error {
	if d.IsValid() {
		return nil
	}
	parts := make([]string, 0, len(d.Errors))
	for _, e := range d.Errors {
		parts = append(parts, e.String())
	}
	return errors.New(strings.Join(parts, "; "))
}
