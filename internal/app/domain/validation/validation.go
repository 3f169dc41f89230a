// Package validation defines field-scoped validation errors shared by the
// domain packages.
package validation

import (
	"fmt"
	"strings"
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors aggregates field errors for one entity.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// Add appends a field error and returns the updated list.
func (e Errors) Add(field, message string) Errors {
	return append(e, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field errors were collected, so callers can
// return the result directly from a validate function.
func (e Errors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
