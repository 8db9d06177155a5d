package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one rejected setting.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error { return e.Err }

// ValidationErrors collects every rejected field of a settings or config
// check. Nested collections are flattened under a dotted prefix, so a bad
// device inside the run section reads "run.device".
type ValidationErrors struct {
	Errors []FieldError
}

// Add records err against field. Nil errors are ignored.
func (v *ValidationErrors) Add(field string, err error) {
	if err == nil {
		return
	}
	var nested *ValidationErrors
	if !errors.As(err, &nested) {
		v.Errors = append(v.Errors, FieldError{Field: field, Err: err})
		return
	}
	for _, sub := range nested.Errors {
		name := sub.Field
		if field != "" {
			name = field + "." + sub.Field
		}
		v.Errors = append(v.Errors, FieldError{Field: name, Err: sub.Err})
	}
}

// AddMessage records a plain message against field.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.Add(field, errors.New(message))
}

// Err returns nil when nothing was rejected.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the field errors to errors.Is and errors.As.
func (v *ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e)
	}
	return out
}

// OneOf rejects a value that is not one of the offered choices.
func OneOf(value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)", ErrInvalidSetting, value, strings.Join(allowed, ", "))
}
