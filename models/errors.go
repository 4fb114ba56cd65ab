package models

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrConflict is returned when a record already exists
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a user, topic, or subscription does not exist
	ErrNotFound = errors.New("not found")
	// ErrAuth is returned for invalid credentials or tokens
	// The message is intentionally generic
	ErrAuth = errors.New("invalid credentials")
	// ErrForbidden is returned when an authenticated user is not allowed to perform an action
	ErrForbidden = errors.New("forbidden")
	// ErrUpstreamUnavailable is returned when a feed source could not be retrieved or parsed
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError is returned when the input is malformed or missing
// Fields maps each field name to the list of problems with it
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns a ValidationError for a single field
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{
		Fields: map[string][]string{field: {msg}},
	}
}

// Add a problem for a field
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// HasErrors returns true if at least one field has a problem
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + strings.Join(e.Fields[k], ", ")
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
