package config

import (
	"errors"
	"fmt"
)

// Error definitions for the config package.
var (
	// ErrInvalidConfigPath is returned when the config file path is invalid.
	ErrInvalidConfigPath = errors.New("invalid config file path")

	// ErrInvalidConfig is returned when a parsed configuration fails
	// semantic validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// FieldError reports a semantically invalid configuration field.
type FieldError struct {
	Field  string
	Detail string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid configuration: field %q: %s", e.Field, e.Detail)
}

// Unwrap returns ErrInvalidConfig so callers can match with errors.Is.
func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}
