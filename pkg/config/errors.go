package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one rejected configuration field.
type ValidationError struct {
	Field       string   `json:"field"`
	Message     string   `json:"message"`
	ValidValues []string `json:"valid_values,omitempty"`
}

func (e ValidationError) Error() string {
	if len(e.ValidValues) > 0 {
		return fmt.Sprintf("config field %q: %s (valid: %s)",
			e.Field, e.Message, strings.Join(e.ValidValues, ", "))
	}
	return fmt.Sprintf("config field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError; validValues may be nil.
func NewValidationError(field, message string, validValues []string) ValidationError {
	return ValidationError{Field: field, Message: message, ValidValues: validValues}
}

// ValidationErrors aggregates every problem found in one Validate pass so
// the operator can fix them all at once.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d config validation errors:\n  - %s",
		len(e.Errors), strings.Join(msgs, "\n  - "))
}

// ConfigError describes a failure loading or merging configuration sources.
type ConfigError struct {
	Stage   string `json:"stage"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s (%s): %s", e.Stage, e.Path, e.Message)
	}
	return fmt.Sprintf("config %s: %s", e.Stage, e.Message)
}

// NewConfigError builds a ConfigError for a loading stage.
func NewConfigError(stage, path, message string) ConfigError {
	return ConfigError{Stage: stage, Path: path, Message: message}
}
