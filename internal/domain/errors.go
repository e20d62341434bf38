package domain

import (
	"errors"
	"fmt"
)

// Domain Const errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrProviderInactive   = errors.New("provider is not active")
	ErrQuotaExhausted     = errors.New("provider daily quota exhausted")
	ErrNoEligibleProvider = errors.New("no eligible provider available")
	ErrCannotCancel       = errors.New("delivery cannot be cancelled")
	ErrBatchSizeExceeded  = errors.New("batch size exceeded maximum limit")
	ErrReservationSettled = errors.New("quota reservation already settled")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Errors[0].Error())
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ConfigError reports a provider configuration that cannot produce a
// dispatchable request. Field names the offending configuration field when
// known.
type ConfigError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("provider configuration: %s", e.Reason)
	}
	return fmt.Sprintf("provider configuration: %s: %s", e.Field, e.Reason)
}

func NewConfigError(field, reason string) ConfigError {
	return ConfigError{Field: field, Reason: reason}
}
