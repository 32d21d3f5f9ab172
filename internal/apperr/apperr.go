// Package apperr holds the sentinel errors the pipeline distinguishes
// between and small wrapping helpers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload indicates a webhook body that none of the
	// known payload shapes can be extracted from.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrWeightConfiguration indicates KPI weights that do not sum to 100
	ErrWeightConfiguration = errors.New("kpi weights must sum to 100")

	// ErrLLMTransport indicates the LLM HTTP call failed
	ErrLLMTransport = errors.New("llm transport error")

	// ErrLLMTimeout indicates the LLM call exceeded its deadline
	ErrLLMTimeout = errors.New("llm timeout")

	// ErrLLMResponseInvalid indicates no parseable JSON in the LLM output
	ErrLLMResponseInvalid = errors.New("llm response invalid")

	// ErrLLMNotConfigured indicates no usable LLM profile for a dashboard type
	ErrLLMNotConfigured = errors.New("llm not configured")

	// ErrDecryptionFailure indicates a stored API key could not be decrypted
	ErrDecryptionFailure = errors.New("secret decryption failure")
)

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
