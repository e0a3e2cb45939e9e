package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProvider is returned when a Type does not satisfy the provider contract.
	ErrInvalidProvider = errors.New("provider must have a name and a factory")

	// ErrAlreadyActive is returned when activating a provider type that is already active.
	ErrAlreadyActive = errors.New("provider is already activated")

	// ErrMultipleProviders is returned when activating a provider while another one is active.
	ErrMultipleProviders = errors.New("multiple providers are currently not supported")

	// ErrNotImplemented is returned by the abstract base contract.
	ErrNotImplemented = errors.New("does not implement this method")
)

// ConfigurationError reports missing or invalid provider options. It is
// returned at activation time and is never retried.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
