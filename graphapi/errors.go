package graphapi

import "errors"

var (
	// ErrPositiveNotResolved means no node carrying the positive prompt could be located
	ErrPositiveNotResolved = errors.New("positive prompt node could not be resolved")
	// ErrInconsistentBinding is returned when a bound node has disappeared from the working copy
	ErrInconsistentBinding = errors.New("binding does not match workflow")
	// ErrEmptyPrompt is returned when a request carries no prompt text
	ErrEmptyPrompt = errors.New("prompt is required")
)

// ConfigError is a fatal problem detected while constructing the tool
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Err.Error()
	}
	return "configuration error: " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
