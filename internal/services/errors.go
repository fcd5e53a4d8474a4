package services

import (
	"errors"
)

// NoAvailableKeyMessage is what callers and the error log see when the pool is exhausted
const NoAvailableKeyMessage = "No available API keys"

var (
	// ErrNoAvailableKey is returned by Selector.Pick when no key is enabled.
	ErrNoAvailableKey = errors.New("no available API keys")
	// ErrDuplicateKey is returned when adding a secret that is already pooled.
	ErrDuplicateKey = errors.New("key already exists")
	// ErrEmptyKey is returned when adding an empty secret.
	ErrEmptyKey = errors.New("key is required")
)

// TransportError wraps a failure where no upstream response was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
