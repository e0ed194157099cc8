package device

import "errors"

// Domain errors for the device package.
var (
	// ErrUUIDStore wraps failures of the UUID store during registration.
	ErrUUIDStore = errors.New("device: uuid store failure")

	// ErrAlreadyRegistered is returned when a provider resolves to a UUID
	// that is already published.
	ErrAlreadyRegistered = errors.New("device: already registered")
)
