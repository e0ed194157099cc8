package mqtt

import "errors"

// Domain errors for the MQTT bridge package.
var (
	// ErrInvalidConfig is returned by New when a switch cannot be built
	// from its configuration.
	ErrInvalidConfig = errors.New("mqtt bridge: invalid configuration")

	// ErrInvalidPayload is returned when a state message cannot be read as
	// on or off.
	ErrInvalidPayload = errors.New("mqtt bridge: invalid state payload")
)
