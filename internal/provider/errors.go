package provider

import "errors"

// Domain errors for provider operations.
var (
	// ErrInvalidDuration is returned by ParseDuration for malformed input.
	ErrInvalidDuration = errors.New("provider: invalid duration")

	// ErrNoSource is returned when seeking a player that has nothing loaded.
	ErrNoSource = errors.New("provider: no source loaded")
)
