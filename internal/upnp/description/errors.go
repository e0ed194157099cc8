package description

import "errors"

// Domain errors for description handling.
var (
	// ErrUnknownService is returned when no SCPD template exists for a service type.
	ErrUnknownService = errors.New("description: unknown service type")

	// ErrMalformed is returned when a description document cannot be parsed.
	ErrMalformed = errors.New("description: malformed document")
)
