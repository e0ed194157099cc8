package directory

import "errors"

var (
	// ErrFetch is returned when a description cannot be retrieved.
	ErrFetch = errors.New("directory: fetching description failed")

	// ErrSchedule is returned by Start for an invalid refresh schedule.
	ErrSchedule = errors.New("directory: invalid refresh schedule")
)
