package influxdb

import "errors"

// Sentinel errors returned by Connect and HealthCheck. Write failures are
// asynchronous and reach the SetOnError callback instead.
var (
	// ErrDisabled means influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrInvalidConfig means the org or bucket is missing.
	ErrInvalidConfig = errors.New("influxdb: invalid configuration")

	// ErrConnectionFailed means the server did not answer the startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected means the client was never connected or is closed.
	ErrNotConnected = errors.New("influxdb: not connected")
)
