package mqtt

import "errors"

// Sentinel errors. Broker-side failures wrap one of these with the cause.
var (
	// ErrNotConnected is returned by operations on a client that is not
	// connected, including one that was closed.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when the first connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker does not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe or unsubscribe is
	// rejected or times out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrPayloadTooLarge is returned for payloads above maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
