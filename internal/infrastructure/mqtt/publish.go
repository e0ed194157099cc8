package mqtt

import (
	"context"
	"fmt"
)

// maxPayloadSize caps a single payload at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker's acknowledgement
// (QoS 1 and 2) or for the write (QoS 0).
//
// Retained messages are kept by the broker and delivered to late
// subscribers. The server retains status, availability and directory
// documents; switch commands and property changes are not retained.
//
// Parameters:
//   - topic: Concrete topic, no wildcards
//   - payload: Message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
//     ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(context.Background(), c.client.Publish(topic, qos, retained, payload), opTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// validate checks the arguments shared by Publish and Subscribe.
func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
