package mqtt

import (
	"context"
	"fmt"
)

// Subscribe delivers messages matching topic to handler and remembers the
// subscription so it is restored after a reconnect.
//
// topic may use the + and # wildcards, e.g. Topics.AllDirectory().
// Subscribing again to the same topic replaces the handler.
//
// Parameters:
//   - topic: Topic filter
//   - qos: Maximum QoS of delivered messages
//   - handler: Called once per message on a paho goroutine
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or
//     ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := waitToken(context.Background(), c.client.Subscribe(topic, qos, c.wrapHandler(handler)), opTimeout); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe stops delivery for a topic filter passed to Subscribe.
// Messages already in flight may still reach the handler.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	if err := waitToken(context.Background(), c.client.Unsubscribe(topic), opTimeout); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}
