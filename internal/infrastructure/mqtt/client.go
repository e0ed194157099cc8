package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
)

// Client is the server's connection to an MQTT broker.
//
// It announces the server on <prefix>/status (online on every connect,
// offline on Close, the last will otherwise) and re-subscribes tracked
// topics after paho reconnects.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Message handlers run on paho goroutines, one per message.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte
	topics   Topics

	mu            sync.RWMutex
	connected     bool
	subscriptions map[string]subscription
	onConnect     func()
	onDisconnect  func(err error)
	logger        Logger
}

// Logger receives handler failures and connection warnings.
// *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message.
//
// Parameters:
//   - topic: The concrete topic, wildcards expanded
//   - payload: The raw payload
//
// Returns:
//   - error: Logged as a warning; the message is acknowledged regardless
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker once and publishes the online status.
//
// Parameters:
//   - ctx: Cancels the connection attempt
//   - cfg: The mqtt section of config.yaml
//
// Returns:
//   - *Client: Connected client; paho reconnects it after later drops
//   - error: ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID:      resolveClientID(cfg.Broker),
		qos:           byte(cfg.QoS), // #nosec G115 -- validated to 0..2
		topics:        NewTopics(cfg.TopicPrefix),
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg, c.clientID, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.getLogger(); l != nil {
			l.Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
		}
	})

	c.client = pahomqtt.NewClient(opts)
	if err := waitToken(ctx, c.client.Connect(), connectTimeout); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The connect handler runs asynchronously and may not have run yet.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

// handleConnect runs on every successful (re)connection.
func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	subs := make(map[string]subscription, len(c.subscriptions))
	for topic, s := range c.subscriptions {
		subs[topic] = s
	}
	cb := c.onConnect
	c.mu.Unlock()

	c.client.Publish(c.topics.Status(), c.qos, true, statusPayload(StatusOnline, "", c.clientID, time.Now()))
	for topic, s := range subs {
		go c.resubscribe(topic, s)
	}
	if cb != nil {
		cb()
	}
}

// resubscribe restores one tracked subscription after a reconnect.
func (c *Client) resubscribe(topic string, s subscription) {
	err := waitToken(context.Background(), c.client.Subscribe(topic, s.qos, c.wrapHandler(s.handler)), opTimeout)
	if err != nil {
		if l := c.getLogger(); l != nil {
			l.Error("MQTT resubscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Close publishes the offline status and disconnects. Calling it on a
// client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		tok := c.client.Publish(c.topics.Status(), c.qos, true,
			statusPayload(StatusOffline, ReasonShutdown, c.clientID, time.Now()))
		if err := waitToken(context.Background(), tok, opTimeout); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("MQTT offline status not delivered", "error", err)
			}
		}
	}
	c.client.Disconnect(disconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if connected
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the client id in use, configured or generated.
func (c *Client) ClientID() string { return c.clientID }

// Topics returns the builders for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// QoS returns the configured QoS.
func (c *Client) QoS() byte { return c.qos }

// SetOnConnect installs a callback run after every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect installs a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger. Nil silences the client.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho. Handler errors are logged
// and panics recovered.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.getLogger(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("MQTT handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
