package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the first connection attempt.
	connectTimeout = 10 * time.Second

	// opTimeout bounds each publish, subscribe and unsubscribe.
	opTimeout = 5 * time.Second

	// disconnectQuiesce is how long Disconnect waits for in-flight work.
	disconnectQuiesce = 250 // milliseconds

	keepAlive = 30 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix starts generated client ids.
	clientIDPrefix = "graylogic-upnp-"
)

// Status values and reasons carried on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	ReasonShutdown = "graceful_shutdown"
	ReasonLost     = "unexpected_disconnect"
)

// Status is the retained JSON document on <prefix>/status.
type Status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload encodes a status document stamped with now.
func statusPayload(status, reason, clientID string, now time.Time) []byte {
	b, _ := json.Marshal(Status{ //nolint:errchkjson // plain strings always encode
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	return b
}

// resolveClientID returns the configured client id, or a generated one
// so two servers without configuration do not evict each other.
func resolveClientID(cfg config.MQTTBrokerConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

// brokerURL returns tcp://host:port, or ssl:// with TLS enabled.
func brokerURL(cfg config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// buildClientOptions maps the mqtt section onto paho options.
//
// The first connection is attempted once so a wrong broker address fails
// startup. After that paho reconnects on its own, backing off from
// reconnect.initial_delay up to reconnect.max_delay. The last will marks
// the server offline on <prefix>/status.
func buildClientOptions(cfg config.MQTTConfig, clientID string, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetConnectRetry(false).
		SetAutoReconnect(true)

	if cfg.Reconnect.InitialDelay > 0 {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	}
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	opts.SetBinaryWill(topics.Status(), statusPayload(StatusOffline, ReasonLost, clientID, time.Now()), 1, true)
	return opts
}

// waitToken waits for tok to complete, for ctx to end or for timeout to
// pass, whichever comes first.
func waitToken(ctx context.Context, tok pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	}
}
