package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the startup ping when ctx has no deadline.
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// serviceTag is added to every point so several servers can share a bucket.
	serviceTag = "graylogic-upnp"
)

// Client records UPnP device history in an InfluxDB v2 bucket.
//
// Points go through the library's non-blocking write API, which batches
// them and flushes every flush_interval seconds or batch_size points,
// whichever comes first.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - RecordEvent never blocks, so it may run on the event loop.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)

	points      atomic.Uint64
	writeErrors atomic.Uint64
}

// Connect creates the client and pings the server.
//
// Parameters:
//   - ctx: Bounds the ping; connectTimeout applies on top
//   - cfg: The influxdb section of config.yaml
//
// Returns:
//   - *Client: Client ready to record events
//   - error: ErrDisabled, ErrInvalidConfig or ErrConnectionFailed
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: org and bucket are required", ErrInvalidConfig)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s is not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.watchErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions maps batch settings onto library options. Non-positive
// values fall back to the defaults.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(time.Duration(flush) * time.Second / time.Millisecond)).
		AddDefaultTag("service", serviceTag)
}

// watchErrors counts asynchronous write failures and hands them to the
// callback. It ends when the write API is closed.
func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)

		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError installs a callback for asynchronous write failures. It is
// called from the client's own goroutine.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Stats reports how many points were queued and how many batches failed
// since Connect.
func (c *Client) Stats() (points, writeErrors uint64) {
	return c.points.Load(), c.writeErrors.Load()
}

// IsConnected reports whether Connect succeeded and Close has not run.
// Use HealthCheck for an active probe.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if the server answered healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// Flush sends buffered points now and waits for the write. It does
// nothing after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes buffered points and releases the client. A zero Client
// closes without error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if !wasConnected {
		return nil
	}

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
