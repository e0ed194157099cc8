// Package influxdb provides InfluxDB connectivity for Gray Logic UPnP.
//
// It wraps the official influxdb-client-go v2 library and records the
// history of published devices: every evented property change becomes an
// upnp_property point and every publish or withdrawal an
// upnp_availability point.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	registry.AddListener(client.RecordEvent)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, so
// RecordEvent is safe to call on the event loop.
//
// # Error Handling
//
// Write errors are delivered asynchronously through SetOnError.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
package influxdb
