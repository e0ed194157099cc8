// Package mqtt provides MQTT client connectivity for Gray Logic UPnP.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is optional. When enabled, the broker carries two flows:
//
//	UPnP registry/directory events -> bridge -> <prefix>/device/..., <prefix>/directory/...
//	home automation switch topics  -> bridge -> UPnP BinaryLight devices
//
// The bridge lives in internal/bridges/mqtt; this package only knows how
// to talk to a broker and how to name the server's own topics.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on the same host
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/kitchen/light/state", 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
//	err = client.Publish(client.Topics().DeviceAvailability(uuid), []byte("online"), client.QoS(), true)
package mqtt
