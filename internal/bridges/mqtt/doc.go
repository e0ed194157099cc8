// Package mqtt bridges Gray Logic UPnP and an MQTT broker.
//
// It works in both directions:
//
//	home automation topics ──► Switch providers ──► UPnP BinaryLight devices
//	registry/directory events ──► <prefix>/device/..., <prefix>/directory/...
//
// # Switches
//
// Each configured switch is a provider.Switch bound to two topics. A
// SetTarget from a control point publishes "ON" or "OFF" on the command
// topic. Messages on the state topic update the switch without echoing a
// command, so the UPnP side follows the real device.
//
// State payloads may be ON/OFF, true/false, 1/0 (any case) or a JSON object
// carrying a boolean "state" or "on" field.
//
// # Event publishing
//
// Registry listeners and directory listeners run on the event loop and must
// not block, so publishing goes through a bounded outbox drained by one
// goroutine. When the outbox is full the message is dropped with a warning.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package mqtt
