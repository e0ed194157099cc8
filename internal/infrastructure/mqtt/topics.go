package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "graylogic/upnp"

// Topics builds the topics this server publishes on. Using these helpers
// keeps topic naming consistent across the codebase.
//
//	topics := mqtt.NewTopics("graylogic/upnp")
//	topics.DeviceAvailability("5b8e...")
//	// Returns: "graylogic/upnp/device/5b8e.../availability"
//
// Switch command and state topics are not built here; each switch names
// its own in config.yaml.
type Topics struct {
	Prefix string
}

// NewTopics returns builders under prefix. Trailing slashes are trimmed
// and an empty prefix means DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Status returns the server status topic carrying the online, offline and
// last-will payloads.
//
// Example: graylogic/upnp/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// DeviceAvailability returns the retained availability topic of a
// published device ("online" or "offline").
//
// Example: graylogic/upnp/device/5b8e.../availability
func (t Topics) DeviceAvailability(uuid string) string {
	return fmt.Sprintf("%s/device/%s/availability", t.Prefix, uuid)
}

// DeviceProperties returns the topic carrying property change sets of a
// published device.
//
// Example: graylogic/upnp/device/5b8e.../properties
func (t Topics) DeviceProperties(uuid string) string {
	return fmt.Sprintf("%s/device/%s/properties", t.Prefix, uuid)
}

// DirectoryDevice returns the retained topic describing a remote device
// found by discovery. An empty retained payload clears it.
//
// Example: graylogic/upnp/directory/uuid:1234
func (t Topics) DirectoryDevice(udn string) string {
	return fmt.Sprintf("%s/directory/%s", t.Prefix, udn)
}

// AllDevices returns a pattern matching every published device topic.
//
// Pattern: graylogic/upnp/device/#
func (t Topics) AllDevices() string {
	return fmt.Sprintf("%s/device/#", t.Prefix)
}

// AllDirectory returns a pattern matching every directory topic.
//
// Pattern: graylogic/upnp/directory/+
func (t Topics) AllDirectory() string {
	return fmt.Sprintf("%s/directory/+", t.Prefix)
}

// AllTopics returns a pattern matching every topic under the prefix.
//
// Pattern: graylogic/upnp/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.Prefix)
}
