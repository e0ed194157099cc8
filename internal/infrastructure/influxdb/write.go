package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
)

// Measurement names.
const (
	// MeasurementProperty records one point per changed evented property.
	MeasurementProperty = "upnp_property"

	// MeasurementAvailability records devices being published and withdrawn.
	MeasurementAvailability = "upnp_availability"
)

// RecordEvent writes a registry event. It is meant to be installed with
// device.Registry.AddListener; the write is non-blocking.
//
// Property values are stored in the "value" field when numeric or boolean
// (true is 1) and in the "text" field otherwise, so each field keeps one
// type across devices.
//
// Example point:
//
//	upnp_property,device_type=BinaryLight:1,property=state,unique_id=kitchen-light,uuid=5b8e... value=1
func (c *Client) RecordEvent(ev device.Event) {
	if !c.IsConnected() {
		return
	}

	switch ev.Type {
	case device.EventAvailable, device.EventUnavailable:
		available := 0.0
		if ev.Type == device.EventAvailable {
			available = 1
		}
		c.WritePointWithTime(MeasurementAvailability, eventTags(ev),
			map[string]any{"available": available}, ev.Time)

	case device.EventPropertyChanged:
		for name, v := range ev.Changes {
			tags := eventTags(ev)
			tags["property"] = name
			c.WritePointWithTime(MeasurementProperty, tags, propertyFields(v), ev.Time)
		}
	}
}

func eventTags(ev device.Event) map[string]string {
	tags := map[string]string{
		"uuid":        ev.UUID,
		"device_type": ev.DeviceType,
	}
	if ev.UniqueID != "" {
		tags["unique_id"] = ev.UniqueID
	}
	return tags
}

// propertyFields maps a property value onto the "value" or "text" field.
func propertyFields(v any) map[string]any {
	switch x := v.(type) {
	case bool:
		if x {
			return map[string]any{"value": 1.0}
		}
		return map[string]any{"value": 0.0}
	case int:
		return map[string]any{"value": float64(x)}
	case int64:
		return map[string]any{"value": float64(x)}
	case float64:
		return map[string]any{"value": x}
	case string:
		return map[string]any{"text": x}
	default:
		return map[string]any{"text": fmt.Sprint(x)}
	}
}

// WritePointWithTime writes a custom point with a specific timestamp.
// A zero timestamp means now.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.points.Add(1)
}
