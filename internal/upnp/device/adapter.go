package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/description"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/gena"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// ServiceInstance is one service of a published device.
type ServiceInstance struct {
	// Type is the service type and version, e.g. "AVTransport:1".
	Type string

	// ID is the short service id used in the control and event URLs.
	ID string

	Controller Controller

	// Actions is the controller's action table with every handler wrapped
	// in a provider batch.
	Actions soap.ActionTable

	Publisher *gena.Publisher
}

// Adapter publishes one provider as a UPnP root device. It implements
// ssdp.Device.
type Adapter struct {
	provider provider.Provider
	mapping  Mapping

	uuid        string
	path        string
	configID    int
	description []byte

	services []*ServiceInstance
	detach   func()
}

// UUID returns the device UUID without the "uuid:" prefix.
func (a *Adapter) UUID() string { return a.uuid }

// IsRoot reports whether the device is advertised as a root device.
func (a *Adapter) IsRoot() bool { return a.mapping.Root }

// DeviceType returns the short device type, e.g. "BinaryLight:1".
func (a *Adapter) DeviceType() string { return a.mapping.TypeVer() }

// ServiceTypes returns the distinct short service types in mapping order.
func (a *Adapter) ServiceTypes() []string {
	seen := make(map[string]bool, len(a.services))
	out := make([]string, 0, len(a.services))
	for _, s := range a.services {
		if seen[s.Type] {
			continue
		}
		seen[s.Type] = true
		out = append(out, s.Type)
	}
	return out
}

// ConfigID returns the configuration id stamped into the description.
func (a *Adapter) ConfigID() int { return a.configID }

// Path returns the URL prefix of the device, "/<uuid>".
func (a *Adapter) Path() string { return a.path }

// Description returns the rendered device description.
func (a *Adapter) Description() []byte { return a.description }

// Provider returns the published provider.
func (a *Adapter) Provider() provider.Provider { return a.provider }

// Mapping returns the catalog entry the device was built from.
func (a *Adapter) Mapping() Mapping { return a.mapping }

// Services returns the service instances in mapping order.
func (a *Adapter) Services() []*ServiceInstance { return a.services }

// Service finds a service instance by its short id.
func (a *Adapter) Service(id string) (*ServiceInstance, bool) {
	for _, s := range a.services {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// SetConfigID changes the configuration id and regenerates the
// description.
func (a *Adapter) SetConfigID(id int) error {
	a.configID = id
	return a.render()
}

func (a *Adapter) render() error {
	in := description.Input{
		Manifest:      a.provider.Manifest(),
		DeviceTypeVer: a.mapping.TypeVer(),
		SpecMajor:     a.mapping.SpecMajor,
		SpecMinor:     a.mapping.SpecMinor,
		UUID:          a.uuid,
		ConfigID:      a.configID,
		Path:          a.path,
	}
	for _, s := range a.services {
		in.Services = append(in.Services, description.ServiceInput{TypeVer: s.Type, ID: s.ID})
	}

	doc, err := description.BuildDevice(in)
	if err != nil {
		return fmt.Errorf("building description of %s: %w", a.uuid, err)
	}
	a.description = doc
	return nil
}

func (a *Adapter) closeServices() {
	for _, s := range a.services {
		s.Publisher.Close()
	}
}

// Info is the status view of a published device.
type Info struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	UniqueID   string         `json:"unique_id,omitempty"`
	DeviceType string         `json:"device_type"`
	Mapping    string         `json:"mapping"`
	ConfigID   int            `json:"config_id"`
	Properties map[string]any `json:"properties"`
	Services   []ServiceInfo  `json:"services"`
}

// ServiceInfo is the status view of one service instance.
type ServiceInfo struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Subscriptions []gena.SubscriptionInfo `json:"subscriptions"`
}

// Info returns the current status of the device. It must be called on
// the event loop.
func (a *Adapter) Info() Info {
	m := a.provider.Manifest()
	props := a.provider.Properties().Snapshot()
	for name, v := range props {
		if d, ok := v.(time.Duration); ok {
			props[name] = provider.FormatDuration(d)
		}
	}

	info := Info{
		UUID:       a.uuid,
		Name:       m.DisplayName,
		UniqueID:   m.UniqueID,
		DeviceType: a.mapping.TypeVer(),
		Mapping:    a.mapping.Name,
		ConfigID:   a.configID,
		Properties: props,
	}
	for _, s := range a.services {
		info.Services = append(info.Services, ServiceInfo{
			ID:            s.ID,
			Type:          s.Type,
			Subscriptions: s.Publisher.Subscriptions(),
		})
	}
	return info
}
