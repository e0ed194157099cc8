package device

import (
	"strconv"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
)

// ControllerFactory creates the controller of one service for a provider
// that passed the mapping's capability check.
type ControllerFactory func(p provider.Provider) Controller

// ServiceMapping describes one service of a mapped device.
type ServiceMapping struct {
	// Type is the service type and version, e.g. "SwitchPower:1".
	Type string

	// ID is the short service id, e.g. "SwitchPower:1". It appears in URLs
	// and, with the serviceId prefix, in the description.
	ID string

	New ControllerFactory
}

// Mapping binds a provider capability to a UPnP device type.
type Mapping struct {
	// Name identifies the mapping in logs and the status API.
	Name string

	// Matches reports whether a provider has the capability this mapping
	// publishes.
	Matches func(p provider.Provider) bool

	DeviceType string
	Version    int
	SpecMajor  int
	SpecMinor  int
	Root       bool

	Services []ServiceMapping
}

// TypeVer returns the short device type, e.g. "BinaryLight:1".
func (m Mapping) TypeVer() string {
	return m.DeviceType + ":" + strconv.Itoa(m.Version)
}

// Catalog is an ordered list of mappings. The first match wins.
type Catalog struct {
	mappings []Mapping
}

// NewCatalog creates a catalog that checks mappings in the given order.
func NewCatalog(mappings ...Mapping) *Catalog {
	return &Catalog{mappings: append([]Mapping(nil), mappings...)}
}

// DefaultCatalog maps binary switches to BinaryLight:1 and media players
// to MediaRenderer:1.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Mapping{
			Name: "binary-light",
			Matches: func(p provider.Provider) bool {
				_, ok := p.(provider.BinarySwitch)
				return ok
			},
			DeviceType: "BinaryLight",
			Version:    1,
			SpecMajor:  1,
			SpecMinor:  0,
			Root:       true,
			Services: []ServiceMapping{
				{
					Type: "SwitchPower:1",
					ID:   "SwitchPower:1",
					New: func(p provider.Provider) Controller {
						return NewSwitchPower(p.(provider.BinarySwitch))
					},
				},
			},
		},
		Mapping{
			Name: "media-renderer",
			Matches: func(p provider.Provider) bool {
				_, ok := p.(provider.MediaPlayer)
				return ok
			},
			DeviceType: "MediaRenderer",
			Version:    1,
			SpecMajor:  1,
			SpecMinor:  0,
			Root:       true,
			Services: []ServiceMapping{
				{
					Type: "RenderingControl:1",
					ID:   "RenderingControl:1",
					New: func(p provider.Provider) Controller {
						return NewRenderingControl(p.(provider.MediaPlayer))
					},
				},
				{
					Type: "ConnectionManager:1",
					ID:   "ConnectionManager:1",
					New: func(provider.Provider) Controller {
						return NewConnectionManager()
					},
				},
				{
					Type: "AVTransport:1",
					ID:   "AVTransport:1",
					New: func(p provider.Provider) Controller {
						return NewAVTransport(p.(provider.MediaPlayer))
					},
				},
			},
		},
	)
}

// Match returns the first mapping that accepts p.
func (c *Catalog) Match(p provider.Provider) (Mapping, bool) {
	for _, m := range c.mappings {
		if m.Matches != nil && m.Matches(p) {
			return m, true
		}
	}
	return Mapping{}, false
}

// Mappings returns the mappings in priority order.
func (c *Catalog) Mappings() []Mapping {
	return append([]Mapping(nil), c.mappings...)
}
