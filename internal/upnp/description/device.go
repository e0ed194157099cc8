package description

import (
	"encoding/xml"
	"fmt"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

// DefaultManufacturer is used when a manifest does not name one.
const DefaultManufacturer = "Gray Logic"

// Root is the <root> element of a device description.
type Root struct {
	XMLName     xml.Name    `xml:"root"`
	Xmlns       string      `xml:"xmlns,attr"`
	ConfigID    int         `xml:"configId,attr,omitempty"`
	SpecVersion SpecVersion `xml:"specVersion"`
	Device      Device      `xml:"device"`
}

// SpecVersion is the UPnP architecture version the description follows.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// Device is the <device> element.
type Device struct {
	DeviceType       string    `xml:"deviceType"`
	FriendlyName     string    `xml:"friendlyName,omitempty"`
	Manufacturer     string    `xml:"manufacturer,omitempty"`
	ModelDescription string    `xml:"modelDescription,omitempty"`
	ModelName        string    `xml:"modelName,omitempty"`
	ModelNumber      string    `xml:"modelNumber,omitempty"`
	UDN              string    `xml:"UDN"`
	Icons            []Icon    `xml:"iconList>icon,omitempty"`
	Services         []Service `xml:"serviceList>service"`
}

// Icon is one <icon> entry of a device's icon list.
type Icon struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

// Service is one <service> entry of a device's service list.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// ServiceInput names one service of the device being described.
type ServiceInput struct {
	// TypeVer is the service type and version, e.g. "SwitchPower:1".
	TypeVer string

	// ID is the short service id used in URLs, e.g. "SwitchPower:1".
	ID string
}

// Input is everything BuildDevice needs.
type Input struct {
	Manifest provider.Manifest

	// DeviceTypeVer is the device type and version, e.g. "BinaryLight:1".
	DeviceTypeVer string
	SpecMajor     int
	SpecMinor     int

	UUID     string
	ConfigID int

	// Path is the device's URL prefix, "/<uuid>".
	Path string

	Services []ServiceInput
}

// BuildDevice renders the device description for in.
//
// Optional manifest fields are only emitted when non-empty; the
// manufacturer defaults to DefaultManufacturer and the model name to the
// display name.
//
// Parameters:
//   - in: Device metadata and service list
//
// Returns:
//   - []byte: UTF-8 XML including the prologue
//   - error: If marshalling fails
func BuildDevice(in Input) ([]byte, error) {
	m := in.Manifest

	manufacturer := m.Manufacturer
	if manufacturer == "" {
		manufacturer = DefaultManufacturer
	}
	modelName := m.FullName
	if modelName == "" {
		modelName = m.DisplayName
	}

	root := Root{
		Xmlns:       upnp.DeviceSchema,
		ConfigID:    in.ConfigID,
		SpecVersion: SpecVersion{Major: in.SpecMajor, Minor: in.SpecMinor},
		Device: Device{
			DeviceType:       upnp.DeviceType(in.DeviceTypeVer),
			FriendlyName:     m.DisplayName,
			Manufacturer:     manufacturer,
			ModelDescription: m.Description,
			ModelName:        modelName,
			ModelNumber:      m.ModelNumber,
			UDN:              upnp.UUIDPrefix + in.UUID,
		},
	}

	for _, s := range in.Services {
		root.Device.Services = append(root.Device.Services, Service{
			ServiceType: upnp.ServiceType(s.TypeVer),
			ServiceID:   upnp.ServiceID(s.ID),
			SCPDURL:     upnp.SCPDPath(s.TypeVer),
			ControlURL:  in.Path + "/" + s.ID + "/control",
			EventSubURL: in.Path + "/" + s.ID + "/sub",
		})
	}

	body, err := xml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("marshalling device description: %w", err)
	}
	return append([]byte(upnp.XMLPrologue), body...), nil
}

// ParseDevice reads a device description. It accepts documents with or
// without a default namespace.
func ParseDevice(data []byte) (*Root, error) {
	var root Root
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &root, nil
}
