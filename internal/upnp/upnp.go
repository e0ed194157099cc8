// Package upnp holds the names shared by the protocol engine packages:
// XML namespaces, URN builders, search targets and the server banner.
package upnp

import (
	"fmt"
	"runtime"
	"strings"
)

// XML namespaces.
const (
	DeviceSchema  = "urn:schemas-upnp-org:device-1-0"
	ServiceSchema = "urn:schemas-upnp-org:service-1-0"
	ControlSchema = "urn:schemas-upnp-org:control-1-0"
	EventSchema   = "urn:schemas-upnp-org:event-1-0"

	AVTransportMetadata      = "urn:schemas-upnp-org:metadata-1-0/AVT/"
	RenderingControlMetadata = "urn:schemas-upnp-org:metadata-1-0/RCS/"
)

// URN prefixes.
const (
	DeviceTypePrefix  = "urn:schemas-upnp-org:device:"
	ServiceTypePrefix = "urn:schemas-upnp-org:service:"
	ServiceIDPrefix   = "urn:upnp-org:serviceId:"
)

// Search and notification targets.
const (
	SearchAll  = "ssdp:all"
	RootDevice = "upnp:rootdevice"
	UUIDPrefix = "uuid:"
)

// XMLPrologue starts every document served by this package family.
const XMLPrologue = "<?xml version='1.0' encoding='utf-8'?>\n"

// DeviceType expands "BinaryLight:1" to its full URN.
func DeviceType(typeVer string) string {
	return DeviceTypePrefix + typeVer
}

// ServiceType expands "SwitchPower:1" to its full URN.
func ServiceType(typeVer string) string {
	return ServiceTypePrefix + typeVer
}

// ServiceID expands a short service id to its full URN.
func ServiceID(id string) string {
	return ServiceIDPrefix + id
}

// SplitTypeVer splits "SwitchPower:1" into "SwitchPower" and "1".
func SplitTypeVer(typeVer string) (typ, ver string) {
	typ, ver, _ = strings.Cut(typeVer, ":")
	return typ, ver
}

// SCPDPath returns the URL path of a service description, e.g.
// "/SwitchPower_1/service.xml".
func SCPDPath(typeVer string) string {
	typ, ver := SplitTypeVer(typeVer)
	return fmt.Sprintf("/%s_%s/service.xml", typ, ver)
}

// ServerBanner builds the SERVER header value:
// "<os>/1.0 UPnP/1.1 <product>/<version>".
func ServerBanner(product, version string) string {
	return fmt.Sprintf("%s/1.0 UPnP/1.1 %s/%s", runtime.GOOS, product, version)
}
