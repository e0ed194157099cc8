// Package description builds the XML documents a UPnP control point reads:
// the root device description served at /<uuid>/description.xml and the
// service control protocol descriptions (SCPD) served at
// /<Type>_<ver>/service.xml.
//
// BuildDevice is a pure function of its Input. ParseDevice reads a device
// description back, which the directory uses for remote devices.
//
// SCPD documents are embedded templates (services/*.xml). LoadSCPD stamps
// the current configId, strips indentation and forces the default
// namespace to the UPnP service schema. SCPDRegistry caches the result per
// service type and regenerates it when the config id changes.
package description
