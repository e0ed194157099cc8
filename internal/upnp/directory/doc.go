// Package directory keeps a list of the UPnP root devices seen on the
// network.
//
// The Directory listens to the SSDP engine. An alive announcement for
// upnp:rootdevice from an unknown device creates an entry and starts an
// HTTP fetch of its description. Once the description has been read the
// entry is ready: it carries the friendly name and the icon list, and
// listeners are told about it. Later announcements from the same device
// push its expiry out by their max-age; a byebye, an expiry or a failed
// fetch removes it.
//
// An optional cron schedule repeats the root device search so devices
// that missed the initial search are found without waiting for their
// next announcement.
package directory
