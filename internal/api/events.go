package api

import (
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
)

// Directory event stream channels. Registry channels are the values of
// device.EventType.
const (
	ChannelDirectoryAdded   = "directory.added"
	ChannelDirectoryRemoved = "directory.removed"
)

// eventRelay forwards registry and directory events to the hub. Its
// methods run on the event loop; Broadcast never blocks.
type eventRelay struct {
	hub *Hub
}

func (e *eventRelay) deviceEvent(ev device.Event) {
	e.hub.Broadcast(string(ev.Type), ev.UUID, ev)
}

// Added implements directory.Listener.
func (e *eventRelay) Added(d directory.Device) {
	e.hub.Broadcast(ChannelDirectoryAdded, d.UDN, d)
}

// Removed implements directory.Listener.
func (e *eventRelay) Removed(d directory.Device) {
	e.hub.Broadcast(ChannelDirectoryRemoved, d.UDN, d)
}
