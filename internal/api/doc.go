// Package api implements the HTTP surface of Gray Logic UPnP.
//
// One listener serves two audiences:
//   - UPnP control points: device and service descriptions, SOAP control
//     and GENA SUBSCRIBE/UNSUBSCRIBE
//   - Operators and dashboards: a JSON status API and a WebSocket event
//     stream under /api/v1
//
// # Architecture
//
// Handlers never touch registry or directory state directly. Each request
// hops onto the event loop with loop.Do, reads or mutates state there, and
// writes its response after returning to the handler goroutine.
//
//	HTTP handler ──loop.Do──▶ device.Registry ──▶ soap.Dispatch / gena.Publisher
//	                             │
//	                             └── events ──▶ Hub ──▶ WebSocket clients
//
// # Event stream channels
//
// Clients subscribe by channel name: device.available, device.unavailable,
// property.changed, directory.added and directory.removed.
//
// # Security
//
// UPnP control and eventing are unauthenticated by protocol. The status API
// follows the same rule; deploy on a trusted LAN segment.
package api
