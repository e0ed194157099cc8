// Package device binds providers to UPnP device types and keeps the set
// of devices published by this server.
//
// A Catalog decides which device type a provider becomes. The first
// Mapping whose capability check matches wins, so the order of the
// catalog is the priority order. The Registry resolves the provider's
// persistent UUID, builds one ServiceInstance per mapped service (a
// controller plus its GENA publisher), renders the device description and
// hands the device to the SSDP engine.
//
// # Architecture
//
//	provider.Properties ──Observe──▶ loop.Post ──▶ Controller.Changes
//	                                                    │
//	                                                    ▼
//	                                       gena.Publisher.RecordChange
//
//	Registry.Register ──▶ uuidstore.Store.Resolve
//	                 ├──▶ description.SCPDRegistry.Ensure
//	                 ├──▶ description.BuildDevice
//	                 └──▶ ssdp.Engine.StartAnnouncing
//
// # Controllers
//
//   - SwitchPower:1 drives a provider.BinarySwitch
//   - AVTransport:1 and RenderingControl:1 drive a provider.MediaPlayer
//   - ConnectionManager:1 reports the renderer's fixed connection
//
// Every SOAP action runs inside one provider batch, so the property
// writes of a single action reach subscribers as one change set.
//
// # Thread Safety
//
// Registry, Adapter and the controllers' action handlers must be used
// on the event loop.
package device
