// Package provider defines the devices that Gray Logic UPnP exposes on the
// network and the change tracking behind their evented state.
//
// A provider is anything with a Manifest and a Properties set. What it can
// do is expressed through small capability interfaces (BinarySwitch,
// MediaPlayer); the device catalog picks a UPnP device type by checking
// which capabilities a concrete value implements.
//
// # Change tracking
//
// Every write to an evented property goes through Properties. A write that
// does not change the last-announced value is ignored. Writes made between
// BeginBatch and the matching End are coalesced into a single ChangeSet:
//
//	b := props.BeginBatch()
//	defer b.End()
//	props.Set(PropState, "PLAYING")
//	props.Set(PropSource, uri)
//	// observers see one ChangeSet with both entries
//
// Batches nest. Only the outermost End delivers, and only when something
// changed. A write outside any batch is delivered on its own.
//
// # Implementations
//
// Switch and Player are ready-made providers used for configured devices
// and as building blocks for bridges (see internal/bridges/mqtt).
package provider
