// Package eventloop provides the single-goroutine executor that owns all
// protocol state in Gray Logic UPnP.
//
// Registry, adapter, publisher, SSDP and directory state is only touched
// from functions running on the loop. Other goroutines (HTTP handlers, the
// SSDP reader, NOTIFY delivery, MQTT callbacks) hand work to the loop with
// Post, or with Do when they need to wait for the result.
//
// Timers created with AfterFunc fire as ordinary loop events. Stopping a
// timer is idempotent and also prevents a firing that is already queued
// but has not run yet.
//
// Usage:
//
//	loop := eventloop.New(eventloop.RealClock())
//	go loop.Run(ctx)
//
//	loop.Post(func() { registry.Start() })
//	err := loop.Do(ctx, func() { adapter = registry.Lookup(id) })
//
// Tests drive time with ManualClock and run queued work synchronously
// with Drain instead of starting Run.
package eventloop
