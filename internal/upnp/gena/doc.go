// Package gena implements UPnP eventing: subscriptions to a service's
// evented state variables and the NOTIFY messages that report changes.
//
// A Publisher belongs to one service instance and lives on the event
// loop. Changes recorded with RecordChange are collected for a short
// debounce interval and sent as a single NOTIFY per subscriber. Services
// that report through LastChange get one LastChange variable holding an
// Event document; the others get one property per variable.
//
// Delivery is asynchronous. Each subscription has its own goroutine that
// sends notifications in order, falling through the subscriber's callback
// URLs when one fails. A subscription whose callbacks all fail is dropped.
package gena
