// Package uuidstore maps a provider's stable unique id to the UUID it is
// published under, so that a device keeps its identity across restarts.
//
// Three backends are available: SQLite (through the shared database
// package and its embedded migrations), bbolt, and an in-memory map.
// Open self-heals a damaged store: if the file cannot be opened or fails
// its integrity check it is removed and recreated once, and if that also
// fails the store falls back to memory so startup can continue.
//
// A provider without a unique id gets a fresh UUID on every Resolve.
package uuidstore
