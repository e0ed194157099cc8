// Package ssdp implements the discovery half of the UPnP device
// architecture: multicast announcements of local devices, answers to
// M-SEARCH requests, searches for remote devices and the parsing of
// NOTIFY and search-response datagrams from the network.
//
// The Engine keeps all of its state on an eventloop.Loop. Announcement
// repeats and search repeats are loop timers, and the datagram reader
// posts every parsed packet onto the loop before acting on it.
//
// Local devices are reached through the Device interface and the Matcher
// supplied by the device registry. Remote devices are reported to
// Listeners as Alive and ByeBye events.
package ssdp
