package ssdp

import "errors"

var (
	// ErrMalformed is returned for datagrams that are not SSDP messages.
	ErrMalformed = errors.New("ssdp: malformed message")

	// ErrMissingHeader is returned when a mandatory header is absent.
	ErrMissingHeader = errors.New("ssdp: missing mandatory header")

	// ErrBind is returned when the multicast socket cannot be set up.
	ErrBind = errors.New("ssdp: cannot bind multicast socket")

	// ErrNoAddress is returned when no IPv4 address can be advertised.
	ErrNoAddress = errors.New("ssdp: no usable IPv4 address")
)
