package gena

import "errors"

var (
	// ErrDelivery is returned by a Sender when a callback rejects or
	// cannot receive a NOTIFY.
	ErrDelivery = errors.New("gena: notification not delivered")

	// ErrNoCallback is returned by ParseCallbacks when the header holds no
	// usable URL.
	ErrNoCallback = errors.New("gena: no callback URL")
)
