package subscriber

import "errors"

var (
	// ErrTransportRequired is returned when a transport is not provided.
	ErrTransportRequired = errors.New("transport required")

	// ErrSinkRequired is returned when a message sink is not provided.
	ErrSinkRequired = errors.New("message sink required")

	// ErrNotConnected is returned when subscribing or publishing before Connect.
	ErrNotConnected = errors.New("transport not connected")
)
