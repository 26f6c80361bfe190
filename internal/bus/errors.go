package bus

import "errors"

// Domain errors for the bus package.
var (
	// ErrInvalidExchange is returned for exchange names or routing patterns
	// that cannot be carried over the broker.
	ErrInvalidExchange = errors.New("bus: invalid exchange or routing key")

	// ErrClosed is returned by Subscribe and Publish after Close.
	ErrClosed = errors.New("bus: closed")
)
