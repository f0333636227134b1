// SPDX-License-Identifier: MIT
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for publishing analysis frames.
// Implementations must be safe for concurrent use and must not block the
// caller; the engine calls Send once per tick.
type Transport interface {
	Send(data any) error
	Close() error
}
