// Package capability defines what happens over an accepted connection.
// A Capability owns one connection from first read to close; the
// acceptor in core only hands connections over.
package capability

import (
	"context"
	"net"
)

// Capability serves a single connection.  Handle blocks until the
// exchange is finished and closes conn before returning.
type Capability interface {
	Handle(ctx context.Context, conn net.Conn) error
}
