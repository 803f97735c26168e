// Package transport decides where connections come from.  Listeners
// produce inbound connections for the acceptor (a local TCP socket or
// an SSH remote forward); the Dialer is used by the health probe to
// reach a running server.  What happens over a connection is the
// capability layer's job.
package transport

import (
	"context"
	"net"
)

// Listener opens the socket the server accepts on.
type Listener interface {
	Listen(ctx context.Context) (net.Listener, error)

	// String describes the endpoint for log messages.
	String() string
}

// Dialer opens outbound network connections.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
