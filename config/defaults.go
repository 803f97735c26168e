package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 8080

	// DefaultRoot is the document root, relative to the working
	// directory.
	DefaultRoot = "wwwroot"

	// DefaultBindAddress listens on every interface.
	DefaultBindAddress = "0.0.0.0"

	// DefaultCleanupInterval is the session janitor period in seconds.
	DefaultCleanupInterval = 60

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultProbeTimeout bounds a --probe round trip.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultMaxReconnectAttempts is how many times to retry after a
	// tunnel disconnect.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultGracePeriod is how long shutdown waits for in-flight
	// exchanges to finish.
	DefaultGracePeriod = 5 * time.Second
)
