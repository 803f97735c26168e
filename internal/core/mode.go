// Package core is the orchestration layer.  It composes a transport
// listener and a capability into the running server and provides a
// builder that assembles both from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  router  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of filegate.  It owns its full
// lifecycle from binding the listener to draining the last exchange.
type Mode interface {
	Run(ctx context.Context) error
}
