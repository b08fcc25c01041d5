// Package adapter defines the lifecycle of protocol servers and the TCP
// plumbing they share.
package adapter

import (
	"context"
)

// Adapter is a protocol server managed by the start command.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Serve() starts the server and blocks until shutdown
//  3. Stop() initiates graceful shutdown, possibly concurrently with Serve()
//
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// Returns nil on graceful shutdown and an error if startup fails or
	// connections had to be force-closed.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It is idempotent and respects the
	// context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	Protocol() string

	// Port returns the configured TCP port.
	Port() int
}
