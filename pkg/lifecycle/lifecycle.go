package lifecycle

import (
	"context"

	"github.com/Phillezi/lifeline/pkg/beacon"
	"github.com/Phillezi/lifeline/pkg/shutdown"
)

// Lifecycle controls readiness, in-flight work and signal driven shutdown.
// Run is needed to be called on the main thread, unlike the Managed lifecycle
// which is handed to code that runs alongside it.
type Lifecycle interface {
	Managed
	// Run starts signal monitoring and blocks until shutdown is complete.
	Run() error
}

// Managed is a lifecycle that is being run by someone else.
type Managed interface {
	Probes
	// SetReady flips the ready flag. Setting it to true waits for the startup tasks.
	SetReady(ctx context.Context, ready bool) error
	// Beacons returns the tracker of in-flight work.
	Beacons() *beacon.Tracker
	// Go runs f in a goroutine that holds a beacon until f returns.
	Go(f func(ctx context.Context))
	// Context returns a context that is cancelled when draining begins.
	Context() context.Context
	// RegisterShutdownHandler adds a cleanup handler run after the beacons drained.
	RegisterShutdownHandler(h shutdown.Handler)
	// Shutdown runs the shutdown sequence. Only the first call has an effect.
	Shutdown(ctx context.Context) error
	// Done returns a channel that is closed when shutdown has completed.
	Done() <-chan struct{}
}

// Probes is the read side consumed by the HTTP probe handlers.
type Probes interface {
	Ready() bool
	IsShuttingDown() bool
	CheckHealth() Result
	CheckLive() Result
	CheckReady() Result
}
