package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Phillezi/lifeline/pkg/beacon"

	"github.com/go-logr/logr"
)

// DefaultGraceDelay is used when the configured readiness window is zero.
const DefaultGraceDelay = 5 * time.Second

var (
	// ErrAlreadyTriggered is returned by every Trigger call but the first.
	ErrAlreadyTriggered = errors.New("shutdown already triggered")
	// ErrCallbackFailed wraps the errors of failed shutdown handlers.
	ErrCallbackFailed = errors.New("shutdown handler failed")
	// ErrGracefulTimeout is reported when draining and cleanup did not finish in time.
	ErrGracefulTimeout = errors.New("graceful shutdown timed out")
)

// Handler is a cleanup callback run after all beacons drained.
type Handler func(ctx context.Context) error

// StateMarker is the part of the readiness state the coordinator flips.
type StateMarker interface {
	MarkShuttingDown() bool
}

// Drainer is the part of the beacon tracker the coordinator waits on.
type Drainer interface {
	Count() int
	Live() []*beacon.Beacon
	WaitForDrain() <-chan struct{}
}

// Option defines a functional option for Coordinator.
type Option func(*Coordinator)

// Coordinator runs the shutdown sequence exactly once.
type Coordinator struct {
	state   StateMarker
	beacons Drainer
	logger  logr.Logger

	orchestrated     bool
	readinessPeriod  int
	failureThreshold int
	handlerTimeout   time.Duration
	gracefulTimeout  time.Duration
	after            func(time.Duration) <-chan time.Time
	onComplete       func(err error)

	phase atomic.Int32

	mu       sync.Mutex
	handlers []Handler
	onPhase  []func(Phase)

	done chan struct{}
	err  error
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(state StateMarker, beacons Drainer, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:   state,
		beacons: beacons,
		logger:  logr.Discard(),
		after:   time.After,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLogger sets a custom logger.
func WithLogger(l logr.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithOrchestrated enables the grace delay before draining.
func WithOrchestrated(enabled bool) Option {
	return func(c *Coordinator) {
		c.orchestrated = enabled
	}
}

// WithReadinessProbe configures the orchestrator's readiness probe period
// (in seconds) and failure threshold, which together size the grace delay.
func WithReadinessProbe(periodSeconds, failureThreshold int) Option {
	return func(c *Coordinator) {
		c.readinessPeriod = periodSeconds
		c.failureThreshold = failureThreshold
	}
}

// WithHandler adds a cleanup handler.
func WithHandler(h Handler) Option {
	return func(c *Coordinator) {
		if h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
}

// WithHandlerTimeout bounds every handler. Zero means no bound.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.handlerTimeout = d
	}
}

// WithGracefulTimeout bounds draining and cleanup together. Zero means no bound.
func WithGracefulTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.gracefulTimeout = d
	}
}

// WithOnComplete sets the hook called once the sequence reached PhaseComplete.
func WithOnComplete(f func(err error)) Option {
	return func(c *Coordinator) {
		c.onComplete = f
	}
}

// WithAfterFunc replaces time.After for the grace delay (useful for tests).
func WithAfterFunc(f func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) {
		c.after = f
	}
}

// RegisterHandler adds a cleanup handler. Handlers registered once cleanup
// started are not run.
func (c *Coordinator) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Phase() >= PhaseCleaningUp {
		c.logger.Info("shutdown handler registered too late, ignoring", "phase", c.Phase())
		return
	}
	c.handlers = append(c.handlers, h)
}

// OnPhase registers fn to be called on every phase transition.
func (c *Coordinator) OnPhase(fn func(Phase)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPhase = append(c.onPhase, fn)
}

// Phase returns the active phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Done is closed once the sequence reached PhaseComplete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the result of the sequence, or nil while it is still running.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// GraceDelay returns how long the coordinator waits before draining.
func (c *Coordinator) GraceDelay() time.Duration {
	if !c.orchestrated {
		return 0
	}
	d := time.Duration(c.readinessPeriod*c.failureThreshold) * time.Second
	if d <= 0 {
		return DefaultGraceDelay
	}
	return d
}

// Trigger runs the shutdown sequence and blocks until it completed.
// Only the first call runs it, the others return ErrAlreadyTriggered.
// Cancelling ctx cuts the waits short but never aborts the sequence.
func (c *Coordinator) Trigger(ctx context.Context) error {
	if !c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseSignaled)) {
		c.logger.V(1).Info("shutdown already triggered", "phase", c.Phase())
		return ErrAlreadyTriggered
	}
	c.emit(PhaseSignaled)
	c.state.MarkShuttingDown()
	c.logger.Info("shutting down", "beacons", c.beacons.Count())

	if d := c.GraceDelay(); d > 0 {
		c.logger.Info("waiting for orchestrator to stop routing traffic", "delay", d)
		select {
		case <-c.after(d):
		case <-ctx.Done():
		}
	}

	var deadline <-chan time.Time
	if c.gracefulTimeout > 0 {
		t := time.NewTimer(c.gracefulTimeout)
		defer t.Stop()
		deadline = t.C
	}

	var errs []error

	c.setPhase(PhaseDraining)
	if err := c.drain(ctx, deadline); err != nil {
		errs = append(errs, err)
	}

	c.setPhase(PhaseCleaningUp)
	if err := c.cleanup(ctx, deadline); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	c.err = err
	c.setPhase(PhaseComplete)
	close(c.done)

	if err != nil {
		c.logger.Error(err, "shutdown completed with errors")
	} else {
		c.logger.Info("shutdown complete")
	}
	if c.onComplete != nil {
		c.onComplete(err)
	}
	return err
}

func (c *Coordinator) drain(ctx context.Context, deadline <-chan time.Time) error {
	drained := c.beacons.WaitForDrain()
	select {
	case <-drained:
		return nil
	default:
	}

	c.logger.Info("waiting for beacons to drain", "beacons", c.beacons.Count())
	select {
	case <-drained:
		return nil
	case <-deadline:
	case <-ctx.Done():
	}

	live := c.beacons.Live()
	for _, b := range live {
		c.logger.V(1).Info("beacon still live", "id", b.ID(), "age", time.Since(b.Created()), "context", b.Context())
	}
	if ctx.Err() != nil {
		return fmt.Errorf("draining %d beacons: %w", len(live), ctx.Err())
	}
	return fmt.Errorf("%w: %d beacons still live", ErrGracefulTimeout, len(live))
}

func (c *Coordinator) cleanup(ctx context.Context, deadline <-chan time.Time) error {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()

	var errs []error
	for i, h := range handlers {
		expired, err := c.runHandler(ctx, h, deadline)
		if err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
		if expired {
			errs = append(errs, fmt.Errorf("%w: %d of %d handlers not finished", ErrGracefulTimeout, len(handlers)-i, len(handlers)))
			break
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCallbackFailed, errors.Join(errs...))
}

// runHandler runs h bounded by the handler timeout. expired reports that the
// graceful deadline passed before h returned. Handlers run even if ctx was
// cancelled.
func (c *Coordinator) runHandler(ctx context.Context, h Handler, deadline <-chan time.Time) (expired bool, err error) {
	hctx := context.WithoutCancel(ctx)
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, c.handlerTimeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		result <- h(hctx)
	}()

	select {
	case err := <-result:
		return false, err
	case <-hctx.Done():
		return false, hctx.Err()
	case <-deadline:
		return true, nil
	}
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.logger.V(1).Info("shutdown phase", "phase", p)
	c.emit(p)
}

func (c *Coordinator) emit(p Phase) {
	c.mu.Lock()
	fns := append(([]func(Phase))(nil), c.onPhase...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}
