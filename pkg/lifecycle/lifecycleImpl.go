package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phillezi/lifeline/pkg/beacon"
	"github.com/Phillezi/lifeline/pkg/metrics"
	"github.com/Phillezi/lifeline/pkg/readiness"
	"github.com/Phillezi/lifeline/pkg/shutdown"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrForced is returned by Run when a second signal cut the shutdown short.
var ErrForced = errors.New("shutdown forced by second signal")

// Option defines a functional option for Lifecycle.
type Option func(*LifecycleImpl)

// LifecycleImpl is the concrete implementation of Lifecycle.
type LifecycleImpl struct {
	state       *readiness.State
	beacons     *beacon.Tracker
	coordinator *shutdown.Coordinator
	collectors  *metrics.Collectors

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc

	logger   logr.Logger
	prompt   io.Writer
	onExit   func(code int)
	signalCh <-chan os.Signal

	orchestrated     bool
	readinessPeriod  int
	failureThreshold int
	handlerTimeout   time.Duration
	gracefulTimeout  time.Duration
	startupTasks     []*readiness.Task
	callbacks        []shutdown.Handler
	registerer       prometheus.Registerer
}

// NewLifecycle creates a new lifecycle with functional options.
func NewLifecycle(opts ...Option) Lifecycle {
	l := &LifecycleImpl{
		parentCtx:    context.Background(),
		logger:       logr.Discard(),
		orchestrated: DetectOrchestrator(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.ctx, l.cancel = context.WithCancel(l.parentCtx)
	l.state = readiness.NewState(l.logger.WithName("readiness"), l.startupTasks...)
	l.beacons = beacon.NewTracker()

	copts := []shutdown.Option{
		shutdown.WithLogger(l.logger.WithName("shutdown")),
		shutdown.WithOrchestrated(l.orchestrated),
		shutdown.WithReadinessProbe(l.readinessPeriod, l.failureThreshold),
		shutdown.WithHandlerTimeout(l.handlerTimeout),
		shutdown.WithGracefulTimeout(l.gracefulTimeout),
	}
	for _, cb := range l.callbacks {
		copts = append(copts, shutdown.WithHandler(cb))
	}
	l.coordinator = shutdown.NewCoordinator(l.state, l.beacons, copts...)
	l.coordinator.OnPhase(l.onPhase)

	if l.registerer != nil {
		l.collectors = metrics.New(l.registerer, l)
		l.coordinator.OnPhase(l.collectors.SetPhase)
	}

	return l
}

// WithLogger sets a custom logger.
func WithLogger(lg logr.Logger) Option {
	return func(l *LifecycleImpl) {
		l.logger = lg
	}
}

// WithPrompt enables prompt output to the given writer.
func WithPrompt(enabled bool, w ...io.Writer) Option {
	return func(l *LifecycleImpl) {
		if enabled {
			var wr io.Writer = os.Stderr
			for _, ww := range w {
				if ww != nil {
					wr = ww
					break
				}
			}
			l.prompt = wr
		}
	}
}

// WithOnExit sets a callback for exit code.
func WithOnExit(f func(code int)) Option {
	return func(l *LifecycleImpl) {
		l.onExit = f
	}
}

// WithSignalChannel allows using a custom channel for shutdown signals (useful for tests)
func WithSignalChannel(ch <-chan os.Signal) Option {
	return func(l *LifecycleImpl) {
		l.signalCh = ch
	}
}

// WithContext sets the parent context. Cancelling it shuts down without
// waiting for the grace delay or the beacons.
func WithContext(ctx context.Context) Option {
	return func(l *LifecycleImpl) {
		l.parentCtx = ctx
	}
}

// WithOrchestrated overrides orchestrator detection.
func WithOrchestrated(enabled bool) Option {
	return func(l *LifecycleImpl) {
		l.orchestrated = enabled
	}
}

// WithReadinessProbe mirrors the orchestrator readiness probe settings,
// they size the grace delay before draining.
func WithReadinessProbe(periodSeconds, failureThreshold int) Option {
	return func(l *LifecycleImpl) {
		l.readinessPeriod = periodSeconds
		l.failureThreshold = failureThreshold
	}
}

// WithStartupTasks sets the tasks SetReady(true) waits for.
func WithStartupTasks(tasks ...*readiness.Task) Option {
	return func(l *LifecycleImpl) {
		l.startupTasks = append(l.startupTasks, tasks...)
	}
}

// WithShutdownCallback sets a cleanup callback run once the beacons drained.
func WithShutdownCallback(h shutdown.Handler) Option {
	return func(l *LifecycleImpl) {
		if h != nil {
			l.callbacks = append(l.callbacks, h)
		}
	}
}

// WithHandlerTimeout bounds every shutdown callback.
func WithHandlerTimeout(d time.Duration) Option {
	return func(l *LifecycleImpl) {
		l.handlerTimeout = d
	}
}

// WithGracefulTimeout bounds draining and cleanup together.
func WithGracefulTimeout(d time.Duration) Option {
	return func(l *LifecycleImpl) {
		l.gracefulTimeout = d
	}
}

// WithMetrics registers the lifecycle collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *LifecycleImpl) {
		l.registerer = reg
	}
}

// SetReady flips the ready flag.
func (l *LifecycleImpl) SetReady(ctx context.Context, ready bool) error {
	return l.state.SetReady(ctx, ready)
}

// QueueBlockingTask adds a startup task SetReady(true) has to wait for.
func (l *LifecycleImpl) QueueBlockingTask(t *readiness.Task) {
	l.state.QueueTask(t)
}

// WhenFirstReady is closed the first time the lifecycle became ready.
func (l *LifecycleImpl) WhenFirstReady() <-chan struct{} {
	return l.state.WhenFirstReady()
}

func (l *LifecycleImpl) Ready() bool {
	return l.state.Ready()
}

func (l *LifecycleImpl) IsShuttingDown() bool {
	return l.state.IsShuttingDown()
}

// BeaconCount returns the number of live beacons.
func (l *LifecycleImpl) BeaconCount() int {
	return l.beacons.Count()
}

func (l *LifecycleImpl) Beacons() *beacon.Tracker {
	return l.beacons
}

// Phase returns the active shutdown phase.
func (l *LifecycleImpl) Phase() shutdown.Phase {
	return l.coordinator.Phase()
}

func (l *LifecycleImpl) CheckHealth() Result {
	return l.record("health", CheckHealth(l.state))
}

func (l *LifecycleImpl) CheckLive() Result {
	return l.record("live", CheckLive(l.state))
}

func (l *LifecycleImpl) CheckReady() Result {
	return l.record("ready", CheckReady(l.state))
}

func (l *LifecycleImpl) record(probe string, r Result) Result {
	if !r.OK {
		l.logger.V(1).Info("probe check failed", "probe", probe, "reason", r.Reason)
	}
	if l.collectors != nil {
		l.collectors.RecordProbe(probe, r.Reason)
	}
	return r
}

// Context returns the lifecycle's context.
func (l *LifecycleImpl) Context() context.Context {
	return l.ctx
}

func (l *LifecycleImpl) Go(f func(ctx context.Context)) {
	b := l.beacons.Create(map[string]any{"source": "go"})
	go func() {
		defer b.Die()
		f(l.ctx)
	}()
}

func (l *LifecycleImpl) RegisterShutdownHandler(h shutdown.Handler) {
	l.coordinator.RegisterHandler(h)
}

func (l *LifecycleImpl) Shutdown(ctx context.Context) error {
	return l.coordinator.Trigger(ctx)
}

func (l *LifecycleImpl) Done() <-chan struct{} {
	return l.coordinator.Done()
}

// Err returns the shutdown result once Done is closed.
func (l *LifecycleImpl) Err() error {
	return l.coordinator.Err()
}

// Run starts signal monitoring and blocks until shutdown is complete.
func (l *LifecycleImpl) Run() error {

	var sigCh <-chan os.Signal
	if l.signalCh != nil {
		// Use provided channel (mocked for tests)
		sigCh = l.signalCh
	} else {
		// Default: register OS signals
		c := make(chan os.Signal, 2)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(c)
		sigCh = c
	}

	forced := make(chan struct{})

	go func() {
		select {
		case sig, ok := <-sigCh:
			if !ok {
				l.logger.Info("signal channel closed")
			} else {
				l.logger.Info("received shutdown signal", "signal", sig)
			}
		case <-l.parentCtx.Done():
			l.logger.Info("context canceled externally")
		case <-l.Done():
			return
		}

		if l.prompt != nil {
			gracefulShutdownPrompt(l.prompt)
		}

		go l.Shutdown(l.parentCtx)

		select {
		case sig, ok := <-sigCh:
			if !ok {
				<-l.Done()
				return
			}
			l.logger.Info("received second shutdown signal, forcing exit", "signal", sig, "beacons", l.beacons.Count())
			close(forced)
		case <-l.Done():
		}
	}()

	var err error
	select {
	case <-l.Done():
		err = l.Err()
	case <-forced:
		err = ErrForced
	}

	if l.onExit != nil {
		code := 0
		if err != nil {
			code = 1
		}
		l.onExit(code)
	}

	return err
}

func (l *LifecycleImpl) onPhase(p shutdown.Phase) {
	switch p {
	case shutdown.PhaseDraining:
		l.cancel()
		unsubscribe := l.beacons.Subscribe(func(count int) {
			l.logger.V(1).Info("beacon count changed while draining", "beacons", count)
		})
		go func() {
			<-l.Done()
			unsubscribe()
		}()
	case shutdown.PhaseComplete:
		l.cancel()
	}
}
