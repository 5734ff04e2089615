package interrupt

import (
	"context"

	"github.com/Phillezi/lifeline/pkg/lifecycle"
)

type InterruptConfig struct {
	baseContext context.Context
	lcOpts      []lifecycle.Option
	register    bool
}

type Option func(ic *InterruptConfig)

func WithBaseContext(ctx context.Context) Option {
	return func(ic *InterruptConfig) {
		ic.baseContext = ctx
	}
}

func WithLifecycleOpts(opts ...lifecycle.Option) Option {
	return func(ic *InterruptConfig) {
		ic.lcOpts = append(ic.lcOpts, opts...)
	}
}

// WithDefault registers the lifecycle as the process wide default,
// making it available through lifecycle.Default.
func WithDefault() Option {
	return func(ic *InterruptConfig) {
		ic.register = true
	}
}

// Constructor for getting a lifecycle that you can cancel with the provided context.CancelFunc
// Calling the cancel will omit the grace delay and the wait for beacons
// note you will need to call Run on the returned lifecycle on the main thread
func Cancellable(opts ...Option) (lifecycle.Lifecycle, context.CancelFunc) {
	var ic InterruptConfig = InterruptConfig{
		baseContext: context.Background(),
	}
	for _, opt := range opts {
		opt(&ic)
	}
	ctx, cancel := context.WithCancel(ic.baseContext)
	l := lifecycle.NewLifecycle(append(ic.lcOpts, lifecycle.WithContext(ctx))...)
	if ic.register {
		lifecycle.Register(l)
	}
	return l, cancel
}

// run in main on main thread
func Main(mainFunc func(l lifecycle.Managed, cancel context.CancelFunc), opts ...Option) error {
	assertMainGoroutine()

	l, cancel := Cancellable(opts...)
	defer cancel()

	go mainFunc(l, cancel)

	return l.Run()
}
