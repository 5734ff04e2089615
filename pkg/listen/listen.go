package listen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
)

type config struct {
	logger   logr.Logger
	tries    uint
	initial  time.Duration
	fallback bool
}

// Option defines a functional option for Listen.
type Option func(*config)

// WithLogger sets a custom logger.
func WithLogger(l logr.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMaxTries sets how many times a busy port is tried.
func WithMaxTries(n uint) Option {
	return func(c *config) {
		c.tries = n
	}
}

// WithInitialInterval sets the first backoff interval.
func WithInitialInterval(d time.Duration) Option {
	return func(c *config) {
		c.initial = d
	}
}

// WithFallback makes Listen pick an ephemeral port when the requested one stays busy.
// Meant for local development, an orchestrator expects the configured port.
func WithFallback(enabled bool) Option {
	return func(c *config) {
		c.fallback = enabled
	}
}

// Listen opens a TCP listener on addr, retrying with backoff while the port is in use.
func Listen(ctx context.Context, addr string, opts ...Option) (net.Listener, error) {
	cfg := config{
		logger:  logr.Discard(),
		tries:   5,
		initial: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	attempt := 0
	op := func() (net.Listener, error) {
		attempt++
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, backoff.Permanent(err)
		}
		cfg.logger.V(1).Info("address in use, retrying", "addr", addr, "attempt", attempt)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initial

	ln, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.tries))
	if err == nil {
		return ln, nil
	}

	if cfg.fallback && errors.Is(err, syscall.EADDRINUSE) {
		host, _, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			return nil, fmt.Errorf("listening on %s: %w", addr, splitErr)
		}
		ln, ferr := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if ferr != nil {
			return nil, fmt.Errorf("listening on ephemeral port: %w", ferr)
		}
		cfg.logger.Info("address in use, using an ephemeral port instead", "addr", addr, "using", ln.Addr().String())
		return ln, nil
	}

	return nil, fmt.Errorf("listening on %s: %w", addr, err)
}
