package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// ErrStartupFailed is returned by SetReady when a startup task failed.
var ErrStartupFailed = errors.New("startup task failed")

// State holds the ready and shutting down flags of the process.
type State struct {
	logger logr.Logger

	mu         sync.Mutex
	ready      bool
	tasks      []*Task
	firstReady chan struct{}
	firstOnce  sync.Once

	shuttingDown atomic.Bool
}

// NewState creates a state that is neither ready nor shutting down.
// SetReady(true) waits for every task in tasks.
func NewState(logger logr.Logger, tasks ...*Task) *State {
	return &State{
		logger:     logger,
		tasks:      append([]*Task(nil), tasks...),
		firstReady: make(chan struct{}),
	}
}

// QueueTask adds a task that a later SetReady(true) has to wait for.
func (s *State) QueueTask(t *Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
}

// SetReady sets the ready flag. Setting it to true blocks until all startup
// tasks resolved; if one of them fails the flag is left untouched.
func (s *State) SetReady(ctx context.Context, ready bool) error {
	if !ready {
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		s.logger.V(1).Info("signaled not ready")
		return nil
	}

	for {
		pending := s.pending()
		if len(pending) == 0 {
			break
		}
		s.logger.V(1).Info("waiting for startup tasks", "pending", len(pending))
		if err := wait(ctx, pending); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.firstOnce.Do(func() { close(s.firstReady) })

	if s.IsShuttingDown() {
		s.logger.Info("signaled ready while shutting down, probes keep failing")
	} else {
		s.logger.V(1).Info("signaled ready")
	}
	return nil
}

// Ready reports the ready flag.
func (s *State) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// WhenFirstReady is closed the first time the state becomes ready.
func (s *State) WhenFirstReady() <-chan struct{} {
	return s.firstReady
}

// MarkShuttingDown sets the shutting down flag. It returns true only for
// the call that flipped it.
func (s *State) MarkShuttingDown() bool {
	return s.shuttingDown.CompareAndSwap(false, true)
}

// IsShuttingDown reports the shutting down flag. Once true it stays true.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

func (s *State) pending() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.tasks {
		if !t.resolved() || t.err != nil {
			out = append(out, t)
		}
	}
	return out
}

func wait(ctx context.Context, tasks []*Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			select {
			case <-t.Done():
				if err := t.Err(); err != nil {
					return fmt.Errorf("%w: %s: %w", ErrStartupFailed, t.Name(), err)
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}
