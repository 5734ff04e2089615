package readiness

import (
	"context"
	"sync"
)

// Task is a pending startup operation that must resolve before the
// application may report ready.
type Task struct {
	name string
	done chan struct{}
	once sync.Once
	err  error
}

// NewTask returns an unresolved task together with the func that resolves it.
// Only the first call to resolve has an effect.
func NewTask(name string) (*Task, func(err error)) {
	t := &Task{name: name, done: make(chan struct{})}
	return t, t.resolve
}

// Start runs fn in its own goroutine and returns the task tracking it.
func Start(ctx context.Context, name string, fn func(ctx context.Context) error) *Task {
	t, resolve := NewTask(name)
	go func() {
		resolve(fn(ctx))
	}()
	return t
}

func (t *Task) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Done is closed once the task resolved.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task result. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
