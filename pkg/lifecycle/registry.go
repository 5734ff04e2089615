package lifecycle

import (
	"errors"
	"sync"
)

// ErrNotInitialized is returned when the default lifecycle is requested
// before one was registered.
var ErrNotInitialized = errors.New("lifecycle: no default instance registered")

// Registry holds the default lifecycle. The first registered instance wins.
type Registry struct {
	mu  sync.RWMutex
	def Lifecycle
}

// Register makes l the default unless one is already set.
// It returns true if l became the default.
func (r *Registry) Register(l Lifecycle) bool {
	if l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def != nil {
		return false
	}
	r.def = l
	return true
}

// Default returns the registered lifecycle or ErrNotInitialized.
func (r *Registry) Default() (Lifecycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil, ErrNotInitialized
	}
	return r.def, nil
}

var global Registry

// Register makes l the process wide default unless one is already set.
func Register(l Lifecycle) bool {
	return global.Register(l)
}

// Default returns the process wide default lifecycle.
func Default() (Lifecycle, error) {
	return global.Default()
}
