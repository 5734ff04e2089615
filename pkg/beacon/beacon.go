package beacon

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Beacon represents one unit of in-flight work.
// The tracker owns the beacon for its whole lifetime, callers only get to retire it.
type Beacon struct {
	id      uuid.UUID
	context map[string]any
	created time.Time
	tracker *Tracker
}

// ID returns the identity of the beacon.
func (b *Beacon) ID() uuid.UUID { return b.id }

// Context returns the free-form payload the beacon was created with.
func (b *Beacon) Context() map[string]any { return b.context }

// Created returns the time the beacon was registered.
func (b *Beacon) Created() time.Time { return b.created }

// Die retires the beacon. Calling it more than once is a no-op.
func (b *Beacon) Die() {
	b.tracker.Retire(b)
}

// Tracker keeps the set of live beacons and notifies observers on every change.
type Tracker struct {
	mu        sync.Mutex
	live      []*Beacon
	waiters   []chan struct{}
	observers map[uint64]func(count int)
	nextObs   uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		observers: make(map[uint64]func(count int)),
	}
}

// Create registers a new live beacon. A nil context is replaced by an empty one.
func (t *Tracker) Create(context map[string]any) *Beacon {
	if context == nil {
		context = map[string]any{}
	}
	b := &Beacon{
		id:      uuid.New(),
		context: context,
		created: time.Now(),
		tracker: t,
	}

	t.mu.Lock()
	t.live = append(t.live, b)
	obs := t.notifyLocked()
	t.mu.Unlock()

	emit(obs)
	return b
}

// Retire removes the beacon from the live set and yields once so that
// goroutines waiting on the change get a chance to run.
// Unknown or already retired beacons are ignored.
func (t *Tracker) Retire(b *Beacon) {
	if b == nil {
		return
	}

	t.mu.Lock()
	idx := -1
	for i, l := range t.live {
		if l == b {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return
	}
	t.live = append(t.live[:idx], t.live[idx+1:]...)
	obs := t.notifyLocked()
	t.mu.Unlock()

	emit(obs)
	runtime.Gosched()
}

// Count returns the number of live beacons.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Live returns a snapshot of the live beacons, oldest first.
func (t *Tracker) Live() []*Beacon {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Beacon, len(t.live))
	copy(out, t.live)
	return out
}

// WaitForDrain returns a channel that is closed once no beacons are live.
// If the tracker is already drained the returned channel is closed.
func (t *Tracker) WaitForDrain() <-chan struct{} {
	ch := make(chan struct{})

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.live) == 0 {
		close(ch)
		return ch
	}
	t.waiters = append(t.waiters, ch)
	return ch
}

// Subscribe registers fn to be called with the new count after every change.
// The returned func removes the subscription.
func (t *Tracker) Subscribe(fn func(count int)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}
}

type notification struct {
	count int
	fns   []func(count int)
}

// notifyLocked resolves drain waiters while the lock is still held and
// returns the observer calls to make once it is released.
func (t *Tracker) notifyLocked() notification {
	n := len(t.live)
	if n == 0 {
		for _, w := range t.waiters {
			close(w)
		}
		t.waiters = nil
	}

	fns := make([]func(count int), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	return notification{count: n, fns: fns}
}

func emit(n notification) {
	for _, fn := range n.fns {
		fn(n.count)
	}
}
