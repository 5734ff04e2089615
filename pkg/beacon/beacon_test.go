package beacon_test

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Phillezi/lifeline/pkg/beacon"
)

func TestTracker_CreateAndCount(t *testing.T) {
	tr := beacon.NewTracker()
	if got := tr.Count(); got != 0 {
		t.Fatalf("expected empty tracker, got %d", got)
	}

	b1 := tr.Create(nil)
	b2 := tr.Create(map[string]any{"job": "import"})

	if got := tr.Count(); got != 2 {
		t.Fatalf("expected 2 beacons, got %d", got)
	}
	if b1.Context() == nil {
		t.Fatal("expected nil context to be replaced by an empty map")
	}
	if b2.Context()["job"] != "import" {
		t.Fatalf("context not kept, got %v", b2.Context())
	}
	if b1.ID() == b2.ID() {
		t.Fatal("expected distinct beacon ids")
	}
}

func TestTracker_DieIdempotency(t *testing.T) {
	tr := beacon.NewTracker()
	b := tr.Create(nil)
	other := tr.Create(nil)

	b.Die()
	b.Die() // should be safe
	tr.Retire(b)
	tr.Retire(nil)

	if got := tr.Count(); got != 1 {
		t.Fatalf("expected 1 live beacon, got %d", got)
	}

	other.Die()
	other.Die()
	if got := tr.Count(); got != 0 {
		t.Fatalf("expected 0 live beacons, got %d", got)
	}
}

func TestTracker_RetireForeignBeacon(t *testing.T) {
	a := beacon.NewTracker()
	b := beacon.NewTracker()

	foreign := b.Create(nil)
	_ = a.Create(nil)

	a.Retire(foreign)
	if got := a.Count(); got != 1 {
		t.Fatalf("retiring a foreign beacon changed the count: %d", got)
	}
	if got := b.Count(); got != 1 {
		t.Fatalf("foreign tracker changed: %d", got)
	}
}

func TestTracker_RandomSequenceCount(t *testing.T) {
	tr := beacon.NewTracker()
	r := rand.New(rand.NewSource(42))

	var created []*beacon.Beacon
	retired := map[*beacon.Beacon]bool{}

	for range 1000 {
		if len(created) == 0 || r.Intn(3) > 0 {
			created = append(created, tr.Create(nil))
			continue
		}
		b := created[r.Intn(len(created))]
		b.Die()
		retired[b] = true
	}

	want := len(created) - len(retired)
	if got := tr.Count(); got != want {
		t.Fatalf("expected count %d, got %d", want, got)
	}
}

func TestTracker_WaitForDrainAlreadyEmpty(t *testing.T) {
	tr := beacon.NewTracker()

	select {
	case <-tr.WaitForDrain():
	default:
		t.Fatal("expected wait on empty tracker to resolve immediately")
	}
}

func TestTracker_WaitForDrainScenario(t *testing.T) {
	tr := beacon.NewTracker()
	b1 := tr.Create(nil)
	b2 := tr.Create(nil)

	b1.Die()
	if got := tr.Count(); got != 1 {
		t.Fatalf("expected 1 live beacon, got %d", got)
	}

	wait := tr.WaitForDrain()
	select {
	case <-wait:
		t.Fatal("wait resolved while a beacon is still live")
	case <-time.After(20 * time.Millisecond):
	}

	b2.Die()

	select {
	case <-wait:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for drain")
	}
}

func TestTracker_WaitForDrainMultipleWaiters(t *testing.T) {
	tr := beacon.NewTracker()
	b := tr.Create(nil)

	const N = 10
	waits := make([]<-chan struct{}, N)
	for i := range N {
		waits[i] = tr.WaitForDrain()
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Die()
	}()

	for i, w := range waits {
		select {
		case <-w:
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("waiter %d did not resolve", i)
		}
	}

	// A waiter registered after the drain must see the post retirement count.
	select {
	case <-tr.WaitForDrain():
	default:
		t.Fatal("expected late waiter to resolve immediately")
	}
}

func TestTracker_WaitForDrainRefills(t *testing.T) {
	tr := beacon.NewTracker()
	b := tr.Create(nil)
	first := tr.WaitForDrain()
	b.Die()
	<-first

	b = tr.Create(nil)
	second := tr.WaitForDrain()
	select {
	case <-second:
		t.Fatal("second wait resolved with a live beacon")
	default:
	}
	b.Die()
	<-second
}

func TestTracker_ConcurrentCreateAndDie(t *testing.T) {
	tr := beacon.NewTracker()
	var wg sync.WaitGroup

	const N = 100
	for range N {
		wg.Go(func() {
			b := tr.Create(nil)
			time.Sleep(time.Millisecond)
			b.Die()
		})
	}
	wg.Wait()

	select {
	case <-tr.WaitForDrain():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for concurrent beacons")
	}
	if got := tr.Count(); got != 0 {
		t.Fatalf("expected 0 live beacons, got %d", got)
	}
}

func TestTracker_LiveSnapshotOrder(t *testing.T) {
	tr := beacon.NewTracker()
	b1 := tr.Create(map[string]any{"n": 1})
	b2 := tr.Create(map[string]any{"n": 2})
	b3 := tr.Create(map[string]any{"n": 3})
	b2.Die()

	live := tr.Live()
	if len(live) != 2 || live[0] != b1 || live[1] != b3 {
		t.Fatalf("unexpected live snapshot: %v", live)
	}
}

func TestTracker_Subscribe(t *testing.T) {
	tr := beacon.NewTracker()

	var mu sync.Mutex
	var counts []int
	unsubscribe := tr.Subscribe(func(count int) {
		mu.Lock()
		counts = append(counts, count)
		mu.Unlock()
	})

	b := tr.Create(nil)
	b.Die()
	b.Die()

	unsubscribe()
	unsubscribe()
	tr.Create(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Fatalf("unexpected notifications: %v", counts)
	}
}
