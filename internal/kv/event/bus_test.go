package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var mu sync.Mutex
	got := map[string]int{}

	subA := bus.Subscribe(func(ev Event) {
		mu.Lock()
		got["a"]++
		mu.Unlock()
	})
	defer subA.Close()
	subB := bus.Subscribe(func(ev Event) {
		mu.Lock()
		got["b"]++
		mu.Unlock()
	})
	defer subB.Close()

	bus.Publish(Connected("primary:6379"))
	bus.Publish(ConnectionRestored("primary:6379"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["a"] == 2 && got["b"] == 2
	})
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	panicking := bus.Subscribe(func(ev Event) {
		panic("handler blew up")
	})
	defer panicking.Close()

	var mu sync.Mutex
	delivered := 0
	healthy := bus.Subscribe(func(ev Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})
	defer healthy.Close()

	bus.Publish(ConnectionFailed("primary:6379", errors.New("reset")))
	bus.Publish(Connected("primary:6379"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestBus_ClosedSubscriptionStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	sub := bus.Subscribe(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(Connected("a:6379"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	sub.Close()
	bus.Publish(Connected("a:6379"))

	// Give a straggler a chance to show up before asserting.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected no delivery after Close, got %d events", count)
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	block := make(chan struct{})
	sub := bus.Subscribe(func(ev Event) {
		<-block
	})
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		// One event is consumed by the stuck handler, the rest fill and
		// then overflow the buffer.
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Connected("a:6379"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	close(block)
	waitFor(t, func() bool { return sub.Dropped() > 0 })
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(nil)
	bus.Close()

	delivered := 0
	sub := bus.Subscribe(func(Event) { delivered++ })

	bus.Publish(Connected("a:6379"))
	sub.Close()
	sub.Close()

	if delivered != 0 {
		t.Errorf("expected no delivery on a closed bus, got %d events", delivered)
	}
}

func TestBus_SubscriptionIDs(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	a := bus.Subscribe(func(Event) {})
	b := bus.Subscribe(func(Event) {})
	defer a.Close()
	defer b.Close()

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct non-empty subscription IDs, got %q and %q", a.ID(), b.ID())
	}
}
