package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

func event(cat model.Category, user, ip string) model.Event {
	return model.Event{Category: cat, User: user, SourceIP: ip, Priority: cat.Priority()}
}

func TestShouldNotifyFirstOccurrenceOnly(t *testing.T) {
	g := New(Config{})
	e := event(model.LoginSucceeded, "alice", "10.0.0.5")

	if !g.ShouldNotify(e) {
		t.Fatal("first occurrence suppressed")
	}
	for i := 0; i < 5; i++ {
		if g.ShouldNotify(e) {
			t.Fatalf("repeat %d not suppressed", i+1)
		}
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}
}

func TestShouldNotifyDistinguishesEveryKeyField(t *testing.T) {
	g := New(Config{})
	base := event(model.LoginFailed, "root", "203.0.113.9")
	variants := []model.Event{
		base,
		event(model.LoginSucceeded, "root", "203.0.113.9"),
		event(model.LoginFailed, "admin", "203.0.113.9"),
		event(model.LoginFailed, "root", "203.0.113.10"),
	}
	for _, e := range variants {
		if !g.ShouldNotify(e) {
			t.Errorf("ShouldNotify(%+v) = false, want true", e.Key())
		}
	}
	if g.Len() != len(variants) {
		t.Fatalf("Len = %d, want %d", g.Len(), len(variants))
	}
}

func TestShouldNotifyIgnoresNonKeyFields(t *testing.T) {
	g := New(Config{})
	a := event(model.Disconnected, "bob", "198.51.100.2")
	a.Raw = "first"
	b := a
	b.Raw = "second"
	b.ObservedAt = time.Now().Add(time.Hour)

	if !g.ShouldNotify(a) {
		t.Fatal("first occurrence suppressed")
	}
	if g.ShouldNotify(b) {
		t.Fatal("same key with different raw line was not suppressed")
	}
}

func TestShouldNotifyWindowExpiry(t *testing.T) {
	g := New(Config{Window: 50 * time.Millisecond})
	e := event(model.LoginFailed, "root", "203.0.113.9")

	if !g.ShouldNotify(e) {
		t.Fatal("first occurrence suppressed")
	}
	if g.ShouldNotify(e) {
		t.Fatal("repeat inside window not suppressed")
	}

	time.Sleep(120 * time.Millisecond)

	if !g.ShouldNotify(e) {
		t.Fatal("occurrence after window expiry suppressed")
	}
	if g.ShouldNotify(e) {
		t.Fatal("repeat after re-arm not suppressed")
	}
}

func TestShouldNotifyCapacityEvictsOldest(t *testing.T) {
	g := New(Config{Capacity: 2})
	a := event(model.LoginFailed, "a", "1.1.1.1")
	b := event(model.LoginFailed, "b", "1.1.1.1")
	c := event(model.LoginFailed, "c", "1.1.1.1")

	g.ShouldNotify(a)
	g.ShouldNotify(b)
	// A suppressed repeat must not refresh a's position.
	if g.ShouldNotify(a) {
		t.Fatal("a not suppressed while held")
	}
	g.ShouldNotify(c)

	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}
	if !g.ShouldNotify(a) {
		t.Fatal("oldest key a was not evicted")
	}
	if g.ShouldNotify(c) {
		t.Fatal("newest key c was evicted")
	}
}

func TestShouldNotifyConcurrentSingleWinner(t *testing.T) {
	g := New(Config{})
	var wins atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.ShouldNotify(event(model.LoginSucceeded, "alice", "10.0.0.5")) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
}

func TestUnboundedByDefault(t *testing.T) {
	g := New(Config{})
	const n = 5000
	for i := 0; i < n; i++ {
		g.ShouldNotify(event(model.LoginFailed, fmt.Sprintf("user%d", i), "10.0.0.1"))
	}
	if g.Len() != n {
		t.Fatalf("Len = %d, want %d", g.Len(), n)
	}
}
