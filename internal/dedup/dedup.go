// Package dedup suppresses repeat notifications for the same event key.
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

// Config controls how long keys stay in the seen-set and how many it holds.
//
// The zero value keeps every key for the life of the process with no size
// bound, so memory grows with the number of distinct
// (category, user, address) triples observed.
type Config struct {
	Window   time.Duration // 0 = keys never expire
	Capacity int           // 0 = unbounded; otherwise oldest keys are evicted first
}

// Guard records which event keys have already been notified.
type Guard struct {
	mu   sync.Mutex
	seen *expirable.LRU[model.DedupKey, struct{}]
}

// New creates a Guard with an empty seen-set.
func New(cfg Config) *Guard {
	capacity := cfg.Capacity
	if capacity < 0 {
		capacity = 0
	}
	return &Guard{
		seen: expirable.NewLRU[model.DedupKey, struct{}](capacity, nil, cfg.Window),
	}
}

// ShouldNotify reports whether the event's key is new, recording it when it is.
// The check and the insert happen under one lock so concurrent callers cannot
// both see the same key as new.
func (g *Guard) ShouldNotify(event model.Event) bool {
	key := event.Key()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Peek leaves insertion order alone, so eviction stays oldest-first.
	if _, ok := g.seen.Peek(key); ok {
		return false
	}
	g.seen.Add(key, struct{}{})
	return true
}

// Len returns the number of keys currently held.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}
