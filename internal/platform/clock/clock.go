package clock

import (
	"sync"
	"time"
)

// Clock supplies the ledger's notion of "now". The engine treats it as
// monotonic but does not own it; deployments may drive it from a block clock
// rather than wall time.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock implementation used in production wiring.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Manual is a hand-advanced clock for tests. It never moves on its own.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set jumps the clock to a specific instant.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
