package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is the in-process event sink. It is append-only and doubles as the
// query surface for recent events, so tests can assert on emissions without
// wiring Kafka.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Emit(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// List returns a copy of all recorded events in emission order.
func (l *Log) List(_ context.Context) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event{}, l.events...), nil
}

// ListByHolder filters recorded events for one token holder.
func (l *Log) ListByHolder(_ context.Context, holder string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if string(e.TokenHolder) == holder {
			out = append(out, e)
		}
	}
	return out, nil
}

// Fanout emits to every configured sink in order. The first failure aborts;
// the engine treats event emission as part of the operation's effects.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
