// Package compliance is the holder-status registry: KYC eligibility and the
// denylist. The clearing engine re-checks status at approval time rather than
// caching it from creation time, so staleness here directly weakens the
// compliance gate.
package compliance

import (
	"context"
	"sync"

	"tranche/pkg/domain"
)

// Registry answers the two compliance questions the engine asks.
type Registry interface {
	IsEligible(ctx context.Context, account domain.Address) (bool, error)
	IsBlocked(ctx context.Context, account domain.Address) (bool, error)
}

// InMemoryStore is the authoritative in-process registry.
type InMemoryStore struct {
	mu       sync.RWMutex
	eligible map[domain.Address]bool
	blocked  map[domain.Address]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		eligible: make(map[domain.Address]bool),
		blocked:  make(map[domain.Address]bool),
	}
}

// SetEligible records or clears KYC eligibility for an account.
func (s *InMemoryStore) SetEligible(_ context.Context, account domain.Address, eligible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligible[account] = eligible
	return nil
}

// SetBlocked adds or removes an account from the denylist.
func (s *InMemoryStore) SetBlocked(_ context.Context, account domain.Address, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[account] = blocked
	return nil
}

func (s *InMemoryStore) IsEligible(_ context.Context, account domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligible[account], nil
}

func (s *InMemoryStore) IsBlocked(_ context.Context, account domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked[account], nil
}
