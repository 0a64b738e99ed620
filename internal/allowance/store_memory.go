// Package allowance is the ERC20-style allowance ledger: how much of an
// owner's balance a spender may commit on their behalf. Amounts are base
// units, like every stored amount in the system.
package allowance

import (
	"context"
	"sync"

	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

type InMemoryStore struct {
	mu         sync.RWMutex
	allowances map[allowanceKey]uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{allowances: make(map[allowanceKey]uint64)}
}

// Approve sets the spender's allowance to exactly amount.
func (s *InMemoryStore) Approve(_ context.Context, owner, spender domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

// Increase raises the spender's allowance by amount.
func (s *InMemoryStore) Increase(_ context.Context, owner, spender domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey{owner, spender}] += amount
	return nil
}

// Decrease lowers the spender's allowance by amount. The allowance cannot go
// below zero.
func (s *InMemoryStore) Decrease(_ context.Context, owner, spender domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{owner, spender}
	if s.allowances[key] < amount {
		return dErrors.New(dErrors.CodeInsufficientAllowance, "allowance below requested decrease")
	}
	s.allowances[key] -= amount
	return nil
}

// Consume decrements the spender's allowance. The clearing engine calls this
// at creation time, not approval time.
func (s *InMemoryStore) Consume(_ context.Context, owner, spender domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{owner, spender}
	if s.allowances[key] < amount {
		return dErrors.New(dErrors.CodeInsufficientAllowance, "allowance below requested amount")
	}
	s.allowances[key] -= amount
	return nil
}

// Restore returns previously consumed allowance after a cancel or reclaim.
func (s *InMemoryStore) Restore(_ context.Context, owner, spender domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey{owner, spender}] += amount
	return nil
}

// AllowanceOf returns the spender's remaining base-unit allowance.
func (s *InMemoryStore) AllowanceOf(_ context.Context, owner, spender domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[allowanceKey{owner, spender}], nil
}
