// Package balance is the partition balance store: per-account, per-partition
// spendable balances plus per-partition total supply. Every amount in this
// package is base units; the rebase multiplier is applied by callers at their
// read boundary.
package balance

import (
	"context"
	"sync"

	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

type balanceKey struct {
	partition domain.PartitionID
	account   domain.Address
}

// InMemoryStore keeps balances in process memory. The clearing engine is
// specified as a deterministic core, so this is the production store; the
// mutex only guards against concurrent HTTP readers.
type InMemoryStore struct {
	mu          sync.RWMutex
	balances    map[balanceKey]uint64
	totalSupply map[domain.PartitionID]uint64
	partitions  map[domain.PartitionID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		balances:    make(map[balanceKey]uint64),
		totalSupply: make(map[domain.PartitionID]uint64),
		partitions:  make(map[domain.PartitionID]bool),
	}
}

// Issue mints base units to an account and registers the partition.
func (s *InMemoryStore) Issue(_ context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[partition] = true
	s.balances[balanceKey{partition, account}] += amount
	s.totalSupply[partition] += amount
	return nil
}

// Debit removes base units from an account's spendable balance.
func (s *InMemoryStore) Debit(_ context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{partition, account}
	if s.balances[key] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "spendable balance below requested amount")
	}
	s.balances[key] -= amount
	return nil
}

// Credit adds base units to an account's spendable balance.
func (s *InMemoryStore) Credit(_ context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{partition, account}] += amount
	return nil
}

// BalanceOf returns the spendable base-unit balance.
func (s *InMemoryStore) BalanceOf(_ context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balanceKey{partition, account}], nil
}

// TotalSupplyBurn reduces the partition's total supply after an already-debited
// amount is redeemed. The spendable debit happened at clearing creation, so
// only the supply counter moves here.
func (s *InMemoryStore) TotalSupplyBurn(_ context.Context, partition domain.PartitionID, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalSupply[partition] < amount {
		return dErrors.New(dErrors.CodeInsufficientBalance, "burn exceeds partition total supply")
	}
	s.totalSupply[partition] -= amount
	return nil
}

// TotalSupply returns the partition's base-unit total supply.
func (s *InMemoryStore) TotalSupply(_ context.Context, partition domain.PartitionID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSupply[partition], nil
}

// PartitionExists reports whether a partition has ever been issued to.
func (s *InMemoryStore) PartitionExists(_ context.Context, partition domain.PartitionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[partition], nil
}
