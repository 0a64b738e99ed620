// Package store is the clearing ledger: every clearing record ever created,
// indexed by (partition, holder, operation, id), plus the incrementally
// maintained cleared-amount aggregates.
package store

import (
	"context"
	"sync"
	"time"

	"tranche/internal/clearing"
	"tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

type sequenceKey struct {
	partition domain.PartitionID
	holder    domain.Address
	operation clearing.OperationType
}

type partitionAccountKey struct {
	partition domain.PartitionID
	account   domain.Address
}

// InMemoryStore keeps the ledger in process memory. Records are append-only:
// settling flips the state in place, nothing is ever deleted, and ids keep
// counting across cancelled and reclaimed records.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[sequenceKey][]*clearing.Record
	byAccount map[domain.Address]uint64
	byKey     map[partitionAccountKey]uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[sequenceKey][]*clearing.Record),
		byAccount: make(map[domain.Address]uint64),
		byKey:     make(map[partitionAccountKey]uint64),
	}
}

func key(id clearing.Identifier) sequenceKey {
	return sequenceKey{id.Partition, id.TokenHolder, id.Operation}
}

// Append assigns the next clearing id for the record's key, stores the record
// in Created state, and bumps the cleared-amount aggregates.
func (s *InMemoryStore) Append(_ context.Context, rec *clearing.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.Identifier)
	rec.ClearingID = uint64(len(s.records[k]) + 1)
	rec.State = clearing.StateCreated
	s.records[k] = append(s.records[k], rec)

	s.byAccount[rec.TokenHolder] += rec.Amount
	s.byKey[partitionAccountKey{rec.Partition, rec.TokenHolder}] += rec.Amount
	return rec.ClearingID, nil
}

// Pending returns the record iff it exists and is still in Created state.
// Unknown keys, out-of-range ids, and settled records are indistinguishable
// to callers: all come back sentinel.ErrNotFound.
func (s *InMemoryStore) Pending(_ context.Context, id clearing.Identifier) (*clearing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, sentinel.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// Get returns the record regardless of state, for the historical query surface.
func (s *InMemoryStore) Get(_ context.Context, id clearing.Identifier) (*clearing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	copied := *rec
	return &copied, nil
}

// Settle transitions a pending record to the given terminal state and
// decrements the aggregates. Settling an already-settled record fails with
// sentinel.ErrNotFound, same as an unknown id.
func (s *InMemoryStore) Settle(_ context.Context, id clearing.Identifier, state clearing.State, settledAt time.Time) (*clearing.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, sentinel.ErrNotFound
	}
	rec.State = state
	rec.SettledAt = settledAt

	s.byAccount[rec.TokenHolder] -= rec.Amount
	s.byKey[partitionAccountKey{rec.Partition, rec.TokenHolder}] -= rec.Amount

	copied := *rec
	return &copied, nil
}

// Count returns how many clearings have ever been created for the key.
func (s *InMemoryStore) Count(_ context.Context, partition domain.PartitionID, holder domain.Address, operation clearing.OperationType) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records[sequenceKey{partition, holder, operation}])), nil
}

// IDs returns a bounded window of the key's id sequence. The sequence is
// append-only, so the same offset always names the same ids.
func (s *InMemoryStore) IDs(_ context.Context, partition domain.PartitionID, holder domain.Address, operation clearing.OperationType, offset, limit uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := uint64(len(s.records[sequenceKey{partition, holder, operation}]))
	if offset >= total {
		return []uint64{}, nil
	}
	end := offset + limit
	if limit == 0 || end > total {
		end = total
	}
	ids := make([]uint64, 0, end-offset)
	for i := offset; i < end; i++ {
		ids = append(ids, i+1)
	}
	return ids, nil
}

// ClearedAmount returns the base units currently in clearing for the account
// across all partitions and operation types.
func (s *InMemoryStore) ClearedAmount(_ context.Context, account domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAccount[account], nil
}

// ClearedAmountByPartition returns the base units currently in clearing for
// the account within one partition.
func (s *InMemoryStore) ClearedAmountByPartition(_ context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[partitionAccountKey{partition, account}], nil
}

func (s *InMemoryStore) lookup(id clearing.Identifier) (*clearing.Record, error) {
	seq := s.records[key(id)]
	if id.ClearingID == 0 || id.ClearingID > uint64(len(seq)) {
		return nil, sentinel.ErrNotFound
	}
	return seq[id.ClearingID-1], nil
}
