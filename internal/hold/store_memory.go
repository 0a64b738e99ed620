package hold

import (
	"context"
	"sync"
	"time"

	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
)

type holdKey struct {
	partition domain.PartitionID
	holder    domain.Address
}

type partitionAccountKey struct {
	partition domain.PartitionID
	account   domain.Address
}

// InMemoryStore tracks holds and the held-amount aggregates. Hold ids are a
// per-(partition, holder) sequence starting at 1, never reused.
type InMemoryStore struct {
	mu        sync.RWMutex
	holds     map[holdKey][]*Hold
	byAccount map[domain.Address]uint64
	byKey     map[partitionAccountKey]uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		holds:     make(map[holdKey][]*Hold),
		byAccount: make(map[domain.Address]uint64),
		byKey:     make(map[partitionAccountKey]uint64),
	}
}

// CreateHold records a new active hold and returns its id.
func (s *InMemoryStore) CreateHold(_ context.Context, partition domain.PartitionID, holder domain.Address, spec Spec, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := holdKey{partition, holder}
	id := uint64(len(s.holds[key]) + 1)
	s.holds[key] = append(s.holds[key], &Hold{
		ID:           id,
		Partition:    partition,
		TokenHolder:  holder,
		Amount:       spec.Amount,
		ExpirationAt: spec.ExpirationAt,
		Escrow:       spec.Escrow,
		To:           spec.To,
		Data:         spec.Data,
		Status:       StatusActive,
		CreatedAt:    now,
	})
	s.byAccount[holder] += spec.Amount
	s.byKey[partitionAccountKey{partition, holder}] += spec.Amount
	return id, nil
}

// Release flips an active hold to released, decrements the aggregates, and
// returns the released base-unit amount. Only valid after the hold's expiry;
// pre-expiry release is the escrow's concern, outside this subsystem.
func (s *InMemoryStore) Release(_ context.Context, partition domain.PartitionID, holder domain.Address, id uint64, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := holdKey{partition, holder}
	if id == 0 || id > uint64(len(s.holds[key])) {
		return 0, sentinel.ErrNotFound
	}
	h := s.holds[key][id-1]
	if h.Status != StatusActive {
		return 0, sentinel.ErrTerminal
	}
	if !now.After(h.ExpirationAt) {
		return 0, dErrors.New(dErrors.CodeExpirationDateNotReached, "hold has not yet expired")
	}
	h.Status = StatusReleased
	s.byAccount[holder] -= h.Amount
	s.byKey[partitionAccountKey{partition, holder}] -= h.Amount
	return h.Amount, nil
}

// Get returns a hold by identifier, active or released.
func (s *InMemoryStore) Get(_ context.Context, partition domain.PartitionID, holder domain.Address, id uint64) (*Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := holdKey{partition, holder}
	if id == 0 || id > uint64(len(s.holds[key])) {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.holds[key][id-1]
	return &copied, nil
}

// Count returns how many holds have ever been created for the key.
func (s *InMemoryStore) Count(_ context.Context, partition domain.PartitionID, holder domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.holds[holdKey{partition, holder}])), nil
}

// HeldAmount returns the active held base units across all partitions.
func (s *InMemoryStore) HeldAmount(_ context.Context, account domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAccount[account], nil
}

// HeldAmountByPartition returns the active held base units for one partition.
func (s *InMemoryStore) HeldAmountByPartition(_ context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[partitionAccountKey{partition, account}], nil
}
