package hold

import (
	"context"
	"errors"

	"tranche/internal/platform/clock"
	"tranche/internal/rebase"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
)

// BalanceLedger is the credit side of a hold release.
type BalanceLedger interface {
	Credit(ctx context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error
}

// Service exposes the hold subsystem beyond its role as the clearing engine's
// approval sink: expired holds can be released and holds can be inspected.
type Service struct {
	store    *InMemoryStore
	balances BalanceLedger
	rebase   *rebase.Register
	clock    clock.Clock
}

func NewService(store *InMemoryStore, balances BalanceLedger, register *rebase.Register, clk clock.Clock) (*Service, error) {
	if store == nil || balances == nil || register == nil || clk == nil {
		return nil, errors.New("hold service: all collaborators are required")
	}
	return &Service{store: store, balances: balances, rebase: register, clock: clk}, nil
}

// Release returns an expired hold's base units to the holder's spendable
// balance. Only the hold's escrow or the holder may release; the hold must be
// active and past its expiration.
func (s *Service) Release(ctx context.Context, caller domain.Address, partition domain.PartitionID, holder domain.Address, id uint64) error {
	h, err := s.store.Get(ctx, partition, holder, id)
	if err != nil {
		return translateLookup(err)
	}
	if caller != h.Escrow && caller != h.TokenHolder {
		return dErrors.New(dErrors.CodeUnauthorized, "only the escrow or the holder may release a hold")
	}

	amount, err := s.store.Release(ctx, partition, holder, id, s.clock.Now())
	if err != nil {
		return translateLookup(err)
	}
	return s.balances.Credit(ctx, partition, holder, amount)
}

// Get returns one hold, active or released, with its amount in observed units.
func (s *Service) Get(ctx context.Context, partition domain.PartitionID, holder domain.Address, id uint64) (*Hold, error) {
	h, err := s.store.Get(ctx, partition, holder, id)
	if err != nil {
		return nil, translateLookup(err)
	}
	h.Amount = s.rebase.ToObserved(h.Amount, s.clock.Now())
	return h, nil
}

// Count returns how many holds have ever been created for the key.
func (s *Service) Count(ctx context.Context, partition domain.PartitionID, holder domain.Address) (uint64, error) {
	return s.store.Count(ctx, partition, holder)
}

func translateLookup(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "no such hold")
	}
	if errors.Is(err, sentinel.ErrTerminal) {
		return dErrors.New(dErrors.CodeNotFound, "hold already released")
	}
	return err
}
