package service

import (
	"context"

	"tranche/internal/clearing"
	"tranche/pkg/domain"
)

// The read-only query surface. Every amount-returning call applies the
// effective multiplier at call time; storage stays in base units.

// ClearedAmountFor returns the observed units currently in clearing for the
// account across all partitions.
func (s *Service) ClearedAmountFor(ctx context.Context, account domain.Address) (uint64, error) {
	base, err := s.ledger.ClearedAmount(ctx, account)
	if err != nil {
		return 0, err
	}
	return s.rebase.ToObserved(base, s.clock.Now()), nil
}

// ClearedAmountForByPartition returns the observed units currently in
// clearing for the account within one partition.
func (s *Service) ClearedAmountForByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	base, err := s.ledger.ClearedAmountByPartition(ctx, partition, account)
	if err != nil {
		return 0, err
	}
	return s.rebase.ToObserved(base, s.clock.Now()), nil
}

// ClearingCountFor returns how many clearings have ever been created for the
// key, settled ones included.
func (s *Service) ClearingCountFor(ctx context.Context, partition domain.PartitionID, account domain.Address, operation clearing.OperationType) (uint64, error) {
	return s.ledger.Count(ctx, partition, account, operation)
}

// ClearingsIDFor returns a bounded window over the key's append-only id
// sequence. limit 0 means "to the end".
func (s *Service) ClearingsIDFor(ctx context.Context, partition domain.PartitionID, account domain.Address, operation clearing.OperationType, offset, limit uint64) ([]uint64, error) {
	return s.ledger.IDs(ctx, partition, account, operation, offset, limit)
}

// ClearingRecordFor returns one clearing record, settled or pending, with its
// amounts converted to observed units.
func (s *Service) ClearingRecordFor(ctx context.Context, id clearing.Identifier) (*clearing.Record, error) {
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, wrongClearingID(err)
	}
	now := s.clock.Now()
	rec.Amount = s.rebase.ToObserved(rec.Amount, now)
	if rec.Hold != nil {
		spec := *rec.Hold
		spec.Amount = s.rebase.ToObserved(spec.Amount, now)
		rec.Hold = &spec
	}
	return rec, nil
}

// ThirdPartyOf returns how a clearing was initiated relative to the holder,
// and by whom.
func (s *Service) ThirdPartyOf(ctx context.Context, id clearing.Identifier) (clearing.ThirdPartyType, domain.Address, error) {
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		return "", "", wrongClearingID(err)
	}
	return rec.ThirdPartyType, rec.ThirdParty, nil
}

// HeldAmountFor returns the observed units locked in active holds for the
// account across all partitions.
func (s *Service) HeldAmountFor(ctx context.Context, account domain.Address) (uint64, error) {
	base, err := s.holds.HeldAmount(ctx, account)
	if err != nil {
		return 0, err
	}
	return s.rebase.ToObserved(base, s.clock.Now()), nil
}

// HeldAmountForByPartition returns the observed held units for one partition.
func (s *Service) HeldAmountForByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	base, err := s.holds.HeldAmountByPartition(ctx, partition, account)
	if err != nil {
		return 0, err
	}
	return s.rebase.ToObserved(base, s.clock.Now()), nil
}

// BalanceOf returns the observed spendable balance.
func (s *Service) BalanceOf(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error) {
	base, err := s.balances.BalanceOf(ctx, partition, account)
	if err != nil {
		return 0, err
	}
	return s.rebase.ToObserved(base, s.clock.Now()), nil
}

// Multiplier reports the effective multiplier as of now, folding any due
// adjustments as a side effect.
func (s *Service) Multiplier(ctx context.Context) uint64 {
	return s.rebase.Factor(s.clock.Now())
}
