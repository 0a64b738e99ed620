package service

import (
	"context"
	"time"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/events"
	"tranche/internal/platform/middleware"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// Approve finalizes a pending clearing with its operation-specific terminal
// effect. Compliance is re-checked here for transfers and redeems, not reused
// from creation time; hold-creation approval deliberately skips those two
// checks because a hold does not move value to a new owner outright.
func (s *Service) Approve(ctx context.Context, caller domain.Address, id clearing.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.settleGates(ctx, caller, id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if now.After(rec.ExpirationAt) {
		return dErrors.New(dErrors.CodeExpirationDateReached, "clearing has expired; reclaim instead")
	}

	switch rec.Operation {
	case clearing.OperationTransfer:
		if err := s.checkCompliance(ctx, rec.TokenHolder, rec.Destination); err != nil {
			return err
		}
		if err := s.balances.Credit(ctx, rec.Partition, rec.Destination, rec.Amount); err != nil {
			return err
		}
	case clearing.OperationRedeem:
		if err := s.checkCompliance(ctx, rec.TokenHolder); err != nil {
			return err
		}
		if err := s.balances.TotalSupplyBurn(ctx, rec.Partition, rec.Amount); err != nil {
			return err
		}
	case clearing.OperationHoldCreation:
		if _, err := s.holds.CreateHold(ctx, rec.Partition, rec.TokenHolder, *rec.Hold, now); err != nil {
			return err
		}
	}

	if _, err := s.ledger.Settle(ctx, id, clearing.StateApproved, now); err != nil {
		return wrongClearingID(err)
	}
	s.emitSettled(ctx, events.TypeClearingApproved, caller, rec, now)
	return nil
}

// Cancel voluntarily aborts a pending clearing while it is still live,
// returning the escrow to the holder. No compliance re-check: cancellation
// succeeds regardless of holder status.
func (s *Service) Cancel(ctx context.Context, caller domain.Address, id clearing.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.settleGates(ctx, caller, id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if now.After(rec.ExpirationAt) {
		return dErrors.New(dErrors.CodeExpirationDateReached, "clearing has expired; reclaim instead")
	}

	if err := s.refund(ctx, rec); err != nil {
		return err
	}
	if _, err := s.ledger.Settle(ctx, id, clearing.StateCancelled, now); err != nil {
		return wrongClearingID(err)
	}
	s.emitSettled(ctx, events.TypeClearingCancelled, caller, rec, now)
	return nil
}

// Reclaim is the escape valve for clearings nobody approved in time. The
// temporal gate is the exact complement of Approve/Cancel: strictly after
// expiry. Effects match Cancel; only the terminal state differs.
func (s *Service) Reclaim(ctx context.Context, caller domain.Address, id clearing.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.settleGates(ctx, caller, id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if !now.After(rec.ExpirationAt) {
		return dErrors.New(dErrors.CodeExpirationDateNotReached, "clearing has not yet expired")
	}

	if err := s.refund(ctx, rec); err != nil {
		return err
	}
	if _, err := s.ledger.Settle(ctx, id, clearing.StateReclaimed, now); err != nil {
		return wrongClearingID(err)
	}
	s.emitSettled(ctx, events.TypeClearingReclaimed, caller, rec, now)
	return nil
}

// settleGates runs the preconditions shared by all three settlement paths:
// pause, subsystem toggle, validator role, and the pending-record lookup.
func (s *Service) settleGates(ctx context.Context, caller domain.Address, id clearing.Identifier) (*clearing.Record, error) {
	if err := s.checkNotPaused(ctx); err != nil {
		return nil, err
	}
	if err := s.checkActive(); err != nil {
		return nil, err
	}
	if err := s.checkRole(ctx, caller, accesscontrol.RoleClearingValidator); err != nil {
		return nil, err
	}
	// Fold due adjustments before touching any amount, as every entry point does.
	s.rebase.Fold(s.clock.Now())
	rec, err := s.ledger.Pending(ctx, id)
	if err != nil {
		return nil, wrongClearingID(err)
	}
	return rec, nil
}

// refund returns the escrowed base units to the holder and, for
// allowance-delegated clearings, restores the consumed allowance to the
// spender by exactly the record's amount.
func (s *Service) refund(ctx context.Context, rec *clearing.Record) error {
	if err := s.balances.Credit(ctx, rec.Partition, rec.TokenHolder, rec.Amount); err != nil {
		return err
	}
	if rec.ThirdPartyType == clearing.ThirdPartyAllowanceDelegate {
		if err := s.allowances.Restore(ctx, rec.TokenHolder, rec.ThirdParty, rec.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) emitSettled(ctx context.Context, eventType events.Type, caller domain.Address, rec *clearing.Record, now time.Time) {
	s.emit(ctx, events.Event{
		Type:        eventType,
		Partition:   rec.Partition,
		TokenHolder: rec.TokenHolder,
		Operation:   rec.Operation,
		ClearingID:  rec.ClearingID,
		Amount:      rec.Amount,
		Actor:       caller,
		ThirdParty:  rec.ThirdPartyType,
		RequestID:   middleware.GetRequestID(ctx),
		Timestamp:   now,
	})
}
