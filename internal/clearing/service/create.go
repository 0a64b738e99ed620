package service

import (
	"context"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/events"
	"tranche/internal/hold"
	"tranche/internal/platform/middleware"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// createParams collects everything the shared creation path needs after the
// per-variant entry point has classified the initiation mode.
type createParams struct {
	operation    clearing.OperationType
	partition    domain.PartitionID
	request      clearing.Request
	tokenHolder  domain.Address
	amount       uint64 // observed units
	destination  domain.Address
	operatorData []byte
	thirdParty   domain.Address
	thirdPartyType clearing.ThirdPartyType
	holdSpec     *hold.Spec // observed amount; only for hold creation
	actor        domain.Address
}

// CreateTransfer escrows amount from the caller's own balance for a future
// transfer to `to`. Returns the new clearing id.
func (s *Service) CreateTransfer(ctx context.Context, caller domain.Address, req clearing.Request, amount uint64, to domain.Address) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationTransfer,
		partition:      req.Partition,
		request:        req,
		tokenHolder:    caller,
		amount:         amount,
		destination:    to,
		thirdPartyType: clearing.ThirdPartyNone,
		actor:          caller,
	})
}

// CreateTransferFrom escrows amount from req.From's balance, consuming the
// caller's allowance immediately.
func (s *Service) CreateTransferFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationTransfer,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		destination:    to,
		operatorData:   req.OperatorData,
		thirdParty:     caller,
		thirdPartyType: clearing.ThirdPartyAllowanceDelegate,
		actor:          caller,
	})
}

// OperatorCreateTransfer escrows amount from req.From's balance under an
// operator authorization.
func (s *Service) OperatorCreateTransfer(ctx context.Context, operator domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationTransfer,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		destination:    to,
		operatorData:   req.OperatorData,
		thirdParty:     operator,
		thirdPartyType: clearing.ThirdPartyOperatorDelegate,
		actor:          operator,
	})
}

// ControllerCreateTransfer is the controller-forced transfer path. Requires
// the controller role.
func (s *Service) ControllerCreateTransfer(ctx context.Context, controller domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationTransfer,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		destination:    to,
		operatorData:   req.OperatorData,
		thirdParty:     controller,
		thirdPartyType: clearing.ThirdPartyController,
		actor:          controller,
	})
}

// CreateRedeem escrows amount from the caller's own balance for a future burn.
func (s *Service) CreateRedeem(ctx context.Context, caller domain.Address, req clearing.Request, amount uint64) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationRedeem,
		partition:      req.Partition,
		request:        req,
		tokenHolder:    caller,
		amount:         amount,
		thirdPartyType: clearing.ThirdPartyNone,
		actor:          caller,
	})
}

// CreateRedeemFrom is the allowance-delegated redeem path.
func (s *Service) CreateRedeemFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationRedeem,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		operatorData:   req.OperatorData,
		thirdParty:     caller,
		thirdPartyType: clearing.ThirdPartyAllowanceDelegate,
		actor:          caller,
	})
}

// OperatorCreateRedeem is the operator-delegated redeem path.
func (s *Service) OperatorCreateRedeem(ctx context.Context, operator domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationRedeem,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		operatorData:   req.OperatorData,
		thirdParty:     operator,
		thirdPartyType: clearing.ThirdPartyOperatorDelegate,
		actor:          operator,
	})
}

// ControllerCreateRedeem is the controller-forced redeem path.
func (s *Service) ControllerCreateRedeem(ctx context.Context, controller domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationRedeem,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         amount,
		operatorData:   req.OperatorData,
		thirdParty:     controller,
		thirdPartyType: clearing.ThirdPartyController,
		actor:          controller,
	})
}

// CreateHold escrows spec.Amount from the caller's own balance; approval will
// turn the escrow into a hold.
func (s *Service) CreateHold(ctx context.Context, caller domain.Address, req clearing.Request, spec hold.Spec) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationHoldCreation,
		partition:      req.Partition,
		request:        req,
		tokenHolder:    caller,
		amount:         spec.Amount,
		destination:    spec.To,
		thirdPartyType: clearing.ThirdPartyNone,
		holdSpec:       &spec,
		actor:          caller,
	})
}

// CreateHoldFrom is the allowance-delegated hold-creation path.
func (s *Service) CreateHoldFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, spec hold.Spec) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationHoldCreation,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         spec.Amount,
		destination:    spec.To,
		operatorData:   req.OperatorData,
		thirdParty:     caller,
		thirdPartyType: clearing.ThirdPartyAllowanceDelegate,
		holdSpec:       &spec,
		actor:          caller,
	})
}

// OperatorCreateHold is the operator-delegated hold-creation path.
func (s *Service) OperatorCreateHold(ctx context.Context, operator domain.Address, req clearing.RequestFrom, spec hold.Spec) (uint64, error) {
	return s.create(ctx, createParams{
		operation:      clearing.OperationHoldCreation,
		partition:      req.Partition,
		request:        req.Request,
		tokenHolder:    req.From,
		amount:         spec.Amount,
		destination:    spec.To,
		operatorData:   req.OperatorData,
		thirdParty:     operator,
		thirdPartyType: clearing.ThirdPartyOperatorDelegate,
		holdSpec:       &spec,
		actor:          operator,
	})
}

// create runs the shared precondition gauntlet, then applies all effects.
// Preconditions are checked in a fixed order, each with its own failure code;
// nothing mutates until every gate has passed.
func (s *Service) create(ctx context.Context, p createParams) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNotPaused(ctx); err != nil {
		return 0, err
	}
	if err := s.checkActive(); err != nil {
		return 0, err
	}
	if err := s.checkPartition(ctx, p.partition); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	if !p.request.ExpirationAt.After(now) {
		return 0, dErrors.New(dErrors.CodeWrongExpirationTimestamp, "expiration must be in the future")
	}
	if p.tokenHolder.IsZero() {
		return 0, dErrors.New(dErrors.CodeZeroAddressNotAllowed, "token holder must not be the zero address")
	}
	if p.holdSpec != nil && p.holdSpec.Escrow.IsZero() {
		return 0, dErrors.New(dErrors.CodeZeroAddressNotAllowed, "hold escrow must not be the zero address")
	}

	// All stored amounts are base units; convert the observed amount at the
	// multiplier in effect right now.
	baseAmount := s.rebase.ToBase(p.amount, now)

	switch p.thirdPartyType {
	case clearing.ThirdPartyAllowanceDelegate:
		available, err := s.allowances.AllowanceOf(ctx, p.tokenHolder, p.thirdParty)
		if err != nil {
			return 0, dErrors.Wrap(dErrors.CodeInternal, "allowance lookup failed", err)
		}
		if available < baseAmount {
			return 0, dErrors.New(dErrors.CodeInsufficientAllowance, "allowance below requested amount")
		}
	case clearing.ThirdPartyOperatorDelegate:
		authorized, err := s.operators.IsAuthorized(ctx, p.tokenHolder, p.thirdParty, p.partition)
		if err != nil {
			return 0, dErrors.Wrap(dErrors.CodeInternal, "operator lookup failed", err)
		}
		if !authorized {
			return 0, dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized operator for the holder")
		}
	case clearing.ThirdPartyController:
		if err := s.checkRole(ctx, p.thirdParty, accesscontrol.RoleController); err != nil {
			return 0, err
		}
	}

	balance, err := s.balances.BalanceOf(ctx, p.partition, p.tokenHolder)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "balance lookup failed", err)
	}
	if balance < baseAmount {
		return 0, dErrors.New(dErrors.CodeInsufficientBalance, "spendable balance below requested amount")
	}

	// Gates passed: apply effects. The allowance is consumed at creation, not
	// at approval; cancel and reclaim restore it.
	if p.thirdPartyType == clearing.ThirdPartyAllowanceDelegate {
		if err := s.allowances.Consume(ctx, p.tokenHolder, p.thirdParty, baseAmount); err != nil {
			return 0, err
		}
	}
	if err := s.balances.Debit(ctx, p.partition, p.tokenHolder, baseAmount); err != nil {
		return 0, err
	}

	rec := &clearing.Record{
		Identifier: clearing.Identifier{
			Partition:   p.partition,
			TokenHolder: p.tokenHolder,
			Operation:   p.operation,
		},
		Amount:         baseAmount,
		ExpirationAt:   p.request.ExpirationAt,
		Destination:    p.destination,
		Data:           p.request.Data,
		OperatorData:   p.operatorData,
		ThirdPartyType: p.thirdPartyType,
		ThirdParty:     p.thirdParty,
		CreatedAt:      now,
	}
	if p.holdSpec != nil {
		spec := *p.holdSpec
		spec.Amount = baseAmount
		rec.Hold = &spec
	}

	id, err := s.ledger.Append(ctx, rec)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "append clearing record", err)
	}

	s.emit(ctx, events.Event{
		Type:        events.TypeClearingCreated,
		Partition:   p.partition,
		TokenHolder: p.tokenHolder,
		Operation:   p.operation,
		ClearingID:  id,
		Amount:      baseAmount,
		Actor:       p.actor,
		ThirdParty:  p.thirdPartyType,
		RequestID:   middleware.GetRequestID(ctx),
		Timestamp:   now,
	})
	return id, nil
}
