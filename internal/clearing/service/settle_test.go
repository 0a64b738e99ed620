package service

import (
	"time"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/events"
	"tranche/internal/hold"
	dErrors "tranche/pkg/domain-errors"
)

func (s *ServiceSuite) createTransfer(amount uint64) clearing.Identifier {
	id, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), amount, holderB)
	s.Require().NoError(err)
	return s.identifier(holderA, clearing.OperationTransfer, id)
}

func (s *ServiceSuite) TestApprove() {
	s.Run("transfer approval credits the destination", func() {
		s.SetupTest()
		id := s.createTransfer(1000)

		s.Require().NoError(s.service.Approve(s.ctx, validator, id))

		s.Equal(uint64(2000), s.balanceOf(holderA))
		s.Equal(uint64(1000), s.balanceOf(holderB))
		s.Equal(uint64(0), s.clearedOf(holderA))
		s.Equal(events.TypeClearingApproved, s.lastEvent().Type)
	})

	s.Run("redeem approval burns supply without crediting anyone", func() {
		s.SetupTest()
		cid, err := s.service.CreateRedeem(s.ctx, holderA, s.request(), 500)
		s.Require().NoError(err)
		id := s.identifier(holderA, clearing.OperationRedeem, cid)

		s.Require().NoError(s.service.Approve(s.ctx, validator, id))

		s.Equal(uint64(2500), s.balanceOf(holderA))
		supply, err := s.balances.TotalSupply(s.ctx, id.Partition)
		s.Require().NoError(err)
		s.Equal(uint64(2500), supply)
	})

	s.Run("hold approval creates the hold and skips compliance", func() {
		s.SetupTest()
		spec := hold.Spec{
			Amount:       600,
			ExpirationAt: s.clock.Now().Add(30 * 24 * time.Hour),
			Escrow:       escrower,
			To:           holderB,
		}
		cid, err := s.service.CreateHold(s.ctx, holderA, s.request(), spec)
		s.Require().NoError(err)
		id := s.identifier(holderA, clearing.OperationHoldCreation, cid)

		// Holder turns ineligible after creation. Transfer and redeem
		// approvals would refuse; hold approval proceeds regardless.
		s.compliance.eligible[holderA] = false

		s.Require().NoError(s.service.Approve(s.ctx, validator, id))
		s.Equal(uint64(600), s.heldOf(holderA))
		s.Equal(uint64(0), s.clearedOf(holderA))
	})

	s.Run("transfer approval refuses an ineligible destination", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.compliance.eligible[holderB] = false

		err := s.service.Approve(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidKycStatus))
		// Still pending: escrow untouched, approvable once status clears.
		s.Equal(uint64(1000), s.clearedOf(holderA))

		s.compliance.eligible[holderB] = true
		s.NoError(s.service.Approve(s.ctx, validator, id))
	})

	s.Run("blocked outranks ineligible in the failure code", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.compliance.eligible[holderB] = false
		s.compliance.blocked[holderB] = true

		err := s.service.Approve(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountIsBlocked))
	})

	s.Run("redeem approval re-checks only the holder", func() {
		s.SetupTest()
		cid, err := s.service.CreateRedeem(s.ctx, holderA, s.request(), 500)
		s.Require().NoError(err)
		id := s.identifier(holderA, clearing.OperationRedeem, cid)
		s.compliance.blocked[holderA] = true

		err = s.service.Approve(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountIsBlocked))
	})

	s.Run("requires the clearing validator role", func() {
		s.SetupTest()
		id := s.createTransfer(1000)

		err := s.service.Approve(s.ctx, holderA, id)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountHasNoRole))
	})

	s.Run("refuses after expiry", func() {
		s.SetupTest()
		req := s.request()
		req.ExpirationAt = s.t0.Add(100 * time.Second)
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1000, holderB)
		s.Require().NoError(err)
		id := s.identifier(holderA, clearing.OperationTransfer, cid)

		s.clock.Set(s.t0.Add(150 * time.Second))
		err = s.service.Approve(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeExpirationDateReached))
	})

	s.Run("succeeds exactly at the expiration instant", func() {
		s.SetupTest()
		req := s.request()
		req.ExpirationAt = s.t0.Add(100 * time.Second)
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1000, holderB)
		s.Require().NoError(err)

		s.clock.Set(req.ExpirationAt)
		s.NoError(s.service.Approve(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, cid)))
	})
}

func (s *ServiceSuite) TestCancel() {
	s.Run("returns the escrow to the holder", func() {
		s.SetupTest()
		id := s.createTransfer(1000)

		s.Require().NoError(s.service.Cancel(s.ctx, validator, id))

		s.Equal(uint64(3000), s.balanceOf(holderA))
		s.Equal(uint64(0), s.clearedOf(holderA))
		s.Equal(events.TypeClearingCancelled, s.lastEvent().Type)
	})

	s.Run("restores the allowance on the delegated path", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 1000))
		cid, err := s.service.CreateTransferFrom(s.ctx, spender, s.requestFrom(holderA), 1000, holderB)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Cancel(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, cid)))

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, spender)
		s.Require().NoError(err)
		s.Equal(uint64(1000), remaining)
	})

	s.Run("does not restore allowance for an operator clearing", func() {
		s.SetupTest()
		s.Require().NoError(s.access.AuthorizeOperator(s.ctx, holderA, operator))
		cid, err := s.service.OperatorCreateTransfer(s.ctx, operator, s.requestFrom(holderA), 1000, holderB)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Cancel(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, cid)))

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, operator)
		s.Require().NoError(err)
		s.Equal(uint64(0), remaining)
	})

	s.Run("skips compliance entirely", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.compliance.blocked[holderA] = true
		s.compliance.blocked[holderB] = true

		s.NoError(s.service.Cancel(s.ctx, validator, id))
		s.Equal(uint64(3000), s.balanceOf(holderA))
	})

	s.Run("refuses after expiry", func() {
		s.SetupTest()
		req := s.request()
		req.ExpirationAt = s.t0.Add(time.Minute)
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1000, holderB)
		s.Require().NoError(err)

		s.clock.Advance(2 * time.Minute)
		err = s.service.Cancel(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, cid))
		s.True(dErrors.HasCode(err, dErrors.CodeExpirationDateReached))
	})
}

func (s *ServiceSuite) TestReclaim() {
	s.Run("refunds only after expiry, the exact complement of approve", func() {
		s.SetupTest()
		req := s.request()
		req.ExpirationAt = s.t0.Add(100 * time.Second)
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1000, holderB)
		s.Require().NoError(err)
		id := s.identifier(holderA, clearing.OperationTransfer, cid)

		// At t0+50 the clearing is live: reclaim refuses, approve would work.
		s.clock.Set(s.t0.Add(50 * time.Second))
		err = s.service.Reclaim(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeExpirationDateNotReached))

		// Exactly at expiry it is still live.
		s.clock.Set(req.ExpirationAt)
		err = s.service.Reclaim(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeExpirationDateNotReached))

		// At t0+150 only reclaim works.
		s.clock.Set(s.t0.Add(150 * time.Second))
		s.Require().NoError(s.service.Reclaim(s.ctx, validator, id))
		s.Equal(uint64(3000), s.balanceOf(holderA))
		s.Equal(events.TypeClearingReclaimed, s.lastEvent().Type)
	})

	s.Run("restores the allowance like cancel does", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 800))
		req := s.requestFrom(holderA)
		req.ExpirationAt = s.t0.Add(time.Hour)
		cid, err := s.service.CreateRedeemFrom(s.ctx, spender, req, 800)
		s.Require().NoError(err)

		s.clock.Advance(2 * time.Hour)
		s.Require().NoError(s.service.Reclaim(s.ctx, validator, s.identifier(holderA, clearing.OperationRedeem, cid)))

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, spender)
		s.Require().NoError(err)
		s.Equal(uint64(800), remaining)
	})
}

func (s *ServiceSuite) TestSettleTerminalOnce() {
	s.Run("a settled clearing answers every further settlement with the catch-all", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.Require().NoError(s.service.Approve(s.ctx, validator, id))

		for _, attempt := range []func() error{
			func() error { return s.service.Approve(s.ctx, validator, id) },
			func() error { return s.service.Cancel(s.ctx, validator, id) },
			func() error { return s.service.Reclaim(s.ctx, validator, id) },
		} {
			s.True(dErrors.HasCode(attempt(), dErrors.CodeWrongClearingID))
		}
		// Balances moved exactly once.
		s.Equal(uint64(1000), s.balanceOf(holderB))
	})

	s.Run("unknown identifiers collapse into the same catch-all", func() {
		s.SetupTest()
		s.createTransfer(1000)

		for name, id := range map[string]clearing.Identifier{
			"wrong id":        s.identifier(holderA, clearing.OperationTransfer, 99),
			"wrong holder":    s.identifier(holderB, clearing.OperationTransfer, 1),
			"wrong operation": s.identifier(holderA, clearing.OperationRedeem, 1),
			"zero id":         s.identifier(holderA, clearing.OperationTransfer, 0),
		} {
			s.Run(name, func() {
				s.True(dErrors.HasCode(s.service.Approve(s.ctx, validator, id), dErrors.CodeWrongClearingID))
			})
		}
	})

	s.Run("the record survives settlement with its terminal state", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.Require().NoError(s.service.Cancel(s.ctx, validator, id))

		rec, err := s.service.ClearingRecordFor(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(clearing.StateCancelled, rec.State)
		s.Equal(uint64(1000), rec.Amount)
		s.False(rec.SettledAt.IsZero())
	})
}

func (s *ServiceSuite) TestSettleGateOrder() {
	s.Run("pause is checked before the role", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.Require().NoError(s.access.Pause(s.ctx))

		err := s.service.Approve(s.ctx, holderA, id)
		s.True(dErrors.HasCode(err, dErrors.CodePaused))
	})

	s.Run("role is checked before the identifier lookup", func() {
		s.SetupTest()

		err := s.service.Approve(s.ctx, holderA, s.identifier(holderA, clearing.OperationTransfer, 42))
		s.True(dErrors.HasCode(err, dErrors.CodeAccountHasNoRole))
	})

	s.Run("a revoked validator can no longer settle", func() {
		s.SetupTest()
		id := s.createTransfer(1000)
		s.Require().NoError(s.access.RevokeRole(s.ctx, validator, accesscontrol.RoleClearingValidator))

		err := s.service.Approve(s.ctx, validator, id)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountHasNoRole))
	})
}
