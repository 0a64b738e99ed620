package service

import (
	"time"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/events"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

func (s *ServiceSuite) grantCorporateActions(account domain.Address) {
	s.Require().NoError(s.access.GrantRole(s.ctx, account, accesscontrol.RoleCorporateActions))
}

func (s *ServiceSuite) TestScheduleAdjustment() {
	s.Run("requires the corporate actions role", func() {
		s.SetupTest()

		err := s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0.Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeAccountHasNoRole))
	})

	s.Run("a past execution time applies immediately", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)

		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0.Add(-time.Hour)))
		s.Equal(uint64(2), s.service.Multiplier(s.ctx))
		s.Equal(events.TypeAdjustmentScheduled, s.lastEvent().Type)
	})

	s.Run("a future execution time stays pending until its instant passes", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)

		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 3, 0, s.t0.Add(time.Hour)))
		s.Equal(uint64(1), s.service.Multiplier(s.ctx))

		s.clock.Advance(time.Hour)
		s.Equal(uint64(3), s.service.Multiplier(s.ctx))
	})

	s.Run("two adjustments at the same future instant are rejected", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)
		at := s.t0.Add(time.Hour)

		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, at))
		err := s.service.ScheduleAdjustment(s.ctx, holderA, 5, 0, at)
		s.True(dErrors.HasCode(err, dErrors.CodeAdjustmentAlreadyScheduled))
	})

	s.Run("rejected while paused", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)
		s.Require().NoError(s.access.Pause(s.ctx))

		err := s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0.Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodePaused))
	})
}

func (s *ServiceSuite) TestRebaseObservedAmounts() {
	s.Run("balances scale by the multiplier without any stored mutation", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)
		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0))

		s.Equal(uint64(6000), s.balanceOf(holderA))
	})

	s.Run("creation before and after an adjustment reads identically", func() {
		// A clearing created before a 2x adjustment and one created after,
		// both for the same observed amount, must report the same observed
		// amount once the adjustment lands.
		s.SetupTest()
		s.grantCorporateActions(holderA)

		before := s.createTransfer(1000)
		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0))
		afterID, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 1000, holderB)
		s.Require().NoError(err)

		recBefore, err := s.service.ClearingRecordFor(s.ctx, before)
		s.Require().NoError(err)
		recAfter, err := s.service.ClearingRecordFor(s.ctx, s.identifier(holderA, clearing.OperationTransfer, afterID))
		s.Require().NoError(err)

		s.Equal(uint64(2000), recBefore.Amount)
		s.Equal(uint64(1000), recAfter.Amount)
	})

	s.Run("a pending adjustment lands lazily through settlement", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)
		id := s.createTransfer(1000)
		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0.Add(time.Hour)))

		s.clock.Advance(2 * time.Hour)
		s.Require().NoError(s.service.Approve(s.ctx, validator, id))

		// 1000 base units escrowed pre-adjustment arrive as 2000 observed.
		s.Equal(uint64(2000), s.balanceOf(holderB))
	})

	s.Run("value is conserved across create, adjust, reclaim", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)

		req := s.request()
		req.ExpirationAt = s.t0.Add(time.Hour)
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1200, holderB)
		s.Require().NoError(err)

		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 3, 0, s.t0.Add(time.Minute)))
		s.clock.Advance(2 * time.Hour)
		s.Require().NoError(s.service.Reclaim(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, cid)))

		// The whole original balance, observed at the new multiplier.
		s.Equal(uint64(9000), s.balanceOf(holderA))
		s.Equal(uint64(0), s.clearedOf(holderA))
	})

	s.Run("chained adjustments fold in chronological order into one product", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)

		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0.Add(time.Minute)))
		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 5, 1, s.t0.Add(2*time.Minute)))

		s.clock.Advance(3 * time.Minute)
		s.Equal(uint64(10), s.service.Multiplier(s.ctx))
		s.Equal(uint64(30000), s.balanceOf(holderA))
	})

	s.Run("observed creation amounts are stored at base scale", func() {
		s.SetupTest()
		s.grantCorporateActions(holderA)
		s.Require().NoError(s.service.ScheduleAdjustment(s.ctx, holderA, 2, 0, s.t0))

		// 2000 observed units cost 1000 base units at the 2x multiplier.
		id, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 2000, holderB)
		s.Require().NoError(err)
		s.Require().NoError(s.service.Approve(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, id)))

		s.Equal(uint64(2000), s.balanceOf(holderB))
		s.Equal(uint64(4000), s.balanceOf(holderA))
	})
}
