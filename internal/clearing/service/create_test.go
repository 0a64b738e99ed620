package service

import (
	"io"
	"log/slog"
	"time"

	"go.uber.org/mock/gomock"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/events"
	"tranche/internal/events/eventsmock"
	"tranche/internal/hold"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

func (s *ServiceSuite) TestCreateTransfer() {
	s.Run("escrows the amount and assigns id 1", func() {
		s.SetupTest()

		id, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 1000, holderB)
		s.Require().NoError(err)
		s.Equal(uint64(1), id)

		s.Equal(uint64(2000), s.balanceOf(holderA))
		s.Equal(uint64(1000), s.clearedOf(holderA))
		s.Equal(uint64(0), s.balanceOf(holderB))

		evt := s.lastEvent()
		s.Equal(events.TypeClearingCreated, evt.Type)
		s.Equal(holderA, evt.TokenHolder)
		s.Equal(uint64(1), evt.ClearingID)
	})

	s.Run("ids are a per-key monotone sequence", func() {
		s.SetupTest()

		for want := uint64(1); want <= 3; want++ {
			id, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
			s.Require().NoError(err)
			s.Equal(want, id)
		}
		// A different operation type for the same holder counts from 1 again.
		id, err := s.service.CreateRedeem(s.ctx, holderA, s.request(), 100)
		s.Require().NoError(err)
		s.Equal(uint64(1), id)
	})

	s.Run("rejects more than the spendable balance", func() {
		s.SetupTest()

		_, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 3001, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
		s.Equal(uint64(3000), s.balanceOf(holderA))
		s.Equal(uint64(0), s.clearedOf(holderA))
	})

	s.Run("escrowed amounts are themselves unspendable", func() {
		s.SetupTest()

		_, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 2500, holderB)
		s.Require().NoError(err)
		_, err = s.service.CreateTransfer(s.ctx, holderA, s.request(), 501, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	})

	s.Run("rejects an expiration at or before now", func() {
		s.SetupTest()

		req := s.request()
		req.ExpirationAt = s.clock.Now()
		_, err := s.service.CreateTransfer(s.ctx, holderA, req, 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongExpirationTimestamp))

		req.ExpirationAt = s.clock.Now().Add(-time.Second)
		_, err = s.service.CreateTransfer(s.ctx, holderA, req, 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongExpirationTimestamp))
	})

	s.Run("rejects the zero address as token holder", func() {
		s.SetupTest()

		_, err := s.service.CreateTransfer(s.ctx, domain.ZeroAddress, s.request(), 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAddressNotAllowed))
	})

	s.Run("rejects while paused", func() {
		s.SetupTest()
		s.Require().NoError(s.access.Pause(s.ctx))

		_, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodePaused))
	})

	s.Run("rejects while deactivated", func() {
		s.SetupTest()
		s.Require().NoError(s.service.Deactivate(s.ctx))

		_, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeClearingNotActive))
	})

	s.Run("pause outranks the activation toggle", func() {
		s.SetupTest()
		s.Require().NoError(s.service.Deactivate(s.ctx))
		s.Require().NoError(s.access.Pause(s.ctx))

		_, err := s.service.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodePaused))
	})
}

func (s *ServiceSuite) TestCreatePartitionModes() {
	other := domain.PartitionID("0x0000000000000000000000000000000000000000000000000000000000000002")

	s.Run("single-partition mode rejects any other partition", func() {
		s.SetupTest()

		req := s.request()
		req.Partition = other
		_, err := s.service.CreateTransfer(s.ctx, holderA, req, 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodePartitionNotAllowedInSinglePartitionMode))
	})

	s.Run("multi-partition mode accepts issued partitions only", func() {
		s.setup(true)
		s.Require().NoError(s.balances.Issue(s.ctx, other, holderA, 500))

		req := s.request()
		req.Partition = other
		_, err := s.service.CreateTransfer(s.ctx, holderA, req, 100, holderB)
		s.NoError(err)

		req.Partition = domain.PartitionID("0x00000000000000000000000000000000000000000000000000000000000000ff")
		_, err = s.service.CreateTransfer(s.ctx, holderA, req, 100, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidPartition))
	})
}

func (s *ServiceSuite) TestCreateTransferFrom() {
	s.Run("consumes the allowance at creation time", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 1500))

		id, err := s.service.CreateTransferFrom(s.ctx, spender, s.requestFrom(holderA), 1000, holderB)
		s.Require().NoError(err)
		s.Equal(uint64(1), id)

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, spender)
		s.Require().NoError(err)
		s.Equal(uint64(500), remaining)
		s.Equal(uint64(2000), s.balanceOf(holderA))
	})

	s.Run("rejects beyond the allowance even with balance to spare", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 400))

		_, err := s.service.CreateTransferFrom(s.ctx, spender, s.requestFrom(holderA), 500, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientAllowance))

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, spender)
		s.Require().NoError(err)
		s.Equal(uint64(400), remaining)
	})

	s.Run("records the spender as allowance delegate", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 1000))

		id, err := s.service.CreateTransferFrom(s.ctx, spender, s.requestFrom(holderA), 1000, holderB)
		s.Require().NoError(err)

		tpType, tp, err := s.service.ThirdPartyOf(s.ctx, s.identifier(holderA, clearing.OperationTransfer, id))
		s.Require().NoError(err)
		s.Equal(clearing.ThirdPartyAllowanceDelegate, tpType)
		s.Equal(spender, tp)
	})
}

func (s *ServiceSuite) TestOperatorCreate() {
	s.Run("global operator may escrow the holder's balance", func() {
		s.SetupTest()
		s.Require().NoError(s.access.AuthorizeOperator(s.ctx, holderA, operator))

		id, err := s.service.OperatorCreateTransfer(s.ctx, operator, s.requestFrom(holderA), 700, holderB)
		s.Require().NoError(err)

		tpType, tp, err := s.service.ThirdPartyOf(s.ctx, s.identifier(holderA, clearing.OperationTransfer, id))
		s.Require().NoError(err)
		s.Equal(clearing.ThirdPartyOperatorDelegate, tpType)
		s.Equal(operator, tp)
	})

	s.Run("partition-scoped authorization works for that partition", func() {
		s.SetupTest()
		s.Require().NoError(s.access.AuthorizeOperatorByPartition(s.ctx, holderA, operator, domain.DefaultPartition))

		_, err := s.service.OperatorCreateRedeem(s.ctx, operator, s.requestFrom(holderA), 700)
		s.NoError(err)
	})

	s.Run("unauthorized operator is rejected without touching balances", func() {
		s.SetupTest()

		_, err := s.service.OperatorCreateTransfer(s.ctx, operator, s.requestFrom(holderA), 700, holderB)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(uint64(3000), s.balanceOf(holderA))
	})

	s.Run("operator authorization does not consume any allowance", func() {
		s.SetupTest()
		s.Require().NoError(s.access.AuthorizeOperator(s.ctx, holderA, operator))
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, operator, 50))

		_, err := s.service.OperatorCreateTransfer(s.ctx, operator, s.requestFrom(holderA), 700, holderB)
		s.Require().NoError(err)

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, operator)
		s.Require().NoError(err)
		s.Equal(uint64(50), remaining)
	})
}

func (s *ServiceSuite) TestControllerCreate() {
	s.Run("controller role may force a transfer", func() {
		s.SetupTest()
		controller := validator
		s.Require().NoError(s.access.GrantRole(s.ctx, controller, accesscontrol.RoleController))

		id, err := s.service.ControllerCreateTransfer(s.ctx, controller, s.requestFrom(holderA), 900, holderB)
		s.Require().NoError(err)

		tpType, _, err := s.service.ThirdPartyOf(s.ctx, s.identifier(holderA, clearing.OperationTransfer, id))
		s.Require().NoError(err)
		s.Equal(clearing.ThirdPartyController, tpType)
	})

	s.Run("without the role the forced path fails", func() {
		s.SetupTest()

		_, err := s.service.ControllerCreateRedeem(s.ctx, spender, s.requestFrom(holderA), 900)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountHasNoRole))
	})
}

func (s *ServiceSuite) TestCreateHold() {
	spec := func(s *ServiceSuite) hold.Spec {
		return hold.Spec{
			Amount:       600,
			ExpirationAt: s.clock.Now().Add(30 * 24 * time.Hour),
			Escrow:       escrower,
			To:           holderB,
		}
	}

	s.Run("escrows the hold amount pending approval", func() {
		s.SetupTest()

		id, err := s.service.CreateHold(s.ctx, holderA, s.request(), spec(s))
		s.Require().NoError(err)
		s.Equal(uint64(1), id)
		s.Equal(uint64(2400), s.balanceOf(holderA))
		// Not yet a hold: the escrow happens at approval.
		s.Equal(uint64(0), s.heldOf(holderA))
	})

	s.Run("rejects a zero escrow address", func() {
		s.SetupTest()

		bad := spec(s)
		bad.Escrow = domain.ZeroAddress
		_, err := s.service.CreateHold(s.ctx, holderA, s.request(), bad)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAddressNotAllowed))
	})

	s.Run("allowance-delegated hold consumes the allowance", func() {
		s.SetupTest()
		s.Require().NoError(s.allowances.Approve(s.ctx, holderA, spender, 600))

		_, err := s.service.CreateHoldFrom(s.ctx, spender, s.requestFrom(holderA), spec(s))
		s.Require().NoError(err)

		remaining, err := s.allowances.AllowanceOf(s.ctx, holderA, spender)
		s.Require().NoError(err)
		s.Equal(uint64(0), remaining)
	})

	s.Run("operator-delegated hold needs an authorization", func() {
		s.SetupTest()

		_, err := s.service.OperatorCreateHold(s.ctx, operator, s.requestFrom(holderA), spec(s))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		s.Require().NoError(s.access.AuthorizeOperator(s.ctx, holderA, operator))
		_, err = s.service.OperatorCreateHold(s.ctx, operator, s.requestFrom(holderA), spec(s))
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestCreatePublisherFailure() {
	newEngine := func(s *ServiceSuite) *Service {
		ctrl := gomock.NewController(s.T())
		pub := eventsmock.NewMockPublisher(ctrl)
		pub.EXPECT().Emit(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeInternal, "sink down")).
			AnyTimes()

		svc, err := New(Config{
			Ledger:     s.service.ledger,
			Balances:   s.balances,
			Allowances: s.allowances,
			Operators:  s.access,
			Roles:      s.access,
			Compliance: s.compliance,
			Pause:      s.access,
			Holds:      s.holds,
			Rebase:     s.register,
			Clock:      s.clock,
			Publisher:  pub,
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		s.Require().NoError(err)
		s.Require().NoError(svc.Activate(s.ctx))
		return svc
	}

	s.Run("a failing sink does not abort creation or leave partial state", func() {
		s.SetupTest()
		svc := newEngine(s)

		id, err := svc.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
		s.Require().NoError(err)
		s.Equal(uint64(1), id)

		s.Equal(uint64(2900), s.balanceOf(holderA))
		s.Equal(uint64(100), s.clearedOf(holderA))

		rec, err := svc.ClearingRecordFor(s.ctx, s.identifier(holderA, clearing.OperationTransfer, id))
		s.Require().NoError(err)
		s.Equal(clearing.StateCreated, rec.State)
	})

	s.Run("a failing sink does not abort settlement", func() {
		s.SetupTest()
		svc := newEngine(s)

		id, err := svc.CreateTransfer(s.ctx, holderA, s.request(), 100, holderB)
		s.Require().NoError(err)

		s.Require().NoError(svc.Approve(s.ctx, validator, s.identifier(holderA, clearing.OperationTransfer, id)))
		s.Equal(uint64(100), s.balanceOf(holderB))
		s.Equal(uint64(0), s.clearedOf(holderA))
	})
}
