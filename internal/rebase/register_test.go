package rebase

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "tranche/pkg/domain-errors"
)

type RegisterSuite struct {
	suite.Suite
	register *Register
	t0       time.Time
}

func TestRegisterSuite(t *testing.T) {
	suite.Run(t, new(RegisterSuite))
}

func (s *RegisterSuite) SetupTest() {
	s.register = NewRegister()
	s.t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *RegisterSuite) TestImmediateAdjustmentFoldsSynchronously() {
	s.Run("execution time in the past", func() {
		err := s.register.ScheduleAdjustment(2, 0, s.t0.Add(-time.Hour), s.t0)
		s.NoError(err)
		s.Equal(uint64(2), s.register.Factor(s.t0))
		s.Zero(s.register.PendingCount(s.t0))
	})

	s.Run("execution time equal to now", func() {
		err := s.register.ScheduleAdjustment(3, 0, s.t0, s.t0)
		s.NoError(err)
		s.Equal(uint64(6), s.register.Factor(s.t0))
	})
}

func (s *RegisterSuite) TestScheduledAdjustmentIsLazy() {
	executeAt := s.t0.Add(time.Hour)
	s.Require().NoError(s.register.ScheduleAdjustment(2, 0, executeAt, s.t0))

	s.Equal(uint64(1), s.register.Factor(s.t0), "not yet due")
	s.Equal(1, s.register.PendingCount(s.t0))

	s.Equal(uint64(1), s.register.Factor(executeAt.Add(-time.Second)), "still strictly before")
	s.Equal(uint64(2), s.register.Factor(executeAt), "due at execution time")
	s.Zero(s.register.PendingCount(executeAt))

	// Folding is idempotent.
	s.Equal(uint64(2), s.register.Factor(executeAt.Add(time.Hour)))
}

func (s *RegisterSuite) TestMultipleAdjustmentsFoldChronologically() {
	// Scheduled out of order; the product must be the same regardless.
	s.Require().NoError(s.register.ScheduleAdjustment(5, 0, s.t0.Add(2*time.Hour), s.t0))
	s.Require().NoError(s.register.ScheduleAdjustment(3, 0, s.t0.Add(time.Hour), s.t0))

	s.Equal(uint64(3), s.register.Factor(s.t0.Add(time.Hour)))
	s.Equal(uint64(15), s.register.Factor(s.t0.Add(3*time.Hour)))
}

func (s *RegisterSuite) TestDuplicateTimestampRejected() {
	executeAt := s.t0.Add(time.Hour)
	s.Require().NoError(s.register.ScheduleAdjustment(2, 0, executeAt, s.t0))

	err := s.register.ScheduleAdjustment(4, 0, executeAt, s.t0)
	s.True(dErrors.HasCode(err, dErrors.CodeAdjustmentAlreadyScheduled))

	// A different timestamp is fine.
	s.NoError(s.register.ScheduleAdjustment(4, 0, executeAt.Add(time.Second), s.t0))
}

func (s *RegisterSuite) TestZeroFactorRejected() {
	err := s.register.ScheduleAdjustment(0, 0, s.t0, s.t0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *RegisterSuite) TestOverflowRejected() {
	s.Require().NoError(s.register.ScheduleAdjustment(1<<32, 0, s.t0, s.t0))
	err := s.register.ScheduleAdjustment(1<<33, 0, s.t0.Add(time.Hour), s.t0)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *RegisterSuite) TestDecimalsAccumulateWithoutDividingFactor() {
	s.Require().NoError(s.register.ScheduleAdjustment(2, 6, s.t0, s.t0))
	s.Equal(uint64(2), s.register.Factor(s.t0), "factor applied raw")
	s.Equal(uint32(6), s.register.Decimals(s.t0))

	s.Require().NoError(s.register.ScheduleAdjustment(3, 2, s.t0, s.t0))
	s.Equal(uint32(8), s.register.Decimals(s.t0))
}

func (s *RegisterSuite) TestToObservedSaturatesInsteadOfWrapping() {
	s.Require().NoError(s.register.ScheduleAdjustment(1<<32, 0, s.t0, s.t0))

	// A balance large enough that factor*amount exceeds 64 bits.
	s.Equal(uint64(math.MaxUint64), s.register.ToObserved(1<<40, s.t0))

	// In range, the product is exact.
	s.Equal(uint64(1)<<52, s.register.ToObserved(1<<20, s.t0))
}

func (s *RegisterSuite) TestConversionRoundTrip() {
	s.Require().NoError(s.register.ScheduleAdjustment(2, 0, s.t0, s.t0))

	s.Equal(uint64(500), s.register.ToBase(1000, s.t0))
	s.Equal(uint64(1000), s.register.ToObserved(500, s.t0))

	// Non-divisible amounts lose less than one multiplier's worth.
	s.Equal(uint64(500), s.register.ToBase(1001, s.t0))
}
