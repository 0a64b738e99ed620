package service

import (
	"tranche/internal/clearing"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

func (s *ServiceSuite) TestQueries() {
	s.Run("count includes settled clearings, cleared amount does not", func() {
		s.SetupTest()
		first := s.createTransfer(400)
		s.createTransfer(600)
		s.Require().NoError(s.service.Approve(s.ctx, validator, first))

		count, err := s.service.ClearingCountFor(s.ctx, domain.DefaultPartition, holderA, clearing.OperationTransfer)
		s.Require().NoError(err)
		s.Equal(uint64(2), count)
		s.Equal(uint64(600), s.clearedOf(holderA))
	})

	s.Run("per-partition cleared amounts stay segregated", func() {
		other := domain.PartitionID("0x0000000000000000000000000000000000000000000000000000000000000002")
		s.setup(true)
		s.Require().NoError(s.balances.Issue(s.ctx, other, holderA, 1000))

		s.createTransfer(300)
		req := s.request()
		req.Partition = other
		_, err := s.service.CreateTransfer(s.ctx, holderA, req, 200, holderB)
		s.Require().NoError(err)

		got, err := s.service.ClearedAmountForByPartition(s.ctx, domain.DefaultPartition, holderA)
		s.Require().NoError(err)
		s.Equal(uint64(300), got)
		got, err = s.service.ClearedAmountForByPartition(s.ctx, other, holderA)
		s.Require().NoError(err)
		s.Equal(uint64(200), got)
		s.Equal(uint64(500), s.clearedOf(holderA))
	})

	s.Run("id listing pages over the append-only sequence", func() {
		s.SetupTest()
		for i := 0; i < 5; i++ {
			s.createTransfer(100)
		}

		ids, err := s.service.ClearingsIDFor(s.ctx, domain.DefaultPartition, holderA, clearing.OperationTransfer, 1, 2)
		s.Require().NoError(err)
		s.Equal([]uint64{2, 3}, ids)

		ids, err = s.service.ClearingsIDFor(s.ctx, domain.DefaultPartition, holderA, clearing.OperationTransfer, 3, 0)
		s.Require().NoError(err)
		s.Equal([]uint64{4, 5}, ids)
	})

	s.Run("record lookup keeps the stored fields intact", func() {
		s.SetupTest()
		req := s.request()
		req.Data = []byte("settlement-ref-77")
		cid, err := s.service.CreateTransfer(s.ctx, holderA, req, 1000, holderB)
		s.Require().NoError(err)

		rec, err := s.service.ClearingRecordFor(s.ctx, s.identifier(holderA, clearing.OperationTransfer, cid))
		s.Require().NoError(err)
		s.Equal(clearing.StateCreated, rec.State)
		s.Equal(holderB, rec.Destination)
		s.Equal(req.ExpirationAt, rec.ExpirationAt)
		s.Equal([]byte("settlement-ref-77"), rec.Data)
		s.Equal(clearing.ThirdPartyNone, rec.ThirdPartyType)
	})

	s.Run("record lookup for an unknown identifier uses the catch-all", func() {
		s.SetupTest()

		_, err := s.service.ClearingRecordFor(s.ctx, s.identifier(holderA, clearing.OperationTransfer, 7))
		s.True(dErrors.HasCode(err, dErrors.CodeWrongClearingID))
	})

	s.Run("self-initiated clearings report no third party", func() {
		s.SetupTest()
		id := s.createTransfer(100)

		tpType, tp, err := s.service.ThirdPartyOf(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(clearing.ThirdPartyNone, tpType)
		s.True(tp.IsZero())
	})
}
