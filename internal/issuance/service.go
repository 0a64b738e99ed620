// Package issuance mints new units of the security into a partition. It is
// the only path that creates conserved value, so it carries its own role and
// compliance gates.
package issuance

import (
	"context"
	"errors"
	"log/slog"

	"tranche/internal/accesscontrol"
	"tranche/internal/events"
	"tranche/internal/platform/clock"
	"tranche/internal/platform/middleware"
	"tranche/internal/rebase"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

type BalanceLedger interface {
	Issue(ctx context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error
	TotalSupply(ctx context.Context, partition domain.PartitionID) (uint64, error)
}

type RoleRegistry interface {
	HasRole(ctx context.Context, account domain.Address, role accesscontrol.Role) (bool, error)
}

type ComplianceRegistry interface {
	IsEligible(ctx context.Context, account domain.Address) (bool, error)
	IsBlocked(ctx context.Context, account domain.Address) (bool, error)
}

type PauseFlag interface {
	IsPaused(ctx context.Context) (bool, error)
}

type Service struct {
	balances       BalanceLedger
	roles          RoleRegistry
	compliance     ComplianceRegistry
	pause          PauseFlag
	rebase         *rebase.Register
	clock          clock.Clock
	publisher      events.Publisher
	logger         *slog.Logger
	multiPartition bool
}

type Config struct {
	Balances       BalanceLedger
	Roles          RoleRegistry
	Compliance     ComplianceRegistry
	Pause          PauseFlag
	Rebase         *rebase.Register
	Clock          clock.Clock
	Publisher      events.Publisher
	Logger         *slog.Logger
	MultiPartition bool
}

func New(cfg Config) (*Service, error) {
	if cfg.Balances == nil || cfg.Roles == nil || cfg.Compliance == nil || cfg.Pause == nil ||
		cfg.Rebase == nil || cfg.Clock == nil || cfg.Publisher == nil {
		return nil, errors.New("issuance service: all collaborators are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		balances:       cfg.Balances,
		roles:          cfg.Roles,
		compliance:     cfg.Compliance,
		pause:          cfg.Pause,
		rebase:         cfg.Rebase,
		clock:          cfg.Clock,
		publisher:      cfg.Publisher,
		logger:         logger,
		multiPartition: cfg.MultiPartition,
	}, nil
}

// Issue mints `amount` observed units to the account. In multi-partition mode
// this is what makes a new partition valid; in single-partition mode only the
// default partition may be issued to.
func (s *Service) Issue(ctx context.Context, caller domain.Address, partition domain.PartitionID, account domain.Address, amount uint64) error {
	paused, err := s.pause.IsPaused(ctx)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "pause flag unavailable", err)
	}
	if paused {
		return dErrors.New(dErrors.CodePaused, "system is paused")
	}

	ok, err := s.roles.HasRole(ctx, caller, accesscontrol.RoleIssuer)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "role lookup failed", err)
	}
	if !ok {
		return dErrors.New(dErrors.CodeAccountHasNoRole, "caller lacks the issuer role")
	}

	if !s.multiPartition && partition != domain.DefaultPartition {
		return dErrors.New(dErrors.CodePartitionNotAllowedInSinglePartitionMode, "only the default partition is valid in single-partition mode")
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeZeroAddressNotAllowed, "cannot issue to the zero address")
	}

	blocked, err := s.compliance.IsBlocked(ctx, account)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "denylist lookup failed", err)
	}
	if blocked {
		return dErrors.New(dErrors.CodeAccountIsBlocked, "account is blocked")
	}
	eligible, err := s.compliance.IsEligible(ctx, account)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "eligibility lookup failed", err)
	}
	if !eligible {
		return dErrors.New(dErrors.CodeInvalidKycStatus, "account is not eligible")
	}

	now := s.clock.Now()
	baseAmount := s.rebase.ToBase(amount, now)
	if err := s.balances.Issue(ctx, partition, account, baseAmount); err != nil {
		return err
	}
	// The mint is committed; a sink failure is logged, not surfaced.
	if err := s.publisher.Emit(ctx, events.Event{
		Type:        events.TypeIssued,
		Partition:   partition,
		TokenHolder: account,
		Amount:      baseAmount,
		Actor:       caller,
		RequestID:   middleware.GetRequestID(ctx),
		Timestamp:   now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "event emission failed",
			"event_type", string(events.TypeIssued),
			"error", err.Error(),
		)
	}
	return nil
}
