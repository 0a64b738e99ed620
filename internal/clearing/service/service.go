// Package service runs the clearing state machine. Every entry point executes
// fully serialized: gates are checked read-only first, and no mutation happens
// until every precondition has passed, so an operation either applies all of
// its effects or none.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tranche/internal/accesscontrol"
	"tranche/internal/clearing"
	"tranche/internal/hold"
	"tranche/internal/platform/clock"
	"tranche/internal/rebase"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"

	"tranche/internal/events"
)

// BalanceLedger is the partition balance collaborator. All amounts are base
// units.
type BalanceLedger interface {
	Debit(ctx context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error
	Credit(ctx context.Context, partition domain.PartitionID, account domain.Address, amount uint64) error
	BalanceOf(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
	TotalSupplyBurn(ctx context.Context, partition domain.PartitionID, amount uint64) error
	PartitionExists(ctx context.Context, partition domain.PartitionID) (bool, error)
}

// AllowanceLedger is the ERC20-style allowance collaborator.
type AllowanceLedger interface {
	Consume(ctx context.Context, owner, spender domain.Address, amount uint64) error
	Restore(ctx context.Context, owner, spender domain.Address, amount uint64) error
	AllowanceOf(ctx context.Context, owner, spender domain.Address) (uint64, error)
}

// OperatorRegistry answers partition-scoped and global operator authorizations.
type OperatorRegistry interface {
	IsAuthorized(ctx context.Context, owner, operator domain.Address, partition domain.PartitionID) (bool, error)
}

// RoleRegistry answers role membership questions.
type RoleRegistry interface {
	HasRole(ctx context.Context, account domain.Address, role accesscontrol.Role) (bool, error)
}

// ComplianceRegistry answers holder-status questions. Checked at approval
// time, never cached from creation time.
type ComplianceRegistry interface {
	IsEligible(ctx context.Context, account domain.Address) (bool, error)
	IsBlocked(ctx context.Context, account domain.Address) (bool, error)
}

// PauseFlag is the system-wide halt switch.
type PauseFlag interface {
	IsPaused(ctx context.Context) (bool, error)
}

// Ledger is the clearing record store.
type Ledger interface {
	Append(ctx context.Context, rec *clearing.Record) (uint64, error)
	Pending(ctx context.Context, id clearing.Identifier) (*clearing.Record, error)
	Get(ctx context.Context, id clearing.Identifier) (*clearing.Record, error)
	Settle(ctx context.Context, id clearing.Identifier, state clearing.State, settledAt time.Time) (*clearing.Record, error)
	Count(ctx context.Context, partition domain.PartitionID, holder domain.Address, operation clearing.OperationType) (uint64, error)
	IDs(ctx context.Context, partition domain.PartitionID, holder domain.Address, operation clearing.OperationType, offset, limit uint64) ([]uint64, error)
	ClearedAmount(ctx context.Context, account domain.Address) (uint64, error)
	ClearedAmountByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
}

// HoldSubsystem receives the terminal effect of approved hold-creation
// clearings.
type HoldSubsystem interface {
	CreateHold(ctx context.Context, partition domain.PartitionID, holder domain.Address, spec hold.Spec, now time.Time) (uint64, error)
	HeldAmount(ctx context.Context, account domain.Address) (uint64, error)
	HeldAmountByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
}

// Config wires the engine's collaborators.
type Config struct {
	Ledger         Ledger
	Balances       BalanceLedger
	Allowances     AllowanceLedger
	Operators      OperatorRegistry
	Roles          RoleRegistry
	Compliance     ComplianceRegistry
	Pause          PauseFlag
	Holds          HoldSubsystem
	Rebase         *rebase.Register
	Clock          clock.Clock
	Publisher      events.Publisher
	Logger         *slog.Logger
	MultiPartition bool
}

// Service is the clearing engine. One instance owns the ledger; all mutation
// goes through its entry points.
type Service struct {
	mu sync.Mutex

	ledger     Ledger
	balances   BalanceLedger
	allowances AllowanceLedger
	operators  OperatorRegistry
	roles      RoleRegistry
	compliance ComplianceRegistry
	pause      PauseFlag
	holds      HoldSubsystem
	rebase     *rebase.Register
	clock      clock.Clock
	publisher  events.Publisher
	logger     *slog.Logger

	multiPartition bool
	active         bool
}

func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New("clearing ledger is required")
	case cfg.Balances == nil:
		return nil, errors.New("balance ledger is required")
	case cfg.Allowances == nil:
		return nil, errors.New("allowance ledger is required")
	case cfg.Operators == nil:
		return nil, errors.New("operator registry is required")
	case cfg.Roles == nil:
		return nil, errors.New("role registry is required")
	case cfg.Compliance == nil:
		return nil, errors.New("compliance registry is required")
	case cfg.Pause == nil:
		return nil, errors.New("pause flag is required")
	case cfg.Holds == nil:
		return nil, errors.New("hold subsystem is required")
	case cfg.Rebase == nil:
		return nil, errors.New("rebase register is required")
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	case cfg.Publisher == nil:
		return nil, errors.New("event publisher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:         cfg.Ledger,
		balances:       cfg.Balances,
		allowances:     cfg.Allowances,
		operators:      cfg.Operators,
		roles:          cfg.Roles,
		compliance:     cfg.Compliance,
		pause:          cfg.Pause,
		holds:          cfg.Holds,
		rebase:         cfg.Rebase,
		clock:          cfg.Clock,
		publisher:      cfg.Publisher,
		logger:         logger,
		multiPartition: cfg.MultiPartition,
	}, nil
}

// Activate enables the clearing subsystem for this deployment.
func (s *Service) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	return nil
}

// Deactivate disables creation and settlement of clearings.
func (s *Service) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

// IsActive reports the clearing subsystem toggle.
func (s *Service) IsActive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ScheduleAdjustment queues (or immediately applies) a global balance
// adjustment. Requires the corporate-actions role.
func (s *Service) ScheduleAdjustment(ctx context.Context, caller domain.Address, factor uint64, decimals uint8, executeAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNotPaused(ctx); err != nil {
		return err
	}
	if err := s.checkRole(ctx, caller, accesscontrol.RoleCorporateActions); err != nil {
		return err
	}
	now := s.clock.Now()
	if err := s.rebase.ScheduleAdjustment(factor, decimals, executeAt, now); err != nil {
		return err
	}
	s.emit(ctx, events.Event{
		Type:      events.TypeAdjustmentScheduled,
		Actor:     caller,
		Amount:    factor,
		Timestamp: now,
	})
	return nil
}

// emit publishes to the configured sinks after an operation's effects have
// been applied. A sink failure never unwinds a committed operation: the ledger
// is authoritative, so the failure is logged and the operation still succeeds.
func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "event emission failed",
			"event_type", string(event.Type),
			"clearing_id", event.ClearingID,
			"error", err.Error(),
		)
	}
}

// gate helpers shared by the state-machine entry points

func (s *Service) checkNotPaused(ctx context.Context) error {
	paused, err := s.pause.IsPaused(ctx)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "pause flag unavailable", err)
	}
	if paused {
		return dErrors.New(dErrors.CodePaused, "system is paused")
	}
	return nil
}

func (s *Service) checkActive() error {
	if !s.active {
		return dErrors.New(dErrors.CodeClearingNotActive, "clearing subsystem is not activated")
	}
	return nil
}

func (s *Service) checkPartition(ctx context.Context, partition domain.PartitionID) error {
	if !s.multiPartition {
		if partition != domain.DefaultPartition {
			return dErrors.New(dErrors.CodePartitionNotAllowedInSinglePartitionMode, "only the default partition is valid in single-partition mode")
		}
		return nil
	}
	exists, err := s.balances.PartitionExists(ctx, partition)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "partition lookup failed", err)
	}
	if !exists {
		return dErrors.New(dErrors.CodeInvalidPartition, "partition has never been issued to")
	}
	return nil
}

func (s *Service) checkRole(ctx context.Context, account domain.Address, role accesscontrol.Role) error {
	ok, err := s.roles.HasRole(ctx, account, role)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "role lookup failed", err)
	}
	if !ok {
		return dErrors.New(dErrors.CodeAccountHasNoRole, "caller lacks the "+string(role)+" role")
	}
	return nil
}

// checkCompliance verifies every non-zero account in order: denylist first,
// then eligibility.
func (s *Service) checkCompliance(ctx context.Context, accounts ...domain.Address) error {
	for _, account := range accounts {
		if account.IsZero() {
			continue
		}
		blocked, err := s.compliance.IsBlocked(ctx, account)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "denylist lookup failed", err)
		}
		if blocked {
			return dErrors.New(dErrors.CodeAccountIsBlocked, "account "+account.String()+" is blocked")
		}
	}
	for _, account := range accounts {
		if account.IsZero() {
			continue
		}
		eligible, err := s.compliance.IsEligible(ctx, account)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "eligibility lookup failed", err)
		}
		if !eligible {
			return dErrors.New(dErrors.CodeInvalidKycStatus, "account "+account.String()+" is not eligible")
		}
	}
	return nil
}

// wrongClearingID translates storage misses into the engine's deliberate
// catch-all: callers never learn which identifier field was wrong.
func wrongClearingID(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrTerminal) {
		return dErrors.New(dErrors.CodeWrongClearingID, "identifier does not name a pending clearing")
	}
	return dErrors.Wrap(dErrors.CodeInternal, "clearing ledger fault", err)
}
