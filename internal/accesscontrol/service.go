// Package accesscontrol holds the role registry, operator authorizations, and
// the global pause flag. The clearing engine consults it on every entry point
// but never mutates it; administration goes through the admin handler.
package accesscontrol

import (
	"context"
	"sync"

	"tranche/pkg/domain"
)

// Role names a permission checked by the engine.
type Role string

const (
	// RoleClearingValidator may approve, cancel, and reclaim pending clearings.
	RoleClearingValidator Role = "clearing_validator"
	// RoleIssuer may mint new units into a partition.
	RoleIssuer Role = "issuer"
	// RolePauser may pause and unpause the whole system.
	RolePauser Role = "pauser"
	// RoleController may force clearings on behalf of any holder.
	RoleController Role = "controller"
	// RoleCorporateActions may schedule balance adjustments.
	RoleCorporateActions Role = "corporate_actions"
)

type roleKey struct {
	account domain.Address
	role    Role
}

type operatorKey struct {
	owner    domain.Address
	operator domain.Address
}

type partitionOperatorKey struct {
	owner     domain.Address
	operator  domain.Address
	partition domain.PartitionID
}

// Service is the in-memory registry backing all three concerns. Reads vastly
// outnumber writes, hence the RWMutex.
type Service struct {
	mu                 sync.RWMutex
	roles              map[roleKey]bool
	operators          map[operatorKey]bool
	partitionOperators map[partitionOperatorKey]bool
	paused             bool
}

func NewService() *Service {
	return &Service{
		roles:              make(map[roleKey]bool),
		operators:          make(map[operatorKey]bool),
		partitionOperators: make(map[partitionOperatorKey]bool),
	}
}

// GrantRole assigns a role to an account.
func (s *Service) GrantRole(_ context.Context, account domain.Address, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[roleKey{account, role}] = true
	return nil
}

// RevokeRole removes a role from an account.
func (s *Service) RevokeRole(_ context.Context, account domain.Address, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleKey{account, role})
	return nil
}

// HasRole reports whether the account holds the role.
func (s *Service) HasRole(_ context.Context, account domain.Address, role Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[roleKey{account, role}], nil
}

// AuthorizeOperator lets operator act for owner across all partitions.
func (s *Service) AuthorizeOperator(_ context.Context, owner, operator domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators[operatorKey{owner, operator}] = true
	return nil
}

// RevokeOperator removes a global operator authorization.
func (s *Service) RevokeOperator(_ context.Context, owner, operator domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.operators, operatorKey{owner, operator})
	return nil
}

// AuthorizeOperatorByPartition scopes an operator authorization to one partition.
func (s *Service) AuthorizeOperatorByPartition(_ context.Context, owner, operator domain.Address, partition domain.PartitionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitionOperators[partitionOperatorKey{owner, operator, partition}] = true
	return nil
}

// RevokeOperatorByPartition removes a partition-scoped authorization.
func (s *Service) RevokeOperatorByPartition(_ context.Context, owner, operator domain.Address, partition domain.PartitionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitionOperators, partitionOperatorKey{owner, operator, partition})
	return nil
}

// IsAuthorized reports whether operator may act for owner in the partition,
// either through a global or a partition-scoped authorization.
func (s *Service) IsAuthorized(_ context.Context, owner, operator domain.Address, partition domain.PartitionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.operators[operatorKey{owner, operator}] {
		return true, nil
	}
	return s.partitionOperators[partitionOperatorKey{owner, operator, partition}], nil
}

// Pause halts all balance-mutating entry points.
func (s *Service) Pause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Unpause lifts the halt.
func (s *Service) Unpause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// IsPaused reports the pause flag.
func (s *Service) IsPaused(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused, nil
}
