// Package clearing defines the entities of the two-phase clearing protocol:
// an operation is first escrowed (amount removed from the spendable balance,
// recorded as in clearing), then settled exactly once as approved, cancelled,
// or reclaimed.
package clearing

import (
	"time"

	"tranche/internal/hold"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// OperationType determines the terminal effect a clearing has on approval.
type OperationType string

const (
	OperationTransfer     OperationType = "transfer"
	OperationRedeem       OperationType = "redeem"
	OperationHoldCreation OperationType = "hold_creation"
)

var validOperationTypes = map[OperationType]bool{
	OperationTransfer:     true,
	OperationRedeem:       true,
	OperationHoldCreation: true,
}

// ParseOperationType constructs an OperationType from external input.
func ParseOperationType(s string) (OperationType, error) {
	op := OperationType(s)
	if !validOperationTypes[op] {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown clearing operation type")
	}
	return op, nil
}

func (o OperationType) String() string {
	return string(o)
}

// ThirdPartyType records how a clearing was initiated relative to the token
// holder whose balance is escrowed.
type ThirdPartyType string

const (
	// ThirdPartyNone: the holder acted directly.
	ThirdPartyNone ThirdPartyType = "none"
	// ThirdPartyAllowanceDelegate: a spender consumed an allowance.
	ThirdPartyAllowanceDelegate ThirdPartyType = "allowance_delegate"
	// ThirdPartyOperatorDelegate: a partition or global operator authorization was used.
	ThirdPartyOperatorDelegate ThirdPartyType = "operator_delegate"
	// ThirdPartyProtected: a protected-partitions path initiated the clearing.
	ThirdPartyProtected ThirdPartyType = "protected"
	// ThirdPartyController: a controller forced the clearing.
	ThirdPartyController ThirdPartyType = "controller"
	// ThirdPartySystemClearing: an internal system path initiated the clearing.
	ThirdPartySystemClearing ThirdPartyType = "system_clearing"
)

// State is a clearing record's lifecycle state. Created transitions exactly
// once to one of the three terminal states; records are never deleted.
type State string

const (
	StateCreated   State = "created"
	StateApproved  State = "approved"
	StateCancelled State = "cancelled"
	StateReclaimed State = "reclaimed"
)

// Request carries the fields common to every clearing creation.
type Request struct {
	Partition    domain.PartitionID
	ExpirationAt time.Time
	Data         []byte
}

// RequestFrom extends Request for the delegated variants, naming the token
// holder whose balance is escrowed and the delegate's opaque payload.
type RequestFrom struct {
	Request
	From         domain.Address
	OperatorData []byte
}

// Identifier names one clearing record. The id is a per-(partition, holder,
// operation) sequence starting at 1; ids are never reused.
type Identifier struct {
	Partition   domain.PartitionID
	TokenHolder domain.Address
	Operation   OperationType
	ClearingID  uint64
}

// Record is the ledger entity for one in-flight or settled clearing
// operation. Amount is base units; reads apply the rebase multiplier.
type Record struct {
	Identifier
	Amount         uint64
	ExpirationAt   time.Time
	Destination    domain.Address
	Data           []byte
	OperatorData   []byte
	ThirdPartyType ThirdPartyType
	// ThirdParty is the delegate's address when ThirdPartyType is not
	// ThirdPartyNone; allowance restoration on cancel/reclaim goes to it.
	ThirdParty domain.Address
	// Hold is set only for hold-creation clearings.
	Hold      *hold.Spec
	State     State
	CreatedAt time.Time
	SettledAt time.Time
}

// Pending reports whether the record can still be settled.
func (r *Record) Pending() bool {
	return r.State == StateCreated
}
