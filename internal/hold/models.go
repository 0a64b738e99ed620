package hold

import (
	"time"

	"tranche/pkg/domain"
)

// Status tracks a hold's lifecycle. Holds are created by the clearing engine
// as the terminal effect of an approved hold-creation clearing.
type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
)

// Spec describes the hold a hold-creation clearing will create on approval.
// Amount is base units once inside the engine.
type Spec struct {
	Amount       uint64
	ExpirationAt time.Time
	Escrow       domain.Address
	To           domain.Address
	Data         []byte
}

// Hold is a time-bound lock on a holder's funds, released to the escrow's
// discretion. Identified by (partition, tokenHolder, id).
type Hold struct {
	ID           uint64
	Partition    domain.PartitionID
	TokenHolder  domain.Address
	Amount       uint64
	ExpirationAt time.Time
	Escrow       domain.Address
	To           domain.Address
	Data         []byte
	Status       Status
	CreatedAt    time.Time
}
