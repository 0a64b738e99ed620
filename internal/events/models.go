// Package events captures structured clearing lifecycle events. The engine
// emits one event per successful state-machine operation; downstream consumers
// (Kafka, the in-process log) fan out from the Publisher interface.
package events

import (
	"context"
	"time"

	"tranche/internal/clearing"
	"tranche/pkg/domain"
)

// Type labels a clearing lifecycle event.
type Type string

const (
	TypeClearingCreated     Type = "clearing.created"
	TypeClearingApproved    Type = "clearing.approved"
	TypeClearingCancelled   Type = "clearing.cancelled"
	TypeClearingReclaimed   Type = "clearing.reclaimed"
	TypeAdjustmentScheduled Type = "rebase.adjustment_scheduled"
	TypeIssued              Type = "issuance.issued"
)

// Event is one append-only record of something the ledger did.
type Event struct {
	ID          string                  `json:"id"`
	Type        Type                    `json:"type"`
	Partition   domain.PartitionID      `json:"partition,omitempty"`
	TokenHolder domain.Address          `json:"token_holder,omitempty"`
	Operation   clearing.OperationType  `json:"operation,omitempty"`
	ClearingID  uint64                  `json:"clearing_id,omitempty"`
	Amount      uint64                  `json:"amount,omitempty"`
	Actor       domain.Address          `json:"actor,omitempty"`
	ThirdParty  clearing.ThirdPartyType `json:"third_party,omitempty"`
	RequestID   string                  `json:"request_id,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Publisher is implemented by every event sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
