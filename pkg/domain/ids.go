package domain

import (
	"encoding/hex"
	"strings"

	dErrors "tranche/pkg/domain-errors"
)

// Address is a 20-byte account identifier in 0x-prefixed hex form.
// Invariant: the value is lower-cased and exactly 42 characters long.
//
// Usage: construct via ParseAddress at trust boundaries to enforce the shape;
// direct casting bypasses validation.
type Address string

// ZeroAddress is the reserved all-zero account. It is never a valid token
// holder, spender, or escrow.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

const addressHexLen = 40

// ParseAddress constructs an Address from external input.
//
// Errors: returns CodeBadRequest when the value is not 20 bytes of hex; no
// other errors are expected. The zero address parses successfully so callers
// can reject it with the dedicated zero-address failure where it matters.
func ParseAddress(s string) (Address, error) {
	raw, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(raw) != addressHexLen {
		return "", dErrors.New(dErrors.CodeBadRequest, "address must be 20 bytes of 0x-prefixed hex")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "address contains non-hex characters")
	}
	return Address("0x" + raw), nil
}

// IsZero reports whether the address is unset or the reserved zero account.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) String() string {
	return string(a)
}

// PartitionID is a 32-byte sub-ledger identifier in 0x-prefixed hex form.
// Partitions segregate tranches of the same security within one account.
type PartitionID string

// DefaultPartition is the reserved partition. In single-partition deployments
// it is the only valid partition; in multi-partition deployments it is just
// another tranche.
const DefaultPartition PartitionID = "0x0000000000000000000000000000000000000000000000000000000000000001"

const partitionHexLen = 64

// ParsePartitionID constructs a PartitionID from external input.
//
// Errors: returns CodeInvalidPartition when the value is not 32 bytes of hex.
func ParsePartitionID(s string) (PartitionID, error) {
	raw, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(raw) != partitionHexLen {
		return "", dErrors.New(dErrors.CodeInvalidPartition, "partition must be 32 bytes of 0x-prefixed hex")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidPartition, "partition contains non-hex characters")
	}
	return PartitionID("0x" + raw), nil
}

func (p PartitionID) String() string {
	return string(p)
}
