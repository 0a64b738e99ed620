// Package domainerrors defines the coded error type every service in this
// repo returns. Codes are categorical: one code per distinct precondition
// failure, so callers can branch on the violated rule without string matching.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a category of domain failure.
type Code string

const (
	// Gate failures shared by every ledger entry point.
	CodePaused             Code = "system_paused"
	CodeClearingNotActive  Code = "clearing_not_active"
	CodeAccountHasNoRole   Code = "account_has_no_role"
	CodeUnauthorized       Code = "unauthorized"
	CodeAccountIsBlocked   Code = "account_is_blocked"
	CodeInvalidKycStatus   Code = "invalid_kyc_status"

	// Partition validation.
	CodeInvalidPartition                         Code = "invalid_partition"
	CodePartitionNotAllowedInSinglePartitionMode Code = "partition_not_allowed_in_single_partition_mode"

	// Clearing state machine.
	CodeWrongExpirationTimestamp Code = "wrong_expiration_timestamp"
	CodeZeroAddressNotAllowed    Code = "zero_address_not_allowed"
	CodeInsufficientAllowance    Code = "insufficient_allowance"
	CodeInsufficientBalance      Code = "insufficient_balance"
	CodeWrongClearingID          Code = "wrong_clearing_id"
	CodeExpirationDateReached    Code = "expiration_date_reached"
	CodeExpirationDateNotReached Code = "expiration_date_not_reached"

	// Rebase register.
	CodeAdjustmentAlreadyScheduled Code = "adjustment_already_scheduled"

	// Generic transport/storage categories.
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal_error"
)

// Error is the concrete coded error. Services construct it with New; transport
// translates it with ToHTTPStatus.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// New creates a coded error with a human-readable message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error that preserves an underlying cause for errors.Is
// and logging. Use when translating infrastructure faults into domain terms.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, wrapped: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.wrapped
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so transport never leaks raw infrastructure messages.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP response status. Precondition failures
// are client errors; only genuinely unexpected faults map to 500.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeWrongExpirationTimestamp, CodeZeroAddressNotAllowed,
		CodeInvalidPartition, CodePartitionNotAllowedInSinglePartitionMode,
		CodeAdjustmentAlreadyScheduled:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeAccountHasNoRole, CodeAccountIsBlocked, CodeInvalidKycStatus, CodePaused,
		CodeClearingNotActive:
		return http.StatusForbidden
	case CodeNotFound, CodeWrongClearingID:
		return http.StatusNotFound
	case CodeInsufficientAllowance, CodeInsufficientBalance,
		CodeExpirationDateReached, CodeExpirationDateNotReached:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
