package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Authorization
	ErrUnauthorized = errors.New("unauthorized")

	// Ledger errors
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientCapacity = errors.New("insufficient truck capacity")
	ErrInvalidAmount        = errors.New("invalid amount")

	// Request shape errors
	ErrInvalidInput = errors.New("invalid input")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when a record id is already taken. For
	// minted ids it means the id source is broken.
	ErrDuplicateID = errors.New("duplicate id")
)

// UnauthorizedReason says which ownership check rejected the caller.
type UnauthorizedReason string

const (
	NotCompany      UnauthorizedReason = "NOT_COMPANY"
	NotCompanyUser  UnauthorizedReason = "NOT_COMPANY_USER"
	NotCompanyTruck UnauthorizedReason = "NOT_COMPANY_TRUCK"
	NotOwner        UnauthorizedReason = "NOT_OWNER"
	NotRequester    UnauthorizedReason = "NOT_REQUESTER"
)

// UnauthorizedError is returned when the calling identity does not match
// the owner address an operation requires. It matches ErrUnauthorized.
type UnauthorizedError struct {
	Reason UnauthorizedReason
	Caller Address
}

func (e *UnauthorizedError) Error() string {
	if e.Caller == "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return fmt.Sprintf("unauthorized: %s (caller %s)", e.Reason, e.Caller)
}

// Is makes errors.Is(err, ErrUnauthorized) hold for every reason.
func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

func unauthorized(reason UnauthorizedReason, caller Address) error {
	return &UnauthorizedError{Reason: reason, Caller: caller}
}

// ReasonOf extracts the UnauthorizedReason from err, if any.
func ReasonOf(err error) (UnauthorizedReason, bool) {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	return "", false
}
