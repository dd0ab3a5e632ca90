/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors  - Caller mistakes caught before any write
  2. Concurrency errors - Settlement/redemption races lost to another writer
  3. Store errors       - Persistence-level failures, propagated verbatim

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) {
      // surface to caller, nothing was written
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for caller mistakes caught before any write:
	// non-positive credit amounts, negative XP grants outside admin paths.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when a debit exceeds AvailableGold.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySettled is returned when the normal settlement path targets
	// a day whose SummaryProcessed flag is already true. Only the manual
	// reprocess escape hatch goes further.
	ErrAlreadySettled = errors.New("day already settled")

	// ErrNotPending is returned when resolving a redemption that is already
	// in a terminal state. No writes are performed.
	ErrNotPending = errors.New("redemption not pending")

	// ErrPendingRedemptionExists is returned when a second pending
	// redemption for the same (user, reward) pair is requested.
	ErrPendingRedemptionExists = errors.New("pending redemption already exists")

	// ErrLevelTooLow is returned when a reward's required level exceeds the
	// user's current level.
	ErrLevelTooLow = errors.New("level too low for reward")

	// ErrDailyTaskGate is returned when the minimum-daily-tasks redemption
	// gate is not satisfied.
	ErrDailyTaskGate = errors.New("daily task minimum not met")

	// ErrDuplicateDedupKey is returned when a transaction with the same
	// dedup key already exists. Expected behavior for retries and re-runs.
	ErrDuplicateDedupKey = errors.New("duplicate dedup key")

	// ErrNotFound is returned when a referenced document does not exist.
	// Progress records are created lazily; redemptions fail hard.
	ErrNotFound = errors.New("not found")

	// ErrPunishmentActive is returned when activating punishment mode while
	// one is already active.
	ErrPunishmentActive = errors.New("punishment mode already active")

	// ErrRateLimited is returned when a punishment task completion arrives
	// inside the 30-minute window.
	ErrRateLimited = errors.New("rate limited")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports a debit that exceeds the available balance.
type InsufficientFundsError struct {
	UserID    UserID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %v, requested %v",
		e.Available.Value, e.Requested.Value)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// AlreadySettledError reports a refused settlement of a processed day.
type AlreadySettledError struct {
	UserID UserID
	Day    CalendarDay
}

func (e *AlreadySettledError) Error() string {
	return fmt.Sprintf("day %s already settled for %s", e.Day, e.UserID)
}

func (e *AlreadySettledError) Unwrap() error { return ErrAlreadySettled }

// NotPendingError reports resolution of an already-terminal redemption.
type NotPendingError struct {
	RedemptionID RedemptionID
	Status       RedemptionStatus
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("redemption %s is %s, not pending", e.RedemptionID, e.Status)
}

func (e *NotPendingError) Unwrap() error { return ErrNotPending }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// or a refused state transition, as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrPendingRedemptionExists) ||
		errors.Is(err, ErrLevelTooLow) ||
		errors.Is(err, ErrDailyTaskGate) ||
		errors.Is(err, ErrDuplicateDedupKey) ||
		errors.Is(err, ErrPunishmentActive) ||
		errors.Is(err, ErrRateLimited)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
