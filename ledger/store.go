/*
store.go - Persistence interfaces for the ledger and its documents

PURPOSE:
  Defines the interface between the engine and the document store.
  Different implementations can use SQLite or in-memory storage; the
  engine's correctness depends only on the guarantees spelled out here.

GUARANTEES THE ENGINE RELIES ON:
  1. Single-document atomicity for every individual operation.
  2. WithTx: all-or-nothing multi-document batches. A transaction entry
     without its matching progress update (or vice versa) is a
     consistency defect, so the two are always written in one batch.
  3. Conditional writes: MarkSettled and ResolveRedemption fail instead
     of overwriting when the guard no longer holds (compare-and-set,
     not read-flag-then-write).
  4. Signed increments: ApplyProgressDelta mutates the aggregate
     server-side; callers never write back a balance they read earlier.

APPEND-ONLY CONTRACT:
  The transaction log has Append and Load only. No update, no delete.
  Corrections are new adjustment entries.

LISTENERS:
  WatchProgress delivers the latest-known aggregate after each mutation.
  Consumers must treat every callback as latest-state, never assume
  ordering relative to their own writes, and must cancel on teardown.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go: SQLite (WAL) for production
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// TRANSACTION STORE - Append-only audit log
// =============================================================================

type TransactionStore interface {
	// AppendTransaction persists one entry. Fails with ErrDuplicateDedupKey
	// if the entry carries a dedup key that already exists.
	AppendTransaction(ctx context.Context, tx GoldTransaction) error

	// LoadTransactions returns all entries for a user, ascending CreatedAt.
	LoadTransactions(ctx context.Context, userID UserID) ([]GoldTransaction, error)

	// DedupKeyExists checks whether a dedup key has been recorded.
	DedupKeyExists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// PROGRESS STORE - Live per-user aggregate
// =============================================================================

type ProgressStore interface {
	// GetProgress returns the aggregate, or ErrNotFound.
	GetProgress(ctx context.Context, userID UserID) (*ProgressRecord, error)

	// PutProgress creates or overwrites the aggregate. Used for lazy
	// creation and for the audited restore escape hatch.
	PutProgress(ctx context.Context, rec ProgressRecord) error

	// ApplyProgressDelta applies signed increments atomically and returns
	// the resulting record. ErrNotFound if the record does not exist.
	ApplyProgressDelta(ctx context.Context, userID UserID, delta ProgressDelta) (*ProgressRecord, error)

	// DeleteProgress removes the aggregate. Full user reset only.
	DeleteProgress(ctx context.Context, userID UserID) error

	// ListUserIDs returns every user with a progress record.
	ListUserIDs(ctx context.Context) ([]UserID, error)
}

// =============================================================================
// DAILY STORE - Settlement records with a conditional processed flag
// =============================================================================

type DailyStore interface {
	// GetDaily returns the record for the day, or ErrNotFound.
	GetDaily(ctx context.Context, userID UserID, day CalendarDay) (*DailyProgressRecord, error)

	// PutDaily creates or overwrites a record.
	PutDaily(ctx context.Context, rec DailyProgressRecord) error

	// MarkSettled flips SummaryProcessed false->true. Conditional write:
	// fails with ErrAlreadySettled if the flag is already set, and
	// ErrNotFound if no record exists.
	MarkSettled(ctx context.Context, userID UserID, day CalendarDay, at time.Time) error

	// ListDaily returns all records for a user, ascending by date.
	ListDaily(ctx context.Context, userID UserID) ([]DailyProgressRecord, error)
}

// =============================================================================
// REDEMPTION STORE
// =============================================================================

type RedemptionStore interface {
	PutRedemption(ctx context.Context, r Redemption) error

	// GetRedemption returns the redemption, or ErrNotFound.
	GetRedemption(ctx context.Context, id RedemptionID) (*Redemption, error)

	// ListRedemptions returns all redemptions for a user, ascending CreatedAt.
	ListRedemptions(ctx context.Context, userID UserID) ([]Redemption, error)

	// FindPendingRedemption returns the pending redemption for the pair,
	// or nil if none. Approved/rejected history does not count.
	FindPendingRedemption(ctx context.Context, userID UserID, rewardID RewardID) (*Redemption, error)

	// ResolveRedemption moves pending -> status. Conditional write: fails
	// with ErrNotPending if the redemption is already terminal.
	ResolveRedemption(ctx context.Context, id RedemptionID, status RedemptionStatus, approvedBy string, at time.Time) error
}

// =============================================================================
// TASK / REWARD / ACHIEVEMENT / PUNISHMENT STORES
// =============================================================================

type TaskStore interface {
	PutTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id TaskID) (*Task, error)
	ListTasks(ctx context.Context, userID UserID) ([]Task, error)

	// RecordTaskCompletion appends a completion timestamp.
	RecordTaskCompletion(ctx context.Context, id TaskID, at time.Time) error
}

type RewardStore interface {
	PutReward(ctx context.Context, r Reward) error
	GetReward(ctx context.Context, id RewardID) (*Reward, error)
	ListRewards(ctx context.Context) ([]Reward, error)
}

type AchievementStore interface {
	PutAchievement(ctx context.Context, a Achievement) error
	ListAchievements(ctx context.Context, userID UserID) ([]Achievement, error)
}

type PunishmentStore interface {
	// GetPunishment returns the user's punishment mode, or ErrNotFound.
	GetPunishment(ctx context.Context, userID UserID) (*PunishmentMode, error)
	PutPunishment(ctx context.Context, p PunishmentMode) error
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is the full document store the engine is built on.
type Store interface {
	TransactionStore
	ProgressStore
	DailyStore
	RedemptionStore
	TaskStore
	RewardStore
	AchievementStore
	PunishmentStore
}

// TxStore wraps Store with atomic batch support.
//
// Every multi-document mutation in the engine (ledger entry + progress
// delta, redemption create + debit, settlement entry + processed flag)
// runs inside WithTx. If fn returns an error nothing is applied.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// WatchStore is implemented by stores that support progress listeners.
type WatchStore interface {
	// WatchProgress subscribes to aggregate updates. The returned cancel
	// func must be called on teardown; the channel is closed after cancel.
	WatchProgress(userID UserID) (<-chan ProgressRecord, func())
}
