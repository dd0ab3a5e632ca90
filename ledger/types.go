/*
Package ledger provides the core Gold/XP accounting engine.

PURPOSE:
  This package contains the types and algorithms for tracking a user's
  spendable currency (Gold) and experience (XP): the append-only
  transaction ledger, the live progress aggregate, and the store
  interfaces everything else is built on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (gold or xp), integer-valued
  - GoldTransaction: An immutable ledger entry with before/after balances
  - ProgressRecord: The live per-user aggregate (balance, totals, level)
  - ProgressDelta: Signed increments applied atomically to the aggregate

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Chained balances: Every entry carries BalanceBefore/BalanceAfter,
     so the full history can be replayed and audited
  4. Deltas over read-modify-write: The aggregate is mutated via signed
     increments applied by the store, never by writing a value read earlier

SEE ALSO:
  - ledger.go: Recording transactions paired with aggregate updates
  - store.go: Persistence interfaces
  - calendar.go: Brazil-local calendar days
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (gold or xp)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitGold Unit = "gold"
	UnitXP   Unit = "xp"
)

// Gold returns a gold amount. Gold is integer-valued; decimal keeps the
// arithmetic exact and the unit explicit.
func Gold(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: UnitGold}
}

// XP returns an experience amount.
func XP(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: UnitXP}
}

func ZeroGold() Amount { return Gold(0) }
func ZeroXP() Amount   { return XP(0) }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) Abs() Amount               { return Amount{Value: a.Value.Abs(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Int64() int64              { return a.Value.IntPart() }
func (a Amount) String() string            { return a.Value.String() }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Floor clamps the amount to a minimum of zero.
func (a Amount) Floor() Amount {
	if a.IsNegative() {
		return Amount{Value: decimal.Zero, Unit: a.Unit}
	}
	return a
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string
type TaskID string
type RewardID string
type RedemptionID string

// =============================================================================
// GOLD TRANSACTION - Immutable, chained audit entry
// =============================================================================

type TransactionType string

const (
	TxEarned     TransactionType = "earned"     // Credit from tasks, quizzes, achievements
	TxSpent      TransactionType = "spent"      // Debit from a reward redemption
	TxBonus      TransactionType = "bonus"      // Daily all-tasks bonus
	TxPenalty    TransactionType = "penalty"    // Daily incomplete-tasks penalty
	TxRefund     TransactionType = "refund"     // Redemption rejected, gold returned
	TxAdjustment TransactionType = "adjustment" // Manual admin correction or reversal
)

type TransactionSource string

const (
	SourceTaskCompletion   TransactionSource = "task_completion"
	SourceRewardRedemption TransactionSource = "reward_redemption"
	SourceDailyBonus       TransactionSource = "daily_bonus"
	SourceDailyPenalty     TransactionSource = "daily_penalty"
	SourceAdminAdjustment  TransactionSource = "admin_adjustment"
	SourceBirthday         TransactionSource = "birthday"
	SourceQuiz             TransactionSource = "quiz"
	SourceSurpriseMission  TransactionSource = "surprise_mission"
	SourceAchievement      TransactionSource = "achievement"
	SourceRedemptionRefund TransactionSource = "redemption_refund"
)

// TypeForSource maps a source to its natural transaction type.
func TypeForSource(source TransactionSource, amount Amount) TransactionType {
	switch source {
	case SourceDailyBonus:
		return TxBonus
	case SourceDailyPenalty:
		return TxPenalty
	case SourceRewardRedemption:
		return TxSpent
	case SourceRedemptionRefund:
		return TxRefund
	case SourceAdminAdjustment:
		return TxAdjustment
	default:
		if amount.IsNegative() {
			return TxSpent
		}
		return TxEarned
	}
}

// GoldTransaction is one immutable entry in the per-user audit log.
//
// INVARIANT: BalanceAfter == BalanceBefore + Amount.
// INVARIANT: Ordered by CreatedAt, each entry's BalanceBefore equals the
// previous entry's BalanceAfter. The chain may drift from the live
// aggregate under racing writers; recovery reports (never repairs) that.
type GoldTransaction struct {
	ID           TransactionID
	UserID       UserID
	Amount       Amount // signed: positive=credit, negative=debit
	Type         TransactionType
	Source       TransactionSource
	Description  string
	RelatedID    string
	RelatedTitle string
	Metadata     map[string]string

	// DedupKey is a content-addressed idempotency key. Empty means none.
	// Backfill and daily settlement stamp one so re-runs are no-ops.
	DedupKey string

	BalanceBefore Amount
	BalanceAfter  Amount
	CreatedAt     time.Time
}

// =============================================================================
// PROGRESS RECORD - Live per-user aggregate
// =============================================================================

// ProgressRecord is the single mutable document per user.
//
// INVARIANT: AvailableGold == TotalGoldEarned - TotalGoldSpent. Drift is
// detected by recovery, never silently trusted.
// INVARIANT: Level == LevelForXP(TotalXP). A mismatch is a health-check
// finding, not a runtime guard.
type ProgressRecord struct {
	UserID              UserID
	Level               int
	TotalXP             Amount
	AvailableGold       Amount
	TotalGoldEarned     Amount
	TotalGoldSpent      Amount
	Streak              int
	LongestStreak       int
	TotalTasksCompleted int
	RewardsRedeemed     int
	LastActivityDate    CalendarDay
	UpdatedAt           time.Time

	// Restoration audit trail. Set only by recovery.Restore.
	RestoredAt        *time.Time
	RestoredBy        string
	RestorationReason string
	PreviousXP        Amount
	PreviousLevel     int
	PreviousGold      Amount
}

// NewProgressRecord returns the all-zero record created on first login.
func NewProgressRecord(userID UserID) ProgressRecord {
	return ProgressRecord{
		UserID:          userID,
		Level:           1,
		TotalXP:         ZeroXP(),
		AvailableGold:   ZeroGold(),
		TotalGoldEarned: ZeroGold(),
		TotalGoldSpent:  ZeroGold(),
		PreviousXP:      ZeroXP(),
		PreviousGold:    ZeroGold(),
		UpdatedAt:       time.Now(),
	}
}

// ProgressDelta is a set of signed increments applied atomically by the
// store. Fields left zero are untouched. Level is always recomputed from
// the resulting TotalXP.
type ProgressDelta struct {
	AvailableGold       Amount // signed
	TotalGoldEarned     Amount // signed
	TotalGoldSpent      Amount // signed
	TotalXP             Amount // signed
	TotalTasksCompleted int
	RewardsRedeemed     int
	Streak              *int        // absolute value when set
	LastActivityDate    CalendarDay // set when non-zero
}

// Apply mutates the record in place. Both store implementations use this
// so clamping and level derivation stay in one place.
//
// Floors: AvailableGold, TotalGoldSpent and TotalXP never go negative.
func (r *ProgressRecord) Apply(delta ProgressDelta) {
	if !delta.AvailableGold.IsZero() {
		r.AvailableGold = r.AvailableGold.Add(delta.AvailableGold).Floor()
	}
	if !delta.TotalGoldEarned.IsZero() {
		r.TotalGoldEarned = r.TotalGoldEarned.Add(delta.TotalGoldEarned).Floor()
	}
	if !delta.TotalGoldSpent.IsZero() {
		r.TotalGoldSpent = r.TotalGoldSpent.Add(delta.TotalGoldSpent).Floor()
	}
	if !delta.TotalXP.IsZero() {
		r.TotalXP = r.TotalXP.Add(delta.TotalXP).Floor()
	}
	r.TotalTasksCompleted += delta.TotalTasksCompleted
	r.RewardsRedeemed += delta.RewardsRedeemed
	if delta.Streak != nil {
		r.Streak = *delta.Streak
		if r.Streak > r.LongestStreak {
			r.LongestStreak = r.Streak
		}
	}
	if !delta.LastActivityDate.IsZero() {
		r.LastActivityDate = delta.LastActivityDate
	}
	r.Level = LevelForXP(r.TotalXP)
	r.UpdatedAt = time.Now()
}

// =============================================================================
// LEVEL CURVE
// =============================================================================

// xpPerLevelStep is the cost multiplier of the canonical curve: reaching
// level n+1 costs 100*n XP beyond level n (cumulative 0, 100, 300, 600, ...).
const xpPerLevelStep = 100

// LevelForXP returns the level for a total XP value. Always >= 1.
func LevelForXP(totalXP Amount) int {
	xp := totalXP.Int64()
	level := 1
	var cumulative int64
	for {
		step := int64(xpPerLevelStep * level)
		if xp < cumulative+step {
			return level
		}
		cumulative += step
		level++
	}
}

// XPForLevel returns the cumulative XP threshold to reach a level.
func XPForLevel(level int) Amount {
	var cumulative int64
	for n := 1; n < level; n++ {
		cumulative += int64(xpPerLevelStep * n)
	}
	return XP(cumulative)
}
