/*
records.go - Persistent documents surrounding the ledger

PURPOSE:
  The document types stored alongside the transaction log and the
  progress aggregate: daily settlement records, tasks, rewards,
  redemptions, achievements, and punishment mode. The engine packages
  (settlement, redemption, recovery, punishment) hold the logic;
  the shapes live here next to the store interfaces.
*/
package ledger

import "time"

// =============================================================================
// DAILY PROGRESS RECORD - One per (user, Brazil-local day)
// =============================================================================

// DailyProgressRecord captures the outcome of one settled day.
//
// INVARIANT: SummaryProcessed transitions false->true exactly once per
// day; the normal settlement path refuses to touch a processed record.
// INVARIANT: AllTasksBonusGold and GoldPenalty are mutually exclusive;
// both are zero when the day had no available tasks.
type DailyProgressRecord struct {
	UserID              UserID
	Date                CalendarDay
	TasksCompleted      int
	TotalTasksAvailable int
	GoldPenalty         Amount // assessed penalty (>= 0)
	AllTasksBonusGold   Amount // >= 0
	XPEarned            Amount // informational: XP earned from tasks that day
	GoldEarned          Amount // informational: gold earned from tasks that day
	// AppliedGoldDelta is the signed amount actually written to the ledger
	// (penalty capped at the balance floor). Reprocessing reverses exactly
	// this value.
	AppliedGoldDelta Amount
	SummaryProcessed bool
	ProcessedAt      *time.Time
}

// =============================================================================
// TASKS
// =============================================================================

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"   // every day
	FrequencyWeekday Frequency = "weekday" // Mon-Fri
	FrequencyWeekend Frequency = "weekend" // Sat-Sun
)

// AppliesOn reports whether a task with this frequency is due on the day.
func (f Frequency) AppliesOn(day CalendarDay) bool {
	switch f {
	case FrequencyWeekday:
		return !day.IsWeekend()
	case FrequencyWeekend:
		return day.IsWeekend()
	default: // daily, or unset legacy records
		return true
	}
}

// Task is an assignable mission. Completions are timestamps recorded by
// the task-completion collaborator; settlement counts them per day.
type Task struct {
	ID          TaskID
	UserID      UserID
	Title       string
	Description string
	XPReward    Amount
	GoldReward  Amount
	Frequency   Frequency
	Active      bool
	CreatedAt   time.Time
	Completions []time.Time
}

// CompletedOn reports whether the task has a completion on the given day.
func (t Task) CompletedOn(day CalendarDay) bool {
	for _, at := range t.Completions {
		if day.Contains(at) {
			return true
		}
	}
	return false
}

// AvailableOn reports whether the task counts toward the day's total.
func (t Task) AvailableOn(day CalendarDay) bool {
	if !t.Active {
		return false
	}
	if DayOf(t.CreatedAt).After(day) {
		return false
	}
	return t.Frequency.AppliesOn(day)
}

// =============================================================================
// REWARDS + REDEMPTIONS
// =============================================================================

type Reward struct {
	ID            RewardID
	Title         string
	Description   string
	CostGold      Amount
	RequiredLevel int
	Active        bool
	CreatedAt     time.Time
}

type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionApproved RedemptionStatus = "approved" // terminal
	RedemptionRejected RedemptionStatus = "rejected" // terminal
)

// Terminal reports whether the status admits no further transitions.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionApproved || s == RedemptionRejected
}

// Redemption is the two-phase reward purchase: gold is debited at request
// time; approval confirms it, rejection refunds it.
//
// INVARIANT: at most one pending redemption per (user, reward) pair.
type Redemption struct {
	ID          RedemptionID
	UserID      UserID
	RewardID    RewardID
	RewardTitle string
	CostGold    Amount
	Status      RedemptionStatus
	CreatedAt   time.Time
	ApprovedBy  string
	ResolvedAt  *time.Time
}

// =============================================================================
// ACHIEVEMENTS - Read by recovery when estimating historical totals
// =============================================================================

type Achievement struct {
	ID         string
	UserID     UserID
	Title      string
	XPReward   Amount
	GoldReward Amount
	Claimed    bool
	ClaimedAt  *time.Time
}

// =============================================================================
// PUNISHMENT MODE - Zero or one active per user
// =============================================================================

const (
	PunishmentTasksRequired = 30
	PunishmentDuration      = 7 * 24 * time.Hour
	PunishmentTaskCooldown  = 30 * time.Minute
)

type PunishmentMode struct {
	UserID              UserID
	IsActive            bool
	Reason              string
	StartDate           time.Time
	EndDate             time.Time // StartDate + 7 days
	TasksCompleted      int
	TasksRequired       int
	LastTaskCompletedAt *time.Time
}

// ReleaseDue reports whether either exit condition is satisfied.
func (p PunishmentMode) ReleaseDue(now time.Time) bool {
	return p.TasksCompleted >= p.TasksRequired || !now.Before(p.EndDate)
}
