/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Gold and XP travel as plain integers in the JSON contract. The engine
  keeps decimals internally; the boundary rounds down.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/recovery"
)

// =============================================================================
// PROGRESS
// =============================================================================

// ProgressDTO represents the live per-user aggregate in API responses.
type ProgressDTO struct {
	UserID              string `json:"user_id"`
	Level               int    `json:"level"`
	TotalXP             int64  `json:"total_xp"`
	AvailableGold       int64  `json:"available_gold"`
	TotalGoldEarned     int64  `json:"total_gold_earned"`
	TotalGoldSpent      int64  `json:"total_gold_spent"`
	Streak              int    `json:"streak"`
	LongestStreak       int    `json:"longest_streak"`
	TotalTasksCompleted int    `json:"total_tasks_completed"`
	RewardsRedeemed     int    `json:"rewards_redeemed"`
	LastActivityDate    string `json:"last_activity_date,omitempty"`
	UpdatedAt           string `json:"updated_at"`
	RestoredAt          string `json:"restored_at,omitempty"`
	RestoredBy          string `json:"restored_by,omitempty"`
	RestorationReason   string `json:"restoration_reason,omitempty"`
}

func toProgressDTO(rec *ledger.ProgressRecord) ProgressDTO {
	dto := ProgressDTO{
		UserID:              string(rec.UserID),
		Level:               rec.Level,
		TotalXP:             rec.TotalXP.Int64(),
		AvailableGold:       rec.AvailableGold.Int64(),
		TotalGoldEarned:     rec.TotalGoldEarned.Int64(),
		TotalGoldSpent:      rec.TotalGoldSpent.Int64(),
		Streak:              rec.Streak,
		LongestStreak:       rec.LongestStreak,
		TotalTasksCompleted: rec.TotalTasksCompleted,
		RewardsRedeemed:     rec.RewardsRedeemed,
		UpdatedAt:           rec.UpdatedAt.Format(time.RFC3339),
		RestoredBy:          rec.RestoredBy,
		RestorationReason:   rec.RestorationReason,
	}
	if !rec.LastActivityDate.IsZero() {
		dto.LastActivityDate = rec.LastActivityDate.String()
	}
	if rec.RestoredAt != nil {
		dto.RestoredAt = rec.RestoredAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents one ledger entry in API responses.
type TransactionDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Type          string `json:"type"`
	Source        string `json:"source"`
	Description   string `json:"description,omitempty"`
	RelatedID     string `json:"related_id,omitempty"`
	RelatedTitle  string `json:"related_title,omitempty"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	CreatedAt     string `json:"created_at"`
}

func toTransactionDTO(tx ledger.GoldTransaction) TransactionDTO {
	return TransactionDTO{
		ID:            string(tx.ID),
		UserID:        string(tx.UserID),
		Amount:        tx.Amount.Int64(),
		Type:          string(tx.Type),
		Source:        string(tx.Source),
		Description:   tx.Description,
		RelatedID:     tx.RelatedID,
		RelatedTitle:  tx.RelatedTitle,
		BalanceBefore: tx.BalanceBefore.Int64(),
		BalanceAfter:  tx.BalanceAfter.Int64(),
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

// CreditRequest credits gold from a named source.
type CreditRequest struct {
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
	RelatedID   string `json:"related_id,omitempty"`
}

// DebitRequest spends gold against the available balance.
type DebitRequest struct {
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
	RelatedID   string `json:"related_id,omitempty"`
}

// BalanceDTO is returned by credit/debit calls.
type BalanceDTO struct {
	UserID        string `json:"user_id"`
	AvailableGold int64  `json:"available_gold"`
}

// AdjustXPRequest applies a signed XP delta (admin operation).
type AdjustXPRequest struct {
	Delta int64 `json:"delta"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettleRequest names the Brazil-local day to settle. Empty means yesterday.
type SettleRequest struct {
	Date string `json:"date,omitempty"`
}

// DailyRecordDTO represents one settled day in API responses.
type DailyRecordDTO struct {
	UserID              string `json:"user_id"`
	Date                string `json:"date"`
	TasksCompleted      int    `json:"tasks_completed"`
	TotalTasksAvailable int    `json:"total_tasks_available"`
	GoldPenalty         int64  `json:"gold_penalty"`
	AllTasksBonusGold   int64  `json:"all_tasks_bonus_gold"`
	XPEarned            int64  `json:"xp_earned"`
	GoldEarned          int64  `json:"gold_earned"`
	AppliedGoldDelta    int64  `json:"applied_gold_delta"`
	SummaryProcessed    bool   `json:"summary_processed"`
	ProcessedAt         string `json:"processed_at,omitempty"`
}

func toDailyRecordDTO(rec *ledger.DailyProgressRecord) DailyRecordDTO {
	dto := DailyRecordDTO{
		UserID:              string(rec.UserID),
		Date:                rec.Date.String(),
		TasksCompleted:      rec.TasksCompleted,
		TotalTasksAvailable: rec.TotalTasksAvailable,
		GoldPenalty:         rec.GoldPenalty.Int64(),
		AllTasksBonusGold:   rec.AllTasksBonusGold.Int64(),
		XPEarned:            rec.XPEarned.Int64(),
		GoldEarned:          rec.GoldEarned.Int64(),
		AppliedGoldDelta:    rec.AppliedGoldDelta.Int64(),
		SummaryProcessed:    rec.SummaryProcessed,
	}
	if rec.ProcessedAt != nil {
		dto.ProcessedAt = rec.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// TASKS + REWARDS
// =============================================================================

// TaskDTO represents a mission in API responses.
type TaskDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	XPReward    int64  `json:"xp_reward"`
	GoldReward  int64  `json:"gold_reward"`
	Frequency   string `json:"frequency"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	Completions int    `json:"completions"`
}

func toTaskDTO(t ledger.Task) TaskDTO {
	return TaskDTO{
		ID:          string(t.ID),
		UserID:      string(t.UserID),
		Title:       t.Title,
		Description: t.Description,
		XPReward:    t.XPReward.Int64(),
		GoldReward:  t.GoldReward.Int64(),
		Frequency:   string(t.Frequency),
		Active:      t.Active,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		Completions: len(t.Completions),
	}
}

// CreateTaskRequest creates a mission for a user.
type CreateTaskRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	XPReward    int64  `json:"xp_reward"`
	GoldReward  int64  `json:"gold_reward"`
	Frequency   string `json:"frequency,omitempty"`
}

// RewardDTO represents a catalog reward in API responses.
type RewardDTO struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CostGold      int64  `json:"cost_gold"`
	RequiredLevel int    `json:"required_level"`
	Active        bool   `json:"active"`
}

func toRewardDTO(r ledger.Reward) RewardDTO {
	return RewardDTO{
		ID:            string(r.ID),
		Title:         r.Title,
		Description:   r.Description,
		CostGold:      r.CostGold.Int64(),
		RequiredLevel: r.RequiredLevel,
		Active:        r.Active,
	}
}

// CreateRewardRequest adds a reward to the catalog.
type CreateRewardRequest struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CostGold      int64  `json:"cost_gold"`
	RequiredLevel int    `json:"required_level"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// RedemptionDTO represents a reward purchase in API responses.
type RedemptionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	RewardID    string `json:"reward_id"`
	RewardTitle string `json:"reward_title,omitempty"`
	CostGold    int64  `json:"cost_gold"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
}

func toRedemptionDTO(r *ledger.Redemption) RedemptionDTO {
	dto := RedemptionDTO{
		ID:          string(r.ID),
		UserID:      string(r.UserID),
		RewardID:    string(r.RewardID),
		RewardTitle: r.RewardTitle,
		CostGold:    r.CostGold.Int64(),
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		ApprovedBy:  r.ApprovedBy,
	}
	if r.ResolvedAt != nil {
		dto.ResolvedAt = r.ResolvedAt.Format(time.RFC3339)
	}
	return dto
}

// RequestRedemptionRequest starts a reward purchase.
type RequestRedemptionRequest struct {
	RewardID string `json:"reward_id"`
}

// ResolveRedemptionRequest approves or rejects a pending redemption.
type ResolveRedemptionRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// =============================================================================
// RECOVERY
// =============================================================================

// RestoreRequest is the audited manual restoration escape hatch.
type RestoreRequest struct {
	TargetXP   int64  `json:"target_xp"`
	TargetGold int64  `json:"target_gold"`
	Reason     string `json:"reason"`
	Operator   string `json:"operator"`
}

// InvestigationDTO summarizes what a user's history suggests their
// aggregate should look like.
type InvestigationDTO struct {
	UserID          string              `json:"user_id"`
	Current         TotalsDTO           `json:"current"`
	Estimated       TotalsDTO           `json:"estimated"`
	Breakdown       []SourceEstimateDTO `json:"breakdown"`
	Recommendations []string            `json:"recommendations"`
}

type TotalsDTO struct {
	Level         int   `json:"level"`
	TotalXP       int64 `json:"total_xp"`
	AvailableGold int64 `json:"available_gold"`
	GoldEarned    int64 `json:"gold_earned"`
	GoldSpent     int64 `json:"gold_spent"`
}

type SourceEstimateDTO struct {
	Source  string `json:"source"`
	Entries int    `json:"entries"`
	XP      int64  `json:"xp"`
	Gold    int64  `json:"gold"`
}

func toInvestigationDTO(rep *recovery.InvestigationReport) InvestigationDTO {
	dto := InvestigationDTO{
		UserID:          string(rep.UserID),
		Current:         toTotalsDTO(rep.Current),
		Estimated:       toTotalsDTO(rep.Estimated),
		Recommendations: rep.Recommendations,
	}
	for _, b := range rep.Breakdown {
		dto.Breakdown = append(dto.Breakdown, SourceEstimateDTO{
			Source:  b.Source,
			Entries: b.Entries,
			XP:      b.XP.Int64(),
			Gold:    b.Gold.Int64(),
		})
	}
	return dto
}

func toTotalsDTO(t recovery.Totals) TotalsDTO {
	return TotalsDTO{
		Level:         t.Level,
		TotalXP:       t.TotalXP.Int64(),
		AvailableGold: t.AvailableGold.Int64(),
		GoldEarned:    t.GoldEarned.Int64(),
		GoldSpent:     t.GoldSpent.Int64(),
	}
}

// MigrationDTO reports the outcome of a historical ledger backfill.
type MigrationDTO struct {
	UserID          string `json:"user_id"`
	Created         int    `json:"created"`
	Skipped         int    `json:"skipped"`
	ReplayedBalance int64  `json:"replayed_balance"`
	LiveBalance     int64  `json:"live_balance"`
	Drift           int64  `json:"drift"`
	InSync          bool   `json:"in_sync"`
}

// HealthDTO reports invariant checks over one user's documents.
type HealthDTO struct {
	UserID   string       `json:"user_id"`
	Healthy  bool         `json:"healthy"`
	Findings []FindingDTO `json:"findings"`
}

type FindingDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// PUNISHMENT
// =============================================================================

// PunishmentDTO represents a user's punishment mode state.
type PunishmentDTO struct {
	UserID         string `json:"user_id"`
	IsActive       bool   `json:"is_active"`
	Reason         string `json:"reason,omitempty"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksRequired  int    `json:"tasks_required"`
}

func toPunishmentDTO(p *ledger.PunishmentMode) PunishmentDTO {
	return PunishmentDTO{
		UserID:         string(p.UserID),
		IsActive:       p.IsActive,
		Reason:         p.Reason,
		StartDate:      p.StartDate.Format(time.RFC3339),
		EndDate:        p.EndDate.Format(time.RFC3339),
		TasksCompleted: p.TasksCompleted,
		TasksRequired:  p.TasksRequired,
	}
}

// ActivatePunishmentRequest puts a user into punishment mode.
type ActivatePunishmentRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
