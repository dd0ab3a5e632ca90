/*
Package redemption implements the two-phase reward purchase workflow.

FLOW:
  Request  -> gold debited immediately, redemption created PENDING
  Approve  -> terminal; RewardsRedeemed++; no gold change
  Reject   -> terminal; full refund entry returns the gold

The status transition is a conditional write in the store (pending ->
terminal or fail), so a redemption can never be resolved twice: the
second resolver gets ErrNotPending and performs zero writes.

PRECONDITIONS (all checked before anything is written):
  - AvailableGold >= reward cost
  - no pending redemption for the same (user, reward) pair
  - reward's required level <= user's level
  - minimum tasks completed today (configurable gate)
*/
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/settlement"
)

// DefaultMinDailyTasks is the redemption gate: tasks completed today
// before a reward may be requested.
const DefaultMinDailyTasks = 4

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	Store         ledger.TxStore
	MinDailyTasks int
}

func NewWorkflow(store ledger.TxStore) *Workflow {
	return &Workflow{Store: store, MinDailyTasks: DefaultMinDailyTasks}
}

// Request creates a pending redemption and debits the gold in one batch.
func (w *Workflow) Request(ctx context.Context, userID ledger.UserID, rewardID ledger.RewardID) (*ledger.Redemption, error) {
	var out *ledger.Redemption
	err := w.Store.WithTx(ctx, func(s ledger.Store) error {
		reward, err := s.GetReward(ctx, rewardID)
		if err != nil {
			return err
		}
		if !reward.Active {
			return fmt.Errorf("%w: reward %s is inactive", ledger.ErrValidation, rewardID)
		}

		prog, err := ledger.EnsureProgressIn(ctx, s, userID)
		if err != nil {
			return err
		}
		if prog.Level < reward.RequiredLevel {
			return fmt.Errorf("%w: need level %d, have %d", ledger.ErrLevelTooLow, reward.RequiredLevel, prog.Level)
		}
		if prog.AvailableGold.LessThan(reward.CostGold) {
			return &ledger.InsufficientFundsError{UserID: userID, Available: prog.AvailableGold, Requested: reward.CostGold}
		}

		pending, err := s.FindPendingRedemption(ctx, userID, rewardID)
		if err != nil {
			return err
		}
		if pending != nil {
			return fmt.Errorf("%w: redemption %s", ledger.ErrPendingRedemptionExists, pending.ID)
		}

		done, err := settlement.CompletedToday(ctx, s, userID, ledger.Today())
		if err != nil {
			return err
		}
		if done < w.MinDailyTasks {
			return fmt.Errorf("%w: %d of %d tasks done today", ledger.ErrDailyTaskGate, done, w.MinDailyTasks)
		}

		r := ledger.Redemption{
			ID:          ledger.RedemptionID(uuid.NewString()),
			UserID:      userID,
			RewardID:    rewardID,
			RewardTitle: reward.Title,
			CostGold:    reward.CostGold,
			Status:      ledger.RedemptionPending,
			CreatedAt:   time.Now(),
		}
		if err := s.PutRedemption(ctx, r); err != nil {
			return err
		}

		// Debit + audit entry in the same batch as the pending record.
		if _, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
			UserID:       userID,
			Amount:       reward.CostGold.Neg(),
			Type:         ledger.TxSpent,
			Source:       ledger.SourceRewardRedemption,
			Description:  fmt.Sprintf("redeemed reward: %s", reward.Title),
			RelatedID:    string(r.ID),
			RelatedTitle: reward.Title,
			DedupKey:     ledger.DedupKey(userID, "redemptions", string(r.ID), "spent"),
		}); err != nil {
			return err
		}

		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve moves a pending redemption to its terminal state.
// Approved: RewardsRedeemed++, gold already debited at request time.
// Rejected: gold refunded in full, spent total reduced.
func (w *Workflow) Resolve(ctx context.Context, id ledger.RedemptionID, approved bool, approvedBy string) (*ledger.Redemption, error) {
	var out *ledger.Redemption
	err := w.Store.WithTx(ctx, func(s ledger.Store) error {
		r, err := s.GetRedemption(ctx, id)
		if err != nil {
			return err
		}

		status := ledger.RedemptionRejected
		if approved {
			status = ledger.RedemptionApproved
		}
		now := time.Now()
		// Conditional transition: fails with ErrNotPending on terminal
		// redemptions before anything else is written.
		if err := s.ResolveRedemption(ctx, id, status, approvedBy, now); err != nil {
			return err
		}

		if approved {
			if _, err := s.ApplyProgressDelta(ctx, r.UserID, ledger.ProgressDelta{RewardsRedeemed: 1}); err != nil {
				return err
			}
		} else {
			if _, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
				UserID:       r.UserID,
				Amount:       r.CostGold,
				Type:         ledger.TxRefund,
				Source:       ledger.SourceRedemptionRefund,
				Description:  fmt.Sprintf("refund for rejected redemption: %s", r.RewardTitle),
				RelatedID:    string(r.ID),
				RelatedTitle: r.RewardTitle,
				DedupKey:     ledger.DedupKey(r.UserID, "redemptions", string(r.ID), "refund"),
			}); err != nil {
				return err
			}
		}

		r.Status = status
		r.ApprovedBy = approvedBy
		r.ResolvedAt = &now
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
