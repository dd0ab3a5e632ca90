/*
Package settlement computes daily bonus/penalty gold, exactly once per
user per Brazil-local calendar day.

STATE MACHINE per (user, day):
  Unseen -> Evaluated (record with draft totals, SummaryProcessed=false)
         -> Settled   (SummaryProcessed=true)

The Evaluated->Settled transition writes the ledger entry, the progress
delta, and the processed flag in ONE atomic batch. A crash between them
cannot happen partially, so an unsettled day is simply retried. The flag
flip itself is a conditional write (MarkSettled), never read-then-write.

RULES:
  - All available tasks completed and at least one available: +10 bonus
  - Some incomplete: penalty of one gold per incomplete task, capped at
    the current balance so AvailableGold never goes negative
  - Zero available tasks: no entry at all, still marked settled

Manual reprocessing is the sanctioned escape hatch: it reverses the
previously applied delta with an adjustment entry, then re-evaluates.
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// DefaultBonusGold is the all-tasks-completed daily bonus.
const DefaultBonusGold = 10

// DefaultLookbackDays bounds the backward scan when a user has no daily
// records at all (first settlement ever).
const DefaultLookbackDays = 30

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store        ledger.TxStore
	BonusGold    int64
	LookbackDays int
}

func NewEngine(store ledger.TxStore) *Engine {
	return &Engine{
		Store:        store,
		BonusGold:    DefaultBonusGold,
		LookbackDays: DefaultLookbackDays,
	}
}

// =============================================================================
// SETTLE ONE DAY
// =============================================================================

// SettleDay evaluates and settles one day through the normal, idempotent
// path. A second call for the same day fails with ErrAlreadySettled and
// writes nothing.
func (e *Engine) SettleDay(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	// Fast path: refuse before opening a batch.
	existing, err := e.Store.GetDaily(ctx, userID, day)
	if err != nil && !ledger.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.SummaryProcessed {
		return nil, &ledger.AlreadySettledError{UserID: userID, Day: day}
	}

	var out *ledger.DailyProgressRecord
	err = e.Store.WithTx(ctx, func(s ledger.Store) error {
		rec, err := e.settleIn(ctx, s, userID, day, false)
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settleIn runs inside a batch. It re-checks the processed flag under the
// batch so two racing settlements cannot both apply.
func (e *Engine) settleIn(ctx context.Context, s ledger.Store, userID ledger.UserID, day ledger.CalendarDay, reprocess bool) (*ledger.DailyProgressRecord, error) {
	if existing, err := s.GetDaily(ctx, userID, day); err == nil && existing.SummaryProcessed {
		return nil, &ledger.AlreadySettledError{UserID: userID, Day: day}
	} else if err != nil && !ledger.IsNotFound(err) {
		return nil, err
	}

	tasks, err := s.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec := evaluate(userID, day, tasks)

	prog, err := ledger.EnsureProgressIn(ctx, s, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case rec.TotalTasksAvailable == 0:
		// Nothing due that day: no bonus, no penalty, settle anyway.

	case rec.TasksCompleted == rec.TotalTasksAvailable:
		key, err := dayDedupKey(ctx, s, userID, day, "daily_bonus", reprocess)
		if err != nil {
			return nil, err
		}
		bonus := ledger.Gold(e.BonusGold)
		rec.AllTasksBonusGold = bonus
		rec.AppliedGoldDelta = bonus
		if _, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
			UserID:      userID,
			Amount:      bonus,
			Type:        ledger.TxBonus,
			Source:      ledger.SourceDailyBonus,
			Description: fmt.Sprintf("all %d tasks completed on %s", rec.TotalTasksAvailable, day),
			DedupKey:    key,
		}); err != nil {
			return nil, err
		}

	default:
		assessed := ledger.Gold(int64(rec.TotalTasksAvailable - rec.TasksCompleted))
		rec.GoldPenalty = assessed
		applied := assessed.Min(prog.AvailableGold) // balance floor of 0
		rec.AppliedGoldDelta = applied.Neg()
		if applied.IsPositive() {
			key, err := dayDedupKey(ctx, s, userID, day, "daily_penalty", reprocess)
			if err != nil {
				return nil, err
			}
			if _, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
				UserID:      userID,
				Amount:      applied.Neg(),
				Type:        ledger.TxPenalty,
				Source:      ledger.SourceDailyPenalty,
				Description: fmt.Sprintf("%d of %d tasks incomplete on %s", rec.TotalTasksAvailable-rec.TasksCompleted, rec.TotalTasksAvailable, day),
				DedupKey:    key,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := s.PutDaily(ctx, rec); err != nil {
		return nil, err
	}
	// The conditional flip is the idempotence guarantee; it commits in the
	// same batch as the ledger entry above.
	if err := s.MarkSettled(ctx, userID, day, time.Now()); err != nil {
		return nil, err
	}
	rec.SummaryProcessed = true
	return &rec, nil
}

// dayDedupKey returns the canonical settlement dedup key for the day.
// A reprocessed day keeps the key only while it is unclaimed: the first
// settlement of each (day, kind) owns it, so the backfill in recovery
// can always tell a settled day apart from an unrecorded one. When a
// reprocess re-settles to the same outcome, the reversal-and-reapply
// pair goes keyless.
func dayDedupKey(ctx context.Context, s ledger.Store, userID ledger.UserID, day ledger.CalendarDay, kind string, reprocess bool) (string, error) {
	key := ledger.DedupKey(userID, "dailyProgress", day.String(), kind)
	if !reprocess {
		return key, nil
	}
	exists, err := s.DedupKeyExists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return "", nil
	}
	return key, nil
}

// evaluate computes the draft record for a day from raw task data.
func evaluate(userID ledger.UserID, day ledger.CalendarDay, tasks []ledger.Task) ledger.DailyProgressRecord {
	rec := ledger.DailyProgressRecord{
		UserID:            userID,
		Date:              day,
		GoldPenalty:       ledger.ZeroGold(),
		AllTasksBonusGold: ledger.ZeroGold(),
		XPEarned:          ledger.ZeroXP(),
		GoldEarned:        ledger.ZeroGold(),
		AppliedGoldDelta:  ledger.ZeroGold(),
	}
	for _, t := range tasks {
		if !t.AvailableOn(day) {
			continue
		}
		rec.TotalTasksAvailable++
		if t.CompletedOn(day) {
			rec.TasksCompleted++
			rec.XPEarned = rec.XPEarned.Add(t.XPReward)
			rec.GoldEarned = rec.GoldEarned.Add(t.GoldReward)
		}
	}
	return rec
}

// =============================================================================
// CATCH-UP SCAN
// =============================================================================

// ProcessUnprocessedDays scans backward from yesterday (Brazil-local) and
// settles every day not yet processed, oldest first. The scan stops at
// the first day already settled, or after LookbackDays when the user has
// no trail at all.
func (e *Engine) ProcessUnprocessedDays(ctx context.Context, userID ledger.UserID) ([]ledger.DailyProgressRecord, error) {
	var pending []ledger.CalendarDay

	day := ledger.Today().AddDays(-1)
	for i := 0; i < e.LookbackDays; i++ {
		rec, err := e.Store.GetDaily(ctx, userID, day)
		if err != nil && !ledger.IsNotFound(err) {
			return nil, err
		}
		if rec != nil && rec.SummaryProcessed {
			break
		}
		pending = append(pending, day)
		day = day.AddDays(-1)
	}

	// Oldest first so ledger entries land in chronological order.
	var settled []ledger.DailyProgressRecord
	for i := len(pending) - 1; i >= 0; i-- {
		rec, err := e.SettleDay(ctx, userID, pending[i])
		if err != nil {
			if errors.Is(err, ledger.ErrAlreadySettled) {
				continue // lost a race to another session, nothing to do
			}
			return settled, err
		}
		settled = append(settled, *rec)
	}
	return settled, nil
}

// =============================================================================
// MANUAL REPROCESS - Admin escape hatch
// =============================================================================

// Reprocess re-evaluates a specific day regardless of the processed flag.
// It always reverses the previously applied delta first (an adjustment
// entry for the exact recorded amount), then runs the normal evaluation,
// all in one batch. Never invoked automatically.
func (e *Engine) Reprocess(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	var out *ledger.DailyProgressRecord
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		prev, err := s.GetDaily(ctx, userID, day)
		if err != nil && !ledger.IsNotFound(err) {
			return err
		}

		if prev != nil && prev.SummaryProcessed && !prev.AppliedGoldDelta.IsZero() {
			if _, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
				UserID:      userID,
				Amount:      prev.AppliedGoldDelta.Neg(),
				Type:        ledger.TxAdjustment,
				Source:      ledger.SourceAdminAdjustment,
				Description: fmt.Sprintf("reversal of settlement for %s", day),
				RelatedID:   day.String(),
			}); err != nil {
				return err
			}
		}

		// Clear the record so the normal path can run again.
		if prev != nil {
			cleared := ledger.DailyProgressRecord{UserID: userID, Date: day}
			if err := s.PutDaily(ctx, cleared); err != nil {
				return err
			}
		}

		rec, err := e.settleIn(ctx, s, userID, day, true)
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
