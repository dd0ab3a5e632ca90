/*
migration.go - Backfilling the transaction ledger from raw history

PURPOSE:
  Users who predate the ledger have task completions, redemptions and
  settled daily records but no audit trail. This walks those records in
  chronological order and synthesizes one transaction per event.

IDEMPOTENCE:
  Every synthesized entry has a deterministic ID (migration_<kind>_<id>)
  and a content-addressed dedup key derived EXACTLY as the live recording
  paths derive theirs. Re-running after a partial failure skips existing
  entries and resumes; running after the live system has recorded the
  same events skips those too, because the keys collide by construction.
  Daily records settled by the live engine (ProcessedAt set) are skipped
  outright: their entries are in the chain already, and a reprocessed
  day may have written them keyless.

AGGREGATE UNTOUCHED:
  Backfill writes history only. The live aggregate already reflects these
  events; the run ends by comparing the replayed balance against it and
  surfacing (not resolving) any mismatch.
*/
package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// =============================================================================
// MIGRATION
// =============================================================================

// MigrationReport summarizes one backfill run.
type MigrationReport struct {
	UserID          ledger.UserID
	Created         int
	Skipped         int
	ReplayedBalance ledger.Amount
	LiveBalance     ledger.Amount
	Drift           ledger.Amount // replayed - live; zero means in sync
	InSync          bool
}

// historicalEvent is one gold-affecting fact recovered from raw records.
type historicalEvent struct {
	id          ledger.TransactionID
	dedupKey    string
	at          time.Time
	amount      ledger.Amount
	txType      ledger.TransactionType
	source      ledger.TransactionSource
	description string
	relatedID   string
}

// MigrateHistoricalLedger synthesizes ledger entries for all historical
// events and reports how the replayed balance compares to the live one.
func (d *Doctor) MigrateHistoricalLedger(ctx context.Context, userID ledger.UserID) (*MigrationReport, error) {
	events, err := d.collectEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	report := &MigrationReport{UserID: userID, ReplayedBalance: ledger.ZeroGold()}
	running := ledger.ZeroGold()

	err = d.Store.WithTx(ctx, func(s ledger.Store) error {
		for _, ev := range events {
			exists, err := s.DedupKeyExists(ctx, ev.dedupKey)
			if err != nil {
				return err
			}
			if exists {
				// Already backfilled, or recorded by the live path.
				report.Skipped++
				running = running.Add(ev.amount)
				continue
			}
			tx := ledger.GoldTransaction{
				ID:            ev.id,
				UserID:        userID,
				Amount:        ev.amount,
				Type:          ev.txType,
				Source:        ev.source,
				Description:   ev.description,
				RelatedID:     ev.relatedID,
				DedupKey:      ev.dedupKey,
				BalanceBefore: running,
				BalanceAfter:  running.Add(ev.amount),
				CreatedAt:     ev.at,
			}
			if err := s.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			report.Created++
			running = running.Add(ev.amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.ReplayedBalance = running

	prog, err := d.Store.GetProgress(ctx, userID)
	if err != nil && !ledger.IsNotFound(err) {
		return nil, err
	}
	if prog != nil {
		report.LiveBalance = prog.AvailableGold
	} else {
		report.LiveBalance = ledger.ZeroGold()
	}
	report.Drift = report.ReplayedBalance.Sub(report.LiveBalance)
	report.InSync = report.Drift.IsZero()
	return report, nil
}

// collectEvents walks task completions, redemptions and settled daily
// records, producing deterministic entries for each.
func (d *Doctor) collectEvents(ctx context.Context, userID ledger.UserID) ([]historicalEvent, error) {
	var events []historicalEvent

	tasks, err := d.Store.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		for _, at := range t.Completions {
			sourceID := fmt.Sprintf("%s@%d", t.ID, at.Unix())
			events = append(events, historicalEvent{
				id:          ledger.TransactionID(fmt.Sprintf("migration_task_%s", sourceID)),
				dedupKey:    ledger.DedupKey(userID, "tasks", sourceID, "task_completion"),
				at:          at,
				amount:      t.GoldReward,
				txType:      ledger.TxEarned,
				source:      ledger.SourceTaskCompletion,
				description: fmt.Sprintf("completed task: %s", t.Title),
				relatedID:   string(t.ID),
			})
		}
	}

	redemptions, err := d.Store.ListRedemptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, r := range redemptions {
		events = append(events, historicalEvent{
			id:          ledger.TransactionID(fmt.Sprintf("migration_redemption_%s", r.ID)),
			dedupKey:    ledger.DedupKey(userID, "redemptions", string(r.ID), "spent"),
			at:          r.CreatedAt,
			amount:      r.CostGold.Neg(),
			txType:      ledger.TxSpent,
			source:      ledger.SourceRewardRedemption,
			description: fmt.Sprintf("redeemed reward: %s", r.RewardTitle),
			relatedID:   string(r.ID),
		})
		if r.Status == ledger.RedemptionRejected && r.ResolvedAt != nil {
			events = append(events, historicalEvent{
				id:          ledger.TransactionID(fmt.Sprintf("migration_refund_%s", r.ID)),
				dedupKey:    ledger.DedupKey(userID, "redemptions", string(r.ID), "refund"),
				at:          *r.ResolvedAt,
				amount:      r.CostGold,
				txType:      ledger.TxRefund,
				source:      ledger.SourceRedemptionRefund,
				description: fmt.Sprintf("refund for rejected redemption: %s", r.RewardTitle),
				relatedID:   string(r.ID),
			})
		}
	}

	days, err := d.Store.ListDaily(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range days {
		if !rec.SummaryProcessed || rec.AppliedGoldDelta.IsZero() {
			continue
		}
		// ProcessedAt is stamped only by the live MarkSettled path, so a
		// record carrying it already has its entry in the chain (possibly
		// keyless, after a reprocess). Only legacy records lack it.
		if rec.ProcessedAt != nil {
			continue
		}
		at := rec.Date.Start().Add(23 * time.Hour) // end of the settled day
		if rec.AppliedGoldDelta.IsPositive() {
			events = append(events, historicalEvent{
				id:          ledger.TransactionID(fmt.Sprintf("migration_daily_bonus_%s", rec.Date)),
				dedupKey:    ledger.DedupKey(userID, "dailyProgress", rec.Date.String(), "daily_bonus"),
				at:          at,
				amount:      rec.AppliedGoldDelta,
				txType:      ledger.TxBonus,
				source:      ledger.SourceDailyBonus,
				description: fmt.Sprintf("all %d tasks completed on %s", rec.TotalTasksAvailable, rec.Date),
				relatedID:   rec.Date.String(),
			})
		} else {
			events = append(events, historicalEvent{
				id:          ledger.TransactionID(fmt.Sprintf("migration_daily_penalty_%s", rec.Date)),
				dedupKey:    ledger.DedupKey(userID, "dailyProgress", rec.Date.String(), "daily_penalty"),
				at:          at,
				amount:      rec.AppliedGoldDelta,
				txType:      ledger.TxPenalty,
				source:      ledger.SourceDailyPenalty,
				description: fmt.Sprintf("%d of %d tasks incomplete on %s", rec.TotalTasksAvailable-rec.TasksCompleted, rec.TotalTasksAvailable, rec.Date),
				relatedID:   rec.Date.String(),
			})
		}
	}

	return events, nil
}
