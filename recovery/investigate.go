/*
Package recovery estimates what a user's totals SHOULD be from raw
historical records and reports drift against the live aggregate.

Three tools, three postures:
  Investigate - pure read, estimates totals from tasks, achievements and
                redemptions, reports drift, changes nothing
  Restore     - audited overwrite of the aggregate; operator action only
  Migrate     - backfills the transaction ledger from history with
                deterministic, idempotent entries

Drift is ALWAYS reported, never silently repaired. Restore is the one
sanctioned repair path and it stamps a full audit trail.
*/
package recovery

import (
	"context"
	"fmt"

	"github.com/heitormissions/ledger-engine/ledger"
)

// =============================================================================
// DOCTOR
// =============================================================================

type Doctor struct {
	Store  ledger.TxStore
	Ledger *ledger.Ledger
}

func NewDoctor(store ledger.TxStore) *Doctor {
	return &Doctor{Store: store, Ledger: ledger.NewLedger(store)}
}

// =============================================================================
// INVESTIGATION
// =============================================================================

// SourceEstimate is one data source's contribution to the estimate.
type SourceEstimate struct {
	Source  string // "tasks", "achievements", "redemptions"
	Entries int
	XP      ledger.Amount
	Gold    ledger.Amount // signed: redemption spend is negative
}

// Totals is a point-in-time view of the aggregate values under scrutiny.
type Totals struct {
	Level         int
	TotalXP       ledger.Amount
	AvailableGold ledger.Amount
	GoldEarned    ledger.Amount
	GoldSpent     ledger.Amount
}

// InvestigationReport compares live totals against the estimate.
type InvestigationReport struct {
	UserID          ledger.UserID
	Current         Totals
	Estimated       Totals
	Breakdown       []SourceEstimate
	Recommendations []string
}

// Investigate estimates XP and gold from raw historical records: task
// completions with reward fields, claimed achievements, minus gold spent
// on redemptions that were not rejected (rejections were refunded, so
// their net spend is zero). Pure read, idempotent, no side effects.
func (d *Doctor) Investigate(ctx context.Context, userID ledger.UserID) (*InvestigationReport, error) {
	report := &InvestigationReport{UserID: userID}

	prog, err := d.Store.GetProgress(ctx, userID)
	if err != nil && !ledger.IsNotFound(err) {
		return nil, err
	}
	if prog != nil {
		report.Current = Totals{
			Level:         prog.Level,
			TotalXP:       prog.TotalXP,
			AvailableGold: prog.AvailableGold,
			GoldEarned:    prog.TotalGoldEarned,
			GoldSpent:     prog.TotalGoldSpent,
		}
	}

	// (a) task completions
	tasks, err := d.Store.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	taskEst := SourceEstimate{Source: "tasks", XP: ledger.ZeroXP(), Gold: ledger.ZeroGold()}
	for _, t := range tasks {
		for range t.Completions {
			taskEst.Entries++
			taskEst.XP = taskEst.XP.Add(t.XPReward)
			taskEst.Gold = taskEst.Gold.Add(t.GoldReward)
		}
	}

	// (b) claimed achievements
	achievements, err := d.Store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	achEst := SourceEstimate{Source: "achievements", XP: ledger.ZeroXP(), Gold: ledger.ZeroGold()}
	for _, a := range achievements {
		if !a.Claimed {
			continue
		}
		achEst.Entries++
		achEst.XP = achEst.XP.Add(a.XPReward)
		achEst.Gold = achEst.Gold.Add(a.GoldReward)
	}

	// (c) redemption spend
	redemptions, err := d.Store.ListRedemptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	redEst := SourceEstimate{Source: "redemptions", XP: ledger.ZeroXP(), Gold: ledger.ZeroGold()}
	for _, r := range redemptions {
		if r.Status == ledger.RedemptionRejected {
			continue
		}
		redEst.Entries++
		redEst.Gold = redEst.Gold.Sub(r.CostGold)
	}

	report.Breakdown = []SourceEstimate{taskEst, achEst, redEst}

	earned := taskEst.Gold.Add(achEst.Gold)
	spent := redEst.Gold.Neg()
	estXP := taskEst.XP.Add(achEst.XP)
	report.Estimated = Totals{
		Level:         ledger.LevelForXP(estXP),
		TotalXP:       estXP,
		AvailableGold: earned.Sub(spent).Floor(),
		GoldEarned:    earned,
		GoldSpent:     spent,
	}

	report.Recommendations = recommend(report)
	return report, nil
}

func recommend(r *InvestigationReport) []string {
	var recs []string
	if !r.Current.TotalXP.Equal(r.Estimated.TotalXP) {
		recs = append(recs, fmt.Sprintf("total XP is %v, history suggests %v", r.Current.TotalXP, r.Estimated.TotalXP))
	}
	if !r.Current.AvailableGold.Equal(r.Estimated.AvailableGold) {
		recs = append(recs, fmt.Sprintf("available gold is %v, history suggests %v", r.Current.AvailableGold, r.Estimated.AvailableGold))
	}
	if len(recs) > 0 {
		recs = append(recs, "run restore with the estimated totals if the history is trusted")
	}
	return recs
}
