/*
health.go - Consistency findings over the aggregate and the chain

Checks three invariants and reports findings without touching anything:
  conservation  AvailableGold == TotalGoldEarned - TotalGoldSpent
  level curve   Level == LevelForXP(TotalXP)
  chain         each entry's BalanceBefore == previous BalanceAfter
*/
package recovery

import (
	"context"
	"fmt"

	"github.com/heitormissions/ledger-engine/ledger"
)

type FindingCode string

const (
	FindingConservation FindingCode = "conservation_drift"
	FindingLevelCurve   FindingCode = "level_mismatch"
	FindingChainBreak   FindingCode = "chain_break"
	FindingChainDrift   FindingCode = "chain_vs_live_drift"
)

type Finding struct {
	Code    FindingCode
	Message string
}

type HealthReport struct {
	UserID   ledger.UserID
	Findings []Finding
	Healthy  bool
}

// CheckHealth runs every consistency check. Findings are reported, never
// auto-corrected.
func (d *Doctor) CheckHealth(ctx context.Context, userID ledger.UserID) (*HealthReport, error) {
	report := &HealthReport{UserID: userID}

	prog, err := d.Store.GetProgress(ctx, userID)
	if err != nil && !ledger.IsNotFound(err) {
		return nil, err
	}

	if prog != nil {
		expected := prog.TotalGoldEarned.Sub(prog.TotalGoldSpent)
		if !prog.AvailableGold.Equal(expected) {
			report.Findings = append(report.Findings, Finding{
				Code:    FindingConservation,
				Message: fmt.Sprintf("available gold %v != earned %v - spent %v", prog.AvailableGold, prog.TotalGoldEarned, prog.TotalGoldSpent),
			})
		}
		if want := ledger.LevelForXP(prog.TotalXP); prog.Level != want {
			report.Findings = append(report.Findings, Finding{
				Code:    FindingLevelCurve,
				Message: fmt.Sprintf("level %d does not match %v xp (expected %d)", prog.Level, prog.TotalXP, want),
			})
		}
	}

	replay, err := d.Ledger.ReconstructBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range replay.Breaks {
		report.Findings = append(report.Findings, Finding{
			Code:    FindingChainBreak,
			Message: fmt.Sprintf("entry %s (index %d): balance before %v, chain expected %v", b.TransactionID, b.Index, b.Found, b.Expected),
		})
	}
	if prog != nil && replay.Entries > 0 && !replay.FinalBalance.Equal(prog.AvailableGold) {
		report.Findings = append(report.Findings, Finding{
			Code:    FindingChainDrift,
			Message: fmt.Sprintf("chain replays to %v, live balance is %v", replay.FinalBalance, prog.AvailableGold),
		})
	}

	report.Healthy = len(report.Findings) == 0
	return report, nil
}
