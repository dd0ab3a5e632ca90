/*
restore.go - Audited overwrite of the live aggregate

The one sanctioned repair path. Bypasses the monotonicity invariant on
purpose, so it never runs automatically: an operator supplies the target
values and a reason, and the previous values are preserved on the record
for traceability.
*/
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// Restore overwrites TotalXP, Level, AvailableGold and TotalGoldEarned
// with operator-supplied targets. TotalGoldSpent is kept, and earned is
// recomputed as target + spent so the conservation invariant holds after
// the overwrite.
func (d *Doctor) Restore(ctx context.Context, userID ledger.UserID, targetXP, targetGold ledger.Amount, reason, operator string) (*ledger.ProgressRecord, error) {
	if reason == "" || operator == "" {
		return nil, fmt.Errorf("%w: restore requires a reason and an operator", ledger.ErrValidation)
	}
	if targetXP.IsNegative() || targetGold.IsNegative() {
		return nil, fmt.Errorf("%w: restore targets must be non-negative", ledger.ErrValidation)
	}

	var out *ledger.ProgressRecord
	err := d.Store.WithTx(ctx, func(s ledger.Store) error {
		prog, err := ledger.EnsureProgressIn(ctx, s, userID)
		if err != nil {
			return err
		}

		now := time.Now()
		rec := *prog
		rec.PreviousXP = prog.TotalXP
		rec.PreviousLevel = prog.Level
		rec.PreviousGold = prog.AvailableGold
		rec.RestoredAt = &now
		rec.RestoredBy = operator
		rec.RestorationReason = reason

		rec.TotalXP = targetXP
		rec.Level = ledger.LevelForXP(targetXP)
		rec.AvailableGold = targetGold
		rec.TotalGoldEarned = targetGold.Add(prog.TotalGoldSpent)
		rec.UpdatedAt = now

		if err := s.PutProgress(ctx, rec); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
