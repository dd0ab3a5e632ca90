/*
Package punishment tracks the disciplinary lockout mode.

One mode at most per user. Release when 30 tasks are completed or 7 days
elapse, whichever comes first; checked both on a timer and on every task
completion. Completions are rate limited to one per 30 minutes.
*/
package punishment

import (
	"context"
	"fmt"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// =============================================================================
// TRACKER
// =============================================================================

type Tracker struct {
	Store ledger.TxStore
}

func NewTracker(store ledger.TxStore) *Tracker {
	return &Tracker{Store: store}
}

// Activate starts punishment mode. Fails if one is already active.
func (t *Tracker) Activate(ctx context.Context, userID ledger.UserID, reason string, now time.Time) (*ledger.PunishmentMode, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: punishment requires a reason", ledger.ErrValidation)
	}
	var out *ledger.PunishmentMode
	err := t.Store.WithTx(ctx, func(s ledger.Store) error {
		existing, err := s.GetPunishment(ctx, userID)
		if err != nil && !ledger.IsNotFound(err) {
			return err
		}
		if existing != nil && existing.IsActive {
			return ledger.ErrPunishmentActive
		}
		mode := ledger.PunishmentMode{
			UserID:        userID,
			IsActive:      true,
			Reason:        reason,
			StartDate:     now,
			EndDate:       now.Add(ledger.PunishmentDuration),
			TasksRequired: ledger.PunishmentTasksRequired,
		}
		if err := s.PutPunishment(ctx, mode); err != nil {
			return err
		}
		out = &mode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteTask counts one punishment task. At most one per 30 minutes;
// the mode is released in the same write when the quota is reached.
func (t *Tracker) CompleteTask(ctx context.Context, userID ledger.UserID, now time.Time) (*ledger.PunishmentMode, error) {
	var out *ledger.PunishmentMode
	err := t.Store.WithTx(ctx, func(s ledger.Store) error {
		mode, err := s.GetPunishment(ctx, userID)
		if err != nil {
			return err
		}
		if !mode.IsActive {
			return fmt.Errorf("%w: no active punishment for %s", ledger.ErrNotFound, userID)
		}
		if mode.LastTaskCompletedAt != nil && now.Sub(*mode.LastTaskCompletedAt) < ledger.PunishmentTaskCooldown {
			return fmt.Errorf("%w: next punishment task allowed at %s",
				ledger.ErrRateLimited, mode.LastTaskCompletedAt.Add(ledger.PunishmentTaskCooldown).Format(time.RFC3339))
		}

		mode.TasksCompleted++
		mode.LastTaskCompletedAt = &now
		if mode.ReleaseDue(now) {
			mode.IsActive = false
		}
		if err := s.PutPunishment(ctx, *mode); err != nil {
			return err
		}
		out = mode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckRelease releases the mode if either exit condition holds. Safe to
// call from a timer for users with no active mode.
func (t *Tracker) CheckRelease(ctx context.Context, userID ledger.UserID, now time.Time) (released bool, err error) {
	err = t.Store.WithTx(ctx, func(s ledger.Store) error {
		mode, err := s.GetPunishment(ctx, userID)
		if err != nil {
			if ledger.IsNotFound(err) {
				return nil
			}
			return err
		}
		if !mode.IsActive || !mode.ReleaseDue(now) {
			return nil
		}
		mode.IsActive = false
		if err := s.PutPunishment(ctx, *mode); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// Active returns the active mode, or nil.
func (t *Tracker) Active(ctx context.Context, userID ledger.UserID) (*ledger.PunishmentMode, error) {
	mode, err := t.Store.GetPunishment(ctx, userID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !mode.IsActive {
		return nil, nil
	}
	return mode, nil
}
