/*
txstore.go - Batch support and progress listeners for the SQLite store

PURPOSE:
  Implements the TxStore and WatchStore halves of the storage contract:
  WithTx runs a function over a database transaction and commits or
  rolls back as a unit, and WatchProgress delivers the live aggregate
  to in-process listeners after each committed mutation.

NOTIFICATION ORDER:
  Progress writes inside a batch are collected and flushed only after
  COMMIT succeeds, so listeners never observe rolled-back state.
*/
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// write runs fn under the writer lock and flushes watcher notifications
// for any progress records fn touched, after the lock is released.
func (s *Store) write(fn func(q *queries) error) error {
	s.mu.Lock()
	q := &queries{db: s.db, dirty: make(map[ledger.UserID]ledger.ProgressRecord)}
	err := fn(q)
	s.mu.Unlock()
	if err == nil {
		s.notify(q.dirty)
	}
	return err
}

func (s *Store) read(fn func(q *queries) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&queries{db: s.db})
}

// WithTx runs fn over a single database transaction. All writes fn makes
// through the provided Store commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("begin transaction: %w", err)
	}
	q := &queries{db: tx, dirty: make(map[ledger.UserID]ledger.ProgressRecord)}
	if err := fn(q); err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return err
	}
	if err := tx.Commit(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.mu.Unlock()
	s.notify(q.dirty)
	return nil
}

// =============================================================================
// PROGRESS LISTENERS
// =============================================================================

// WatchProgress subscribes to aggregate updates for one user. Sends are
// non-blocking: a listener that stops draining misses updates rather
// than stalling writers.
func (s *Store) WatchProgress(userID ledger.UserID) (<-chan ledger.ProgressRecord, func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	ch := make(chan ledger.ProgressRecord, 8)
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[int]chan ledger.ProgressRecord)
	}
	id := s.nextSub
	s.nextSub++
	s.watchers[userID][id] = ch

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if subs, ok := s.watchers[userID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(s.watchers, userID)
			}
		}
	}
	return ch, cancel
}

func (s *Store) notify(dirty map[ledger.UserID]ledger.ProgressRecord) {
	if len(dirty) == 0 {
		return
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for userID, rec := range dirty {
		for _, ch := range s.watchers[userID] {
			select {
			case ch <- rec:
			default:
			}
		}
	}
}

// =============================================================================
// LEDGER.STORE DELEGATION
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.GoldTransaction) error {
	return s.write(func(q *queries) error { return q.AppendTransaction(ctx, tx) })
}

func (s *Store) LoadTransactions(ctx context.Context, userID ledger.UserID) ([]ledger.GoldTransaction, error) {
	var out []ledger.GoldTransaction
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.LoadTransactions(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) DedupKeyExists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.read(func(q *queries) error {
		var err error
		ok, err = q.DedupKeyExists(ctx, key)
		return err
	})
	return ok, err
}

func (s *Store) GetProgress(ctx context.Context, userID ledger.UserID) (*ledger.ProgressRecord, error) {
	var rec *ledger.ProgressRecord
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetProgress(ctx, userID)
		return err
	})
	return rec, err
}

func (s *Store) PutProgress(ctx context.Context, rec ledger.ProgressRecord) error {
	return s.write(func(q *queries) error { return q.PutProgress(ctx, rec) })
}

func (s *Store) ApplyProgressDelta(ctx context.Context, userID ledger.UserID, delta ledger.ProgressDelta) (*ledger.ProgressRecord, error) {
	var rec *ledger.ProgressRecord
	err := s.write(func(q *queries) error {
		var err error
		rec, err = q.ApplyProgressDelta(ctx, userID, delta)
		return err
	})
	return rec, err
}

func (s *Store) DeleteProgress(ctx context.Context, userID ledger.UserID) error {
	return s.write(func(q *queries) error { return q.DeleteProgress(ctx, userID) })
}

func (s *Store) ListUserIDs(ctx context.Context) ([]ledger.UserID, error) {
	var out []ledger.UserID
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListUserIDs(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetDaily(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	var rec *ledger.DailyProgressRecord
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetDaily(ctx, userID, day)
		return err
	})
	return rec, err
}

func (s *Store) PutDaily(ctx context.Context, rec ledger.DailyProgressRecord) error {
	return s.write(func(q *queries) error { return q.PutDaily(ctx, rec) })
}

func (s *Store) MarkSettled(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay, at time.Time) error {
	return s.write(func(q *queries) error { return q.MarkSettled(ctx, userID, day, at) })
}

func (s *Store) ListDaily(ctx context.Context, userID ledger.UserID) ([]ledger.DailyProgressRecord, error) {
	var out []ledger.DailyProgressRecord
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListDaily(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) PutRedemption(ctx context.Context, r ledger.Redemption) error {
	return s.write(func(q *queries) error { return q.PutRedemption(ctx, r) })
}

func (s *Store) GetRedemption(ctx context.Context, id ledger.RedemptionID) (*ledger.Redemption, error) {
	var rec *ledger.Redemption
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetRedemption(ctx, id)
		return err
	})
	return rec, err
}

func (s *Store) ListRedemptions(ctx context.Context, userID ledger.UserID) ([]ledger.Redemption, error) {
	var out []ledger.Redemption
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListRedemptions(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) FindPendingRedemption(ctx context.Context, userID ledger.UserID, rewardID ledger.RewardID) (*ledger.Redemption, error) {
	var rec *ledger.Redemption
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.FindPendingRedemption(ctx, userID, rewardID)
		return err
	})
	return rec, err
}

func (s *Store) ResolveRedemption(ctx context.Context, id ledger.RedemptionID, status ledger.RedemptionStatus, approvedBy string, at time.Time) error {
	return s.write(func(q *queries) error { return q.ResolveRedemption(ctx, id, status, approvedBy, at) })
}

func (s *Store) PutTask(ctx context.Context, t ledger.Task) error {
	return s.write(func(q *queries) error { return q.PutTask(ctx, t) })
}

func (s *Store) GetTask(ctx context.Context, id ledger.TaskID) (*ledger.Task, error) {
	var rec *ledger.Task
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetTask(ctx, id)
		return err
	})
	return rec, err
}

func (s *Store) ListTasks(ctx context.Context, userID ledger.UserID) ([]ledger.Task, error) {
	var out []ledger.Task
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListTasks(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) RecordTaskCompletion(ctx context.Context, id ledger.TaskID, at time.Time) error {
	return s.write(func(q *queries) error { return q.RecordTaskCompletion(ctx, id, at) })
}

func (s *Store) PutReward(ctx context.Context, r ledger.Reward) error {
	return s.write(func(q *queries) error { return q.PutReward(ctx, r) })
}

func (s *Store) GetReward(ctx context.Context, id ledger.RewardID) (*ledger.Reward, error) {
	var rec *ledger.Reward
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetReward(ctx, id)
		return err
	})
	return rec, err
}

func (s *Store) ListRewards(ctx context.Context) ([]ledger.Reward, error) {
	var out []ledger.Reward
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListRewards(ctx)
		return err
	})
	return out, err
}

func (s *Store) PutAchievement(ctx context.Context, a ledger.Achievement) error {
	return s.write(func(q *queries) error { return q.PutAchievement(ctx, a) })
}

func (s *Store) ListAchievements(ctx context.Context, userID ledger.UserID) ([]ledger.Achievement, error) {
	var out []ledger.Achievement
	err := s.read(func(q *queries) error {
		var err error
		out, err = q.ListAchievements(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) GetPunishment(ctx context.Context, userID ledger.UserID) (*ledger.PunishmentMode, error) {
	var rec *ledger.PunishmentMode
	err := s.read(func(q *queries) error {
		var err error
		rec, err = q.GetPunishment(ctx, userID)
		return err
	})
	return rec, err
}

func (s *Store) PutPunishment(ctx context.Context, p ledger.PunishmentMode) error {
	return s.write(func(q *queries) error { return q.PutPunishment(ctx, p) })
}
