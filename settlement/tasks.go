/*
tasks.go - Task completion: the main earn path

Completing a task records the completion timestamp, credits the task's
gold and XP, bumps the completion counter, and maintains the streak -
all in one batch so the ledger entry and the aggregate never diverge.

STREAK RULE:
  First completion of a day extends the streak when the previous activity
  was yesterday, restarts it at 1 after a gap. Repeat completions on the
  same day leave it unchanged.
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// CompleteTask records one task completion and its rewards.
func (e *Engine) CompleteTask(ctx context.Context, userID ledger.UserID, taskID ledger.TaskID, at time.Time) (*ledger.GoldTransaction, error) {
	var out *ledger.GoldTransaction
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		task, err := s.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if !task.Active {
			return fmt.Errorf("%w: task %s is inactive", ledger.ErrValidation, taskID)
		}

		prog, err := ledger.EnsureProgressIn(ctx, s, userID)
		if err != nil {
			return err
		}

		if err := s.RecordTaskCompletion(ctx, taskID, at); err != nil {
			return err
		}

		day := ledger.DayOf(at)
		streak := streakAfter(prog, day)

		tx, err := ledger.RecordIn(ctx, s, ledger.RecordInput{
			UserID:       userID,
			Amount:       task.GoldReward,
			Type:         ledger.TxEarned,
			Source:       ledger.SourceTaskCompletion,
			Description:  fmt.Sprintf("completed task: %s", task.Title),
			RelatedID:    string(task.ID),
			RelatedTitle: task.Title,
			XPDelta:      task.XPReward,
			DedupKey:     ledger.DedupKey(userID, "tasks", fmt.Sprintf("%s@%d", task.ID, at.Unix()), "task_completion"),
		})
		if err != nil {
			return err
		}
		out = tx

		_, err = s.ApplyProgressDelta(ctx, userID, ledger.ProgressDelta{
			TotalTasksCompleted: 1,
			Streak:              &streak,
			LastActivityDate:    day,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func streakAfter(prog *ledger.ProgressRecord, day ledger.CalendarDay) int {
	switch {
	case prog.LastActivityDate.Equal(day):
		return prog.Streak
	case prog.LastActivityDate.Equal(day.AddDays(-1)):
		return prog.Streak + 1
	default:
		return 1
	}
}

// CompletedToday counts the user's task completions on the given day.
// The redemption workflow uses this for its minimum-daily-tasks gate.
func CompletedToday(ctx context.Context, s ledger.Store, userID ledger.UserID, day ledger.CalendarDay) (int, error) {
	tasks, err := s.ListTasks(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range tasks {
		for _, at := range t.Completions {
			if day.Contains(at) {
				count++
			}
		}
	}
	return count, nil
}
