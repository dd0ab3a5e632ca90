package punishment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/ledger/store"
	"github.com/heitormissions/ledger-engine/punishment"
)

func newTestTracker() *punishment.Tracker {
	return punishment.NewTracker(store.NewTxMemory())
}

// =============================================================================
// ACTIVATION
// =============================================================================

func TestActivate_StartsMode(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	mode, err := tracker.Activate(ctx, "heitor", "broke curfew", now)
	require.NoError(t, err)
	assert.True(t, mode.IsActive)
	assert.Equal(t, "broke curfew", mode.Reason)
	assert.Equal(t, ledger.PunishmentTasksRequired, mode.TasksRequired)
	assert.Equal(t, now.Add(ledger.PunishmentDuration), mode.EndDate)

	active, err := tracker.Active(ctx, "heitor")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 0, active.TasksCompleted)
}

func TestActivate_RequiresReason(t *testing.T) {
	tracker := newTestTracker()

	_, err := tracker.Activate(context.Background(), "heitor", "", time.Now())
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestActivate_WhileActive_Rejected(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	_, err := tracker.Activate(ctx, "heitor", "broke curfew", now)
	require.NoError(t, err)

	_, err = tracker.Activate(ctx, "heitor", "again", now.Add(time.Hour))
	assert.ErrorIs(t, err, ledger.ErrPunishmentActive)
}

func TestActivate_AfterRelease_Allowed(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	_, err := tracker.Activate(ctx, "heitor", "first", now)
	require.NoError(t, err)
	released, err := tracker.CheckRelease(ctx, "heitor", now.Add(ledger.PunishmentDuration))
	require.NoError(t, err)
	require.True(t, released)

	mode, err := tracker.Activate(ctx, "heitor", "second", now.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "second", mode.Reason)
}

// =============================================================================
// TASK COUNTING
// =============================================================================

func TestCompleteTask_CountsAndRateLimits(t *testing.T) {
	// GIVEN: An active mode with one task just completed
	// WHEN: Completing another inside the 30-minute cooldown
	// THEN: Rate limited; after the cooldown it counts

	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	_, err := tracker.Activate(ctx, "heitor", "broke curfew", now)
	require.NoError(t, err)

	mode, err := tracker.CompleteTask(ctx, "heitor", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, mode.TasksCompleted)
	assert.True(t, mode.IsActive)

	_, err = tracker.CompleteTask(ctx, "heitor", now.Add(10*time.Minute))
	assert.ErrorIs(t, err, ledger.ErrRateLimited)

	mode, err = tracker.CompleteTask(ctx, "heitor", now.Add(time.Minute+ledger.PunishmentTaskCooldown))
	require.NoError(t, err)
	assert.Equal(t, 2, mode.TasksCompleted)
}

func TestCompleteTask_NoActiveMode_NotFound(t *testing.T) {
	tracker := newTestTracker()

	_, err := tracker.CompleteTask(context.Background(), "heitor", time.Now())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCompleteTask_ThirtiethTaskReleases(t *testing.T) {
	// GIVEN: An active mode with 29 tasks done
	// WHEN: Completing the 30th
	// THEN: The mode deactivates in the same write

	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	_, err := tracker.Activate(ctx, "heitor", "broke curfew", now)
	require.NoError(t, err)

	at := now
	var mode *ledger.PunishmentMode
	for i := 0; i < ledger.PunishmentTasksRequired; i++ {
		at = at.Add(ledger.PunishmentTaskCooldown)
		mode, err = tracker.CompleteTask(ctx, "heitor", at)
		require.NoError(t, err)
	}
	assert.Equal(t, ledger.PunishmentTasksRequired, mode.TasksCompleted)
	assert.False(t, mode.IsActive)

	active, err := tracker.Active(ctx, "heitor")
	require.NoError(t, err)
	assert.Nil(t, active)
}

// =============================================================================
// TIMED RELEASE
// =============================================================================

func TestCheckRelease_AfterSevenDays(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker()
	now := time.Now()

	_, err := tracker.Activate(ctx, "heitor", "broke curfew", now)
	require.NoError(t, err)

	released, err := tracker.CheckRelease(ctx, "heitor", now.Add(ledger.PunishmentDuration-time.Second))
	require.NoError(t, err)
	assert.False(t, released, "still inside the window")

	released, err = tracker.CheckRelease(ctx, "heitor", now.Add(ledger.PunishmentDuration))
	require.NoError(t, err)
	assert.True(t, released)

	active, err := tracker.Active(ctx, "heitor")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCheckRelease_NoMode_NoOp(t *testing.T) {
	// Timer sweeps hit every user; missing modes must not error.
	tracker := newTestTracker()

	released, err := tracker.CheckRelease(context.Background(), "heitor", time.Now())
	require.NoError(t, err)
	assert.False(t, released)
}
