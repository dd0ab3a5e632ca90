package redemption_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/redemption"
	"github.com/heitormissions/ledger-engine/settlement"
	"github.com/heitormissions/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================
// The workflow runs against the real SQLite store so the conditional
// writes (ResolveRedemption, the pending unique index) get exercised.

func newTestWorkflow(t *testing.T) (*redemption.Workflow, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return redemption.NewWorkflow(store), store
}

func seedReward(t *testing.T, s ledger.Store, id string, cost int64, level int) {
	t.Helper()
	require.NoError(t, s.PutReward(context.Background(), ledger.Reward{
		ID:            ledger.RewardID(id),
		Title:         id,
		CostGold:      ledger.Gold(cost),
		RequiredLevel: level,
		Active:        true,
		CreatedAt:     time.Now().AddDate(0, 0, -1),
	}))
}

// fundAndQualify gives the user gold and enough completed tasks today to
// pass the daily-task gate.
func fundAndQualify(t *testing.T, store ledger.TxStore, gold int64) {
	t.Helper()
	ctx := context.Background()

	l := ledger.NewLedger(store)
	if gold > 0 {
		_, err := l.CreditGold(ctx, "heitor", ledger.Gold(gold), ledger.SourceQuiz, "", "")
		require.NoError(t, err)
	}

	engine := settlement.NewEngine(store)
	now := time.Now()
	for i := 0; i < redemption.DefaultMinDailyTasks; i++ {
		id := ledger.TaskID(string(rune('a' + i)))
		require.NoError(t, store.PutTask(ctx, ledger.Task{
			ID: id, UserID: "heitor", Title: string(id),
			XPReward: ledger.XP(0), GoldReward: ledger.Gold(0),
			Frequency: ledger.FrequencyDaily, Active: true,
			CreatedAt: now.AddDate(0, 0, -1),
		}))
		_, err := engine.CompleteTask(ctx, "heitor", id, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
}

func gold(t *testing.T, s ledger.Store) int64 {
	t.Helper()
	rec, err := s.GetProgress(context.Background(), "heitor")
	require.NoError(t, err)
	return rec.AvailableGold.Int64()
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequest_DebitsImmediately(t *testing.T) {
	// GIVEN: 50 gold and a 30-gold reward, gates satisfied
	// WHEN: Requesting the reward
	// THEN: Redemption is pending and the gold is already gone

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 30, 0)
	fundAndQualify(t, store, 50)

	red, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)
	assert.Equal(t, ledger.RedemptionPending, red.Status)
	assert.EqualValues(t, 30, red.CostGold.Int64())
	assert.EqualValues(t, 20, gold(t, store))

	txs, err := store.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	last := txs[len(txs)-1]
	assert.Equal(t, ledger.TxSpent, last.Type)
	assert.Equal(t, ledger.SourceRewardRedemption, last.Source)
}

func TestRequest_InsufficientFunds_Rejected(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "bike", 500, 0)
	fundAndQualify(t, store, 50)

	_, err := w.Request(ctx, "heitor", "bike")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.EqualValues(t, 50, gold(t, store))
}

func TestRequest_LevelGate(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "videogame", 10, 5)
	fundAndQualify(t, store, 50)

	_, err := w.Request(ctx, "heitor", "videogame")
	assert.ErrorIs(t, err, ledger.ErrLevelTooLow)
}

func TestRequest_DailyTaskGate(t *testing.T) {
	// GIVEN: Plenty of gold but no tasks completed today
	// THEN: The daily-task gate blocks the purchase

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)

	l := ledger.NewLedger(store)
	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(50), ledger.SourceQuiz, "", "")
	require.NoError(t, err)

	_, err = w.Request(ctx, "heitor", "ice-cream")
	assert.ErrorIs(t, err, ledger.ErrDailyTaskGate)
}

func TestRequest_SecondPendingForSameReward_Rejected(t *testing.T) {
	// GIVEN: A pending redemption for a reward
	// WHEN: Requesting the same reward again
	// THEN: Rejected, and only one debit happened

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)
	fundAndQualify(t, store, 50)

	_, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)

	_, err = w.Request(ctx, "heitor", "ice-cream")
	assert.ErrorIs(t, err, ledger.ErrPendingRedemptionExists)
	assert.EqualValues(t, 40, gold(t, store))
}

func TestRequest_InactiveReward_Rejected(t *testing.T) {
	ctx := context.Background()
	w, store := newTestWorkflow(t)
	require.NoError(t, store.PutReward(ctx, ledger.Reward{
		ID: "retired", Title: "retired", CostGold: ledger.Gold(5),
		Active: false, CreatedAt: time.Now(),
	}))
	fundAndQualify(t, store, 50)

	_, err := w.Request(ctx, "heitor", "retired")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRequest_UnknownReward_NotFound(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorkflow(t)

	_, err := w.Request(ctx, "heitor", "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_Approved_CountsRedemption(t *testing.T) {
	// GIVEN: A pending redemption (gold already debited)
	// WHEN: Approving
	// THEN: RewardsRedeemed increments, gold stays debited

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)
	fundAndQualify(t, store, 50)

	red, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)

	resolved, err := w.Resolve(ctx, red.ID, true, "mom")
	require.NoError(t, err)
	assert.Equal(t, ledger.RedemptionApproved, resolved.Status)
	assert.Equal(t, "mom", resolved.ApprovedBy)
	require.NotNil(t, resolved.ResolvedAt)

	rec, err := store.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RewardsRedeemed)
	assert.EqualValues(t, 40, rec.AvailableGold.Int64())
}

func TestResolve_Rejected_RefundsInFull(t *testing.T) {
	// GIVEN: A pending redemption for 10 gold
	// WHEN: Rejecting
	// THEN: Gold returns, spent total shrinks, a refund entry exists

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)
	fundAndQualify(t, store, 50)
	before := gold(t, store)

	red, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)

	resolved, err := w.Resolve(ctx, red.ID, false, "dad")
	require.NoError(t, err)
	assert.Equal(t, ledger.RedemptionRejected, resolved.Status)
	assert.Equal(t, before, gold(t, store))

	rec, err := store.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.RewardsRedeemed)

	txs, err := store.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	last := txs[len(txs)-1]
	assert.Equal(t, ledger.TxRefund, last.Type)
	assert.Equal(t, ledger.SourceRedemptionRefund, last.Source)
}

func TestResolve_Terminal_Rejected(t *testing.T) {
	// GIVEN: An approved redemption
	// WHEN: Resolving again (either way)
	// THEN: ErrNotPending; no double refund is possible

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)
	fundAndQualify(t, store, 50)

	red, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)
	_, err = w.Resolve(ctx, red.ID, true, "mom")
	require.NoError(t, err)

	_, err = w.Resolve(ctx, red.ID, false, "dad")
	assert.ErrorIs(t, err, ledger.ErrNotPending)

	var notPending *ledger.NotPendingError
	require.ErrorAs(t, err, &notPending)
	assert.Equal(t, ledger.RedemptionApproved, notPending.Status)

	assert.EqualValues(t, 40, gold(t, store), "no refund after approval")
}

func TestResolve_UnknownRedemption_NotFound(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorkflow(t)

	_, err := w.Resolve(ctx, "missing", true, "mom")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRequest_AfterRejection_SameRewardAllowedAgain(t *testing.T) {
	// Rejected history must not block a fresh attempt.

	ctx := context.Background()
	w, store := newTestWorkflow(t)
	seedReward(t, store, "ice-cream", 10, 0)
	fundAndQualify(t, store, 50)

	red, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)
	_, err = w.Resolve(ctx, red.ID, false, "dad")
	require.NoError(t, err)

	again, err := w.Request(ctx, "heitor", "ice-cream")
	require.NoError(t, err)
	assert.NotEqual(t, red.ID, again.ID)
}
