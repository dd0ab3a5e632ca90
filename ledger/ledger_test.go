package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger() *ledger.Ledger {
	return ledger.NewLedger(store.NewTxMemory())
}

func requireConservation(t *testing.T, rec *ledger.ProgressRecord) {
	t.Helper()
	want := rec.TotalGoldEarned.Sub(rec.TotalGoldSpent)
	assert.True(t, rec.AvailableGold.Equal(want),
		"available (%s) should equal earned (%s) - spent (%s)",
		rec.AvailableGold, rec.TotalGoldEarned, rec.TotalGoldSpent)
}

// =============================================================================
// CREDIT / DEBIT
// =============================================================================

func TestLedger_CreditGold_CreatesEntryAndUpdatesAggregate(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: Crediting 50 gold
	// THEN: Balance is 50, one chained entry exists, conservation holds

	ctx := context.Background()
	l := newTestLedger()

	balance, err := l.CreditGold(ctx, "heitor", ledger.Gold(50), ledger.SourceQuiz, "quiz reward", "quiz-1")
	require.NoError(t, err)
	assert.EqualValues(t, 50, balance.Int64())

	txs, err := l.Store.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.EqualValues(t, 0, txs[0].BalanceBefore.Int64())
	assert.EqualValues(t, 50, txs[0].BalanceAfter.Int64())
	assert.Equal(t, ledger.TxEarned, txs[0].Type)

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	requireConservation(t, rec)
	assert.EqualValues(t, 50, rec.TotalGoldEarned.Int64())
}

func TestLedger_DebitGold_InsufficientFunds_NothingWritten(t *testing.T) {
	// GIVEN: A user with 10 gold
	// WHEN: Debiting 25 gold
	// THEN: Typed error, no entry appended, balance unchanged

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(10), ledger.SourceQuiz, "", "")
	require.NoError(t, err)

	_, err = l.DebitGold(ctx, "heitor", ledger.Gold(25), ledger.SourceRewardRedemption, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	var fundsErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.EqualValues(t, 10, fundsErr.Available.Int64())
	assert.EqualValues(t, 25, fundsErr.Requested.Int64())

	txs, err := l.Store.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "failed debit must not append an entry")

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.AvailableGold.Int64())
}

func TestLedger_DebitGold_ExactBalance_Allowed(t *testing.T) {
	// GIVEN: A user with 30 gold
	// WHEN: Debiting exactly 30
	// THEN: Succeeds and balance reaches zero

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(30), ledger.SourceQuiz, "", "")
	require.NoError(t, err)

	balance, err := l.DebitGold(ctx, "heitor", ledger.Gold(30), ledger.SourceRewardRedemption, "", "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance.Int64())

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	requireConservation(t, rec)
	assert.EqualValues(t, 30, rec.TotalGoldSpent.Int64())
}

func TestLedger_CreditGold_NonPositiveAmount_Rejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(0), ledger.SourceQuiz, "", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.CreditGold(ctx, "heitor", ledger.Gold(-5), ledger.SourceQuiz, "", "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedger_ChainedBalances_AcrossEntries(t *testing.T) {
	// GIVEN: A sequence of credits and debits
	// THEN: Every entry's BalanceBefore equals the previous BalanceAfter

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(20), ledger.SourceQuiz, "", "")
	require.NoError(t, err)
	_, err = l.CreditGold(ctx, "heitor", ledger.Gold(15), ledger.SourceSurpriseMission, "", "")
	require.NoError(t, err)
	_, err = l.DebitGold(ctx, "heitor", ledger.Gold(10), ledger.SourceRewardRedemption, "", "")
	require.NoError(t, err)

	txs, err := l.Store.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i := 1; i < len(txs); i++ {
		assert.True(t, txs[i].BalanceBefore.Equal(txs[i-1].BalanceAfter),
			"entry %d BalanceBefore should chain from entry %d", i, i-1)
	}
	assert.EqualValues(t, 25, txs[2].BalanceAfter.Int64())
}

// =============================================================================
// XP AND LEVELS
// =============================================================================

func TestLedger_GrantXP_RaisesLevel(t *testing.T) {
	// GIVEN: A fresh user at level 1
	// WHEN: Granting 100 XP (the cost of reaching level 2)
	// THEN: Level becomes 2

	ctx := context.Background()
	l := newTestLedger()

	rec, err := l.GrantXP(ctx, "heitor", ledger.XP(100))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Level)
	assert.EqualValues(t, 100, rec.TotalXP.Int64())
}

func TestLedger_AdminAdjustXP_NegativeDelta_FloorsAtZero(t *testing.T) {
	// GIVEN: A user with 50 XP
	// WHEN: Admin removes 80 XP
	// THEN: XP floors at 0 and level recomputes to 1

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.GrantXP(ctx, "heitor", ledger.XP(50))
	require.NoError(t, err)

	rec, err := l.AdminAdjustXP(ctx, "heitor", ledger.XP(-80))
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.TotalXP.Int64())
	assert.Equal(t, 1, rec.Level)
}

func TestLedger_GrantXP_NegativeDelta_Rejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.GrantXP(ctx, "heitor", ledger.XP(-10))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// ADJUSTMENT ACCOUNTING
// =============================================================================

func TestLedger_Adjustment_SignDrivesEarnedOrSpent(t *testing.T) {
	// GIVEN: Positive then negative adjustments
	// THEN: Positive counts as earned, negative as spent, conservation holds

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.Record(ctx, ledger.RecordInput{
		UserID: "heitor",
		Amount: ledger.Gold(40),
		Type:   ledger.TxAdjustment,
		Source: ledger.SourceAdminAdjustment,
	})
	require.NoError(t, err)

	_, err = l.Record(ctx, ledger.RecordInput{
		UserID: "heitor",
		Amount: ledger.Gold(-15),
		Type:   ledger.TxAdjustment,
		Source: ledger.SourceAdminAdjustment,
	})
	require.NoError(t, err)

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.EqualValues(t, 40, rec.TotalGoldEarned.Int64())
	assert.EqualValues(t, 15, rec.TotalGoldSpent.Int64())
	assert.EqualValues(t, 25, rec.AvailableGold.Int64())
	requireConservation(t, rec)
}

func TestLedger_Refund_ShrinksSpentTotal(t *testing.T) {
	// GIVEN: A user who earned 50 and spent 20
	// WHEN: Refunding the 20
	// THEN: Spent shrinks back to 0 and balance returns to 50

	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(50), ledger.SourceQuiz, "", "")
	require.NoError(t, err)
	_, err = l.DebitGold(ctx, "heitor", ledger.Gold(20), ledger.SourceRewardRedemption, "", "")
	require.NoError(t, err)

	_, err = l.Record(ctx, ledger.RecordInput{
		UserID: "heitor",
		Amount: ledger.Gold(20),
		Type:   ledger.TxRefund,
		Source: ledger.SourceRedemptionRefund,
	})
	require.NoError(t, err)

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.EqualValues(t, 50, rec.AvailableGold.Int64())
	assert.EqualValues(t, 0, rec.TotalGoldSpent.Int64())
	requireConservation(t, rec)
}

// =============================================================================
// DEDUP KEYS
// =============================================================================

func TestLedger_DedupKey_SecondWriteRejected(t *testing.T) {
	// GIVEN: An entry recorded with a dedup key
	// WHEN: Recording the same logical event again
	// THEN: ErrDuplicateDedupKey, aggregate unaffected

	ctx := context.Background()
	l := newTestLedger()
	key := ledger.DedupKey("heitor", "tasks", "task-1@1000", "task_completion")

	in := ledger.RecordInput{
		UserID:   "heitor",
		Amount:   ledger.Gold(5),
		Type:     ledger.TxEarned,
		Source:   ledger.SourceTaskCompletion,
		DedupKey: key,
	}
	_, err := l.Record(ctx, in)
	require.NoError(t, err)

	_, err = l.Record(ctx, in)
	assert.ErrorIs(t, err, ledger.ErrDuplicateDedupKey)

	rec, err := l.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.AvailableGold.Int64(), "duplicate must not double-credit")
}

func TestDedupKey_Deterministic(t *testing.T) {
	a := ledger.DedupKey("u1", "tasks", "t1@99", "task_completion")
	b := ledger.DedupKey("u1", "tasks", "t1@99", "task_completion")
	c := ledger.DedupKey("u1", "tasks", "t1@100", "task_completion")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

// =============================================================================
// QUERY
// =============================================================================

func TestLedger_Query_FiltersAndPagination(t *testing.T) {
	// GIVEN: Entries from two sources over several timestamps
	// THEN: Source filter, time window, offset and limit all narrow correctly

	ctx := context.Background()
	l := newTestLedger()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		src := ledger.SourceQuiz
		if i%2 == 1 {
			src = ledger.SourceSurpriseMission
		}
		_, err := l.Record(ctx, ledger.RecordInput{
			UserID:    "heitor",
			Amount:    ledger.Gold(1),
			Type:      ledger.TxEarned,
			Source:    src,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	quiz, err := l.Query(ctx, "heitor", ledger.Filter{Source: ledger.SourceQuiz})
	require.NoError(t, err)
	assert.Len(t, quiz, 3)

	from := base.Add(90 * time.Minute)
	windowed, err := l.Query(ctx, "heitor", ledger.Filter{From: &from})
	require.NoError(t, err)
	assert.Len(t, windowed, 3)

	page, err := l.Query(ctx, "heitor", ledger.Filter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Descending order: offset 1 skips the newest entry.
	assert.True(t, page[0].CreatedAt.Equal(base.Add(3*time.Hour)))

	past, err := l.Query(ctx, "heitor", ledger.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

// =============================================================================
// RECONSTRUCTION
// =============================================================================

func TestLedger_ReconstructBalance_CleanChain(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(70), ledger.SourceQuiz, "", "")
	require.NoError(t, err)
	_, err = l.DebitGold(ctx, "heitor", ledger.Gold(30), ledger.SourceRewardRedemption, "", "")
	require.NoError(t, err)

	result, err := l.ReconstructBalance(ctx, "heitor")
	require.NoError(t, err)
	assert.Empty(t, result.Breaks)
	assert.Equal(t, 2, result.Entries)
	assert.EqualValues(t, 40, result.FinalBalance.Int64())
}

func TestLedger_ReconstructBalance_ReportsBreakWithoutCascade(t *testing.T) {
	// GIVEN: A chain where one entry's BalanceBefore disagrees with the
	//        running balance (externally corrupted history)
	// WHEN: Replaying
	// THEN: Exactly one break is reported, not one per later entry

	ctx := context.Background()
	mem := store.NewTxMemory()
	l := ledger.NewLedger(mem)
	now := time.Now()

	entries := []ledger.GoldTransaction{
		{ID: "t1", UserID: "heitor", Amount: ledger.Gold(10), Type: ledger.TxEarned,
			Source: ledger.SourceQuiz, BalanceBefore: ledger.Gold(0), BalanceAfter: ledger.Gold(10), CreatedAt: now},
		// Break: claims balance was 99 when the chain says 10.
		{ID: "t2", UserID: "heitor", Amount: ledger.Gold(5), Type: ledger.TxEarned,
			Source: ledger.SourceQuiz, BalanceBefore: ledger.Gold(99), BalanceAfter: ledger.Gold(104), CreatedAt: now.Add(time.Minute)},
		{ID: "t3", UserID: "heitor", Amount: ledger.Gold(1), Type: ledger.TxEarned,
			Source: ledger.SourceQuiz, BalanceBefore: ledger.Gold(104), BalanceAfter: ledger.Gold(105), CreatedAt: now.Add(2 * time.Minute)},
	}
	for _, tx := range entries {
		require.NoError(t, mem.AppendTransaction(ctx, tx))
	}

	result, err := l.ReconstructBalance(ctx, "heitor")
	require.NoError(t, err)
	require.Len(t, result.Breaks, 1)
	assert.Equal(t, 1, result.Breaks[0].Index)
	assert.EqualValues(t, 10, result.Breaks[0].Expected.Int64())
	assert.EqualValues(t, 99, result.Breaks[0].Found.Int64())
	assert.EqualValues(t, 105, result.FinalBalance.Int64())
}

// =============================================================================
// LAZY AGGREGATE CREATION
// =============================================================================

func TestLedger_GetProgress_CreatesZeroRecordOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	rec, err := l.GetProgress(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Level)
	assert.EqualValues(t, 0, rec.AvailableGold.Int64())
	assert.EqualValues(t, 0, rec.TotalXP.Int64())

	// Second read returns the persisted record, not a new one.
	again, err := l.GetProgress(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, rec.UserID, again.UserID)
}
