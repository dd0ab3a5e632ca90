package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/ledger/store"
)

// =============================================================================
// BATCH ATOMICITY
// =============================================================================

func TestWithTx_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: A batch that appends an entry and updates progress, then fails
	// THEN: Neither write survives

	ctx := context.Background()
	mem := store.NewTxMemory()
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(s ledger.Store) error {
		if err := s.AppendTransaction(ctx, ledger.GoldTransaction{
			ID: "t1", UserID: "heitor", Amount: ledger.Gold(10),
			Type: ledger.TxEarned, Source: ledger.SourceQuiz,
			DedupKey:  "k1",
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if err := s.PutProgress(ctx, ledger.ProgressRecord{
			UserID: "heitor", Level: 1, AvailableGold: ledger.Gold(10),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txs, err := mem.LoadTransactions(ctx, "heitor")
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = mem.GetProgress(ctx, "heitor")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	exists, err := mem.DedupKeyExists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists, "dedup key from the rolled-back batch is free again")
}

func TestWithTx_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()

	err := mem.WithTx(ctx, func(s ledger.Store) error {
		return s.PutProgress(ctx, ledger.ProgressRecord{UserID: "heitor", Level: 1})
	})
	require.NoError(t, err)

	rec, err := mem.GetProgress(ctx, "heitor")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Level)
}

// =============================================================================
// PROGRESS LISTENERS
// =============================================================================

func TestWatchProgress_DeliversCommittedState(t *testing.T) {
	// GIVEN: A subscriber
	// WHEN: A ledger write commits
	// THEN: The subscriber sees the post-commit aggregate

	ctx := context.Background()
	mem := store.NewTxMemory()
	updates, cancel := mem.WatchProgress("heitor")
	defer cancel()

	l := ledger.NewLedger(mem)
	_, err := l.CreditGold(ctx, "heitor", ledger.Gold(25), ledger.SourceQuiz, "", "")
	require.NoError(t, err)

	select {
	case rec := <-updates:
		assert.EqualValues(t, 25, rec.AvailableGold.Int64())
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestWatchProgress_NoDeliveryOnRollback(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	updates, cancel := mem.WatchProgress("heitor")
	defer cancel()

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s ledger.Store) error {
		if err := s.PutProgress(ctx, ledger.ProgressRecord{UserID: "heitor", Level: 3}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	select {
	case rec := <-updates:
		t.Fatalf("rolled-back state leaked to listener: %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchProgress_CancelClosesChannel(t *testing.T) {
	mem := store.NewTxMemory()
	updates, cancel := mem.WatchProgress("heitor")
	cancel()

	_, open := <-updates
	assert.False(t, open)

	// writes after cancel must not panic on the closed channel
	require.NoError(t, mem.PutProgress(context.Background(), ledger.ProgressRecord{UserID: "heitor", Level: 1}))
}

// =============================================================================
// RESET
// =============================================================================

func TestDeleteProgress_FullReset(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	require.NoError(t, mem.PutProgress(ctx, ledger.ProgressRecord{UserID: "heitor", Level: 2}))

	users, err := mem.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, users, ledger.UserID("heitor"))

	require.NoError(t, mem.DeleteProgress(ctx, "heitor"))
	_, err = mem.GetProgress(ctx, "heitor")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
