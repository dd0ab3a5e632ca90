/*
ledger.go - Recording gold transactions paired with aggregate updates

PURPOSE:
  The Ledger records every gold-affecting event as an immutable chained
  entry AND updates the live ProgressRecord in the same atomic batch.
  One without the other is a consistency defect, so RecordIn does both
  or neither.

BALANCE MODEL:
  BalanceBefore is derived from the live ProgressRecord at call time -
  the aggregate is the authoritative balance. The transaction chain is
  the reconciliation target: it may drift from the aggregate under
  racing writers, and recovery reports (never repairs) that drift.

ACCOUNTING RULES (conservation: Available == Earned - Spent):
  earned/bonus        credit  -> Available+, Earned+
  spent/penalty       debit   -> Available-, Spent+
  refund              credit  -> Available+, Spent-
  adjustment          signed  -> Available+-, Earned+ or Spent+ by sign

COMPOSITION:
  RecordIn operates on a Store already inside a batch, so settlement and
  redemption can combine a ledger entry with their own writes in one
  WithTx. Record is the standalone wrapper.

SEE ALSO:
  - store.go: atomicity and increment guarantees
  - recovery: drift detection over the recorded chain
*/
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER SERVICE
// =============================================================================

type Ledger struct {
	Store TxStore
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store}
}

// RecordInput describes one gold-affecting event.
type RecordInput struct {
	UserID       UserID
	Amount       Amount // signed gold delta
	Type         TransactionType
	Source       TransactionSource
	Description  string
	RelatedID    string
	RelatedTitle string
	Metadata     map[string]string

	// DedupKey makes the write idempotent. Settlement and backfill always
	// set one; ad-hoc credits may leave it empty.
	DedupKey string

	// XPDelta is applied to the aggregate alongside the gold movement,
	// e.g. task completions grant both. Zero means no XP change.
	XPDelta Amount

	// CreatedAt overrides the entry timestamp; used by historical backfill.
	CreatedAt time.Time
}

// Record writes the transaction and the paired progress update in one
// atomic batch.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*GoldTransaction, error) {
	var out *GoldTransaction
	err := l.Store.WithTx(ctx, func(s Store) error {
		tx, err := RecordIn(ctx, s, in)
		out = tx
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordIn is the batch-composable core of Record. The caller is
// responsible for running it inside WithTx.
func RecordIn(ctx context.Context, s Store, in RecordInput) (*GoldTransaction, error) {
	if in.Amount.Unit != UnitGold {
		return nil, fmt.Errorf("%w: amount must be gold", ErrValidation)
	}
	if in.DedupKey != "" {
		exists, err := s.DedupKeyExists(ctx, in.DedupKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateDedupKey
		}
	}

	prog, err := EnsureProgressIn(ctx, s, in.UserID)
	if err != nil {
		return nil, err
	}

	before := prog.AvailableGold
	after := before.Add(in.Amount)

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx := GoldTransaction{
		ID:            TransactionID(uuid.NewString()),
		UserID:        in.UserID,
		Amount:        in.Amount,
		Type:          in.Type,
		Source:        in.Source,
		Description:   in.Description,
		RelatedID:     in.RelatedID,
		RelatedTitle:  in.RelatedTitle,
		Metadata:      in.Metadata,
		DedupKey:      in.DedupKey,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     createdAt,
	}
	if err := s.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	delta := ProgressDelta{AvailableGold: in.Amount, TotalXP: in.XPDelta}
	switch in.Type {
	case TxEarned, TxBonus:
		delta.TotalGoldEarned = in.Amount
	case TxSpent, TxPenalty:
		delta.TotalGoldSpent = in.Amount.Neg()
	case TxRefund:
		delta.TotalGoldSpent = in.Amount.Neg() // negative: shrinks Spent
	case TxAdjustment:
		if in.Amount.IsNegative() {
			delta.TotalGoldSpent = in.Amount.Neg()
		} else {
			delta.TotalGoldEarned = in.Amount
		}
	}
	if _, err := s.ApplyProgressDelta(ctx, in.UserID, delta); err != nil {
		return nil, err
	}
	return &tx, nil
}

// =============================================================================
// OPERATION CONTRACT - credit / debit / xp
// =============================================================================

// CreditGold records a positive gold movement and returns the new balance.
func (l *Ledger) CreditGold(ctx context.Context, userID UserID, amount Amount, source TransactionSource, description, relatedID string) (Amount, error) {
	if !amount.IsPositive() {
		return Amount{}, fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}
	tx, err := l.Record(ctx, RecordInput{
		UserID:      userID,
		Amount:      amount,
		Type:        TypeForSource(source, amount),
		Source:      source,
		Description: description,
		RelatedID:   relatedID,
	})
	if err != nil {
		return Amount{}, err
	}
	return tx.BalanceAfter, nil
}

// DebitGold records a negative gold movement. Fails with
// InsufficientFundsError before any write when the balance is short.
func (l *Ledger) DebitGold(ctx context.Context, userID UserID, amount Amount, source TransactionSource, description, relatedID string) (Amount, error) {
	if !amount.IsPositive() {
		return Amount{}, fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}
	var after Amount
	err := l.Store.WithTx(ctx, func(s Store) error {
		prog, err := EnsureProgressIn(ctx, s, userID)
		if err != nil {
			return err
		}
		if prog.AvailableGold.LessThan(amount) {
			return &InsufficientFundsError{UserID: userID, Available: prog.AvailableGold, Requested: amount}
		}
		tx, err := RecordIn(ctx, s, RecordInput{
			UserID:      userID,
			Amount:      amount.Neg(),
			Type:        TypeForSource(source, amount.Neg()),
			Source:      source,
			Description: description,
			RelatedID:   relatedID,
		})
		if err != nil {
			return err
		}
		after = tx.BalanceAfter
		return nil
	})
	if err != nil {
		return Amount{}, err
	}
	return after, nil
}

// GrantXP adds positive XP to the aggregate. No ledger entry: the gold
// ledger records gold movements only.
func (l *Ledger) GrantXP(ctx context.Context, userID UserID, delta Amount) (*ProgressRecord, error) {
	if !delta.IsPositive() {
		return nil, fmt.Errorf("%w: xp grant must be positive", ErrValidation)
	}
	return l.adjustXP(ctx, userID, delta)
}

// AdminAdjustXP applies a signed XP correction. The only path that may
// take XP away.
func (l *Ledger) AdminAdjustXP(ctx context.Context, userID UserID, delta Amount) (*ProgressRecord, error) {
	return l.adjustXP(ctx, userID, delta)
}

func (l *Ledger) adjustXP(ctx context.Context, userID UserID, delta Amount) (*ProgressRecord, error) {
	if delta.Unit != UnitXP {
		return nil, fmt.Errorf("%w: delta must be xp", ErrValidation)
	}
	var out *ProgressRecord
	err := l.Store.WithTx(ctx, func(s Store) error {
		if _, err := EnsureProgressIn(ctx, s, userID); err != nil {
			return err
		}
		rec, err := s.ApplyProgressDelta(ctx, userID, ProgressDelta{TotalXP: delta})
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProgress returns the aggregate, creating the all-zero record on
// first access (first login).
func (l *Ledger) GetProgress(ctx context.Context, userID UserID) (*ProgressRecord, error) {
	var out *ProgressRecord
	err := l.Store.WithTx(ctx, func(s Store) error {
		rec, err := EnsureProgressIn(ctx, s, userID)
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureProgressIn fetches the aggregate, lazily creating it at zero.
func EnsureProgressIn(ctx context.Context, s Store, userID UserID) (*ProgressRecord, error) {
	rec, err := s.GetProgress(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	fresh := NewProgressRecord(userID)
	if err := s.PutProgress(ctx, fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// =============================================================================
// QUERY - Lazy, filtered, restartable reads
// =============================================================================

// Filter narrows a transaction query. Zero fields match everything.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Type   TransactionType
	Source TransactionSource
	Offset int
	Limit  int // 0 = no limit
}

func (f Filter) matches(tx GoldTransaction) bool {
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Source != "" && tx.Source != f.Source {
		return false
	}
	return true
}

// Query returns matching transactions ordered by CreatedAt descending.
// Pure read; Offset/Limit make the sequence restartable.
func (l *Ledger) Query(ctx context.Context, userID UserID, f Filter) ([]GoldTransaction, error) {
	all, err := l.Store.LoadTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []GoldTransaction
	for _, tx := range all {
		if f.matches(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// =============================================================================
// RECONSTRUCTION - Replay the chain and report breaks
// =============================================================================

// ChainBreak marks one entry whose BalanceBefore did not match the
// running balance at that point.
type ChainBreak struct {
	Index         int
	TransactionID TransactionID
	Expected      Amount // running balance before the entry
	Found         Amount // the entry's recorded BalanceBefore
}

// ReplayResult is the outcome of ReconstructBalance.
type ReplayResult struct {
	UserID       UserID
	FinalBalance Amount // recomputed from zero
	Entries      int
	Breaks       []ChainBreak
}

// ReconstructBalance replays all transactions in ascending CreatedAt
// order, recomputing a running balance from zero. Breaks are reported,
// never auto-corrected.
func (l *Ledger) ReconstructBalance(ctx context.Context, userID UserID) (*ReplayResult, error) {
	txs, err := l.Store.LoadTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &ReplayResult{UserID: userID, FinalBalance: ZeroGold(), Entries: len(txs)}
	running := ZeroGold()
	for i, tx := range txs {
		if !tx.BalanceBefore.Equal(running) {
			result.Breaks = append(result.Breaks, ChainBreak{
				Index:         i,
				TransactionID: tx.ID,
				Expected:      running,
				Found:         tx.BalanceBefore,
			})
			// Continue from the entry's own view so one bad entry does
			// not cascade into a break on every later entry.
			running = tx.BalanceBefore
		}
		running = running.Add(tx.Amount)
	}
	result.FinalBalance = running
	return result, nil
}

// =============================================================================
// DEDUP KEYS - Content-addressed idempotency
// =============================================================================

// DedupKey derives the content-addressed idempotency key for an event.
// The live recording path and the historical backfill derive keys
// identically, so a migration run after live recording skips the same
// events it would otherwise duplicate.
func DedupKey(userID UserID, collection, docID, kind string) string {
	sum := sha256.Sum256([]byte(string(userID) + "|" + collection + "|" + docID + "|" + kind))
	return hex.EncodeToString(sum[:])
}
