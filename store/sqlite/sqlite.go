/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore and ledger.WatchStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements touch gold_transactions. Corrections
  are new adjustment entries.

CONDITIONAL WRITES:
  MarkSettled and ResolveRedemption are single UPDATE statements guarded
  by the expected current state; zero rows affected means the guard
  failed and the typed error is returned. A partial unique index also
  enforces at most one pending redemption per (user, reward).

BATCHES:
  WithTx wraps fn in a database transaction. Progress watcher
  notifications collected during the batch flush only after commit.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

AMOUNT ENCODING:
  Amounts are stored as decimal strings (TEXT), never floats.

USAGE:
  store, err := sqlite.New("./data/missions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/heitormissions/ledger-engine/ledger"
)

// Store implements ledger.TxStore and ledger.WatchStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	watchMu  sync.Mutex
	watchers map[ledger.UserID]map[int]chan ledger.ProgressRecord
	nextSub  int
}

var (
	_ ledger.TxStore    = (*Store)(nil)
	_ ledger.WatchStore = (*Store)(nil)
)

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise open its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	s := &Store{
		db:       db,
		watchers: make(map[ledger.UserID]map[int]chan ledger.ProgressRecord),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Gold transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS gold_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		source TEXT NOT NULL,
		description TEXT,
		related_id TEXT,
		related_title TEXT,
		metadata TEXT,
		dedup_key TEXT UNIQUE,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gold_transactions_user_created
		ON gold_transactions(user_id, created_at);

	-- Progress aggregate (one row per user)
	CREATE TABLE IF NOT EXISTS progress (
		user_id TEXT PRIMARY KEY,
		level INTEGER NOT NULL,
		total_xp TEXT NOT NULL,
		available_gold TEXT NOT NULL,
		total_gold_earned TEXT NOT NULL,
		total_gold_spent TEXT NOT NULL,
		streak INTEGER NOT NULL,
		longest_streak INTEGER NOT NULL,
		total_tasks_completed INTEGER NOT NULL,
		rewards_redeemed INTEGER NOT NULL,
		last_activity_date TEXT,
		updated_at TEXT NOT NULL,
		restored_at TEXT,
		restored_by TEXT,
		restoration_reason TEXT,
		previous_xp TEXT NOT NULL,
		previous_level INTEGER NOT NULL,
		previous_gold TEXT NOT NULL
	);

	-- Daily settlement records
	CREATE TABLE IF NOT EXISTS daily_progress (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		tasks_completed INTEGER NOT NULL,
		total_tasks_available INTEGER NOT NULL,
		gold_penalty TEXT NOT NULL,
		bonus_gold TEXT NOT NULL,
		xp_earned TEXT NOT NULL,
		gold_earned TEXT NOT NULL,
		applied_gold_delta TEXT NOT NULL,
		summary_processed INTEGER NOT NULL DEFAULT 0,
		processed_at TEXT,
		PRIMARY KEY (user_id, date)
	);

	-- Redemptions
	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_title TEXT,
		cost_gold TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		approved_by TEXT,
		resolved_at TEXT
	);
	-- At most one pending redemption per (user, reward)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_redemptions_one_pending
		ON redemptions(user_id, reward_id) WHERE status = 'pending';

	-- Tasks (completions stored as a JSON array of timestamps)
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		xp_reward TEXT NOT NULL,
		gold_reward TEXT NOT NULL,
		frequency TEXT NOT NULL,
		active INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		completions TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);

	-- Rewards catalog
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		cost_gold TEXT NOT NULL,
		required_level INTEGER NOT NULL,
		active INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Achievements
	CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT,
		xp_reward TEXT NOT NULL,
		gold_reward TEXT NOT NULL,
		claimed INTEGER NOT NULL,
		claimed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(user_id);

	-- Punishment mode (one row per user)
	CREATE TABLE IF NOT EXISTS punishments (
		user_id TEXT PRIMARY KEY,
		is_active INTEGER NOT NULL,
		reason TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_required INTEGER NOT NULL,
		last_task_completed_at TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func encodeAmount(a ledger.Amount) string { return a.Value.String() }

func decodeAmount(s string, unit ledger.Unit) ledger.Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d = decimal.Zero
	}
	return ledger.Amount{Value: d, Unit: unit}
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}

func encodeDay(d ledger.CalendarDay) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func decodeDay(s string) ledger.CalendarDay {
	if s == "" {
		return ledger.CalendarDay{}
	}
	d, err := ledger.ParseDay(s)
	if err != nil {
		return ledger.CalendarDay{}
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over either the database handle or an
// open transaction. dirty, when non-nil, collects progress records whose
// watcher notifications must wait for commit.
type queries struct {
	db    dbtx
	dirty map[ledger.UserID]ledger.ProgressRecord
}

var _ ledger.Store = (*queries)(nil)

// =============================================================================
// GOLD TRANSACTIONS
// =============================================================================

func (q *queries) AppendTransaction(ctx context.Context, tx ledger.GoldTransaction) error {
	if tx.DedupKey != "" {
		exists, err := q.DedupKeyExists(ctx, tx.DedupKey)
		if err != nil {
			return err
		}
		if exists {
			return ledger.ErrDuplicateDedupKey
		}
	}
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	// NULL keeps the unique index from colliding on keyless entries.
	var dedup any
	if tx.DedupKey != "" {
		dedup = tx.DedupKey
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO gold_transactions
			(id, user_id, amount, tx_type, source, description, related_id,
			 related_title, metadata, dedup_key, balance_before, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.UserID), encodeAmount(tx.Amount), string(tx.Type),
		string(tx.Source), tx.Description, tx.RelatedID, tx.RelatedTitle,
		string(meta), dedup, encodeAmount(tx.BalanceBefore),
		encodeAmount(tx.BalanceAfter), encodeTime(tx.CreatedAt))
	return err
}

func (q *queries) LoadTransactions(ctx context.Context, userID ledger.UserID) ([]ledger.GoldTransaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, amount, tx_type, source, description, related_id,
		       related_title, metadata, dedup_key, balance_before, balance_after, created_at
		FROM gold_transactions WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.GoldTransaction
	for rows.Next() {
		var tx ledger.GoldTransaction
		var id, uid, amount, txType, source, before, after, createdAt string
		var description, relatedID, relatedTitle, meta, dedup sql.NullString
		if err := rows.Scan(&id, &uid, &amount, &txType, &source, &description,
			&relatedID, &relatedTitle, &meta, &dedup, &before, &after, &createdAt); err != nil {
			return nil, err
		}
		tx.ID = ledger.TransactionID(id)
		tx.UserID = ledger.UserID(uid)
		tx.Amount = decodeAmount(amount, ledger.UnitGold)
		tx.Type = ledger.TransactionType(txType)
		tx.Source = ledger.TransactionSource(source)
		tx.Description = description.String
		tx.RelatedID = relatedID.String
		tx.RelatedTitle = relatedTitle.String
		tx.DedupKey = dedup.String
		tx.BalanceBefore = decodeAmount(before, ledger.UnitGold)
		tx.BalanceAfter = decodeAmount(after, ledger.UnitGold)
		tx.CreatedAt = decodeTime(createdAt)
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &tx.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q *queries) DedupKeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM gold_transactions WHERE dedup_key = ?`, key).Scan(&n)
	return n > 0, err
}

// =============================================================================
// PROGRESS
// =============================================================================

const progressColumns = `user_id, level, total_xp, available_gold, total_gold_earned,
	total_gold_spent, streak, longest_streak, total_tasks_completed, rewards_redeemed,
	last_activity_date, updated_at, restored_at, restored_by, restoration_reason,
	previous_xp, previous_level, previous_gold`

func (q *queries) GetProgress(ctx context.Context, userID ledger.UserID) (*ledger.ProgressRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress WHERE user_id = ?`, string(userID))

	var rec ledger.ProgressRecord
	var uid, totalXP, available, earned, spent, updatedAt, prevXP, prevGold string
	var lastActivity, restoredAt, restoredBy, restoreReason sql.NullString
	err := row.Scan(&uid, &rec.Level, &totalXP, &available, &earned, &spent,
		&rec.Streak, &rec.LongestStreak, &rec.TotalTasksCompleted, &rec.RewardsRedeemed,
		&lastActivity, &updatedAt, &restoredAt, &restoredBy, &restoreReason,
		&prevXP, &rec.PreviousLevel, &prevGold)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.UserID = ledger.UserID(uid)
	rec.TotalXP = decodeAmount(totalXP, ledger.UnitXP)
	rec.AvailableGold = decodeAmount(available, ledger.UnitGold)
	rec.TotalGoldEarned = decodeAmount(earned, ledger.UnitGold)
	rec.TotalGoldSpent = decodeAmount(spent, ledger.UnitGold)
	rec.LastActivityDate = decodeDay(lastActivity.String)
	rec.UpdatedAt = decodeTime(updatedAt)
	rec.RestoredAt = decodeTimePtr(restoredAt)
	rec.RestoredBy = restoredBy.String
	rec.RestorationReason = restoreReason.String
	rec.PreviousXP = decodeAmount(prevXP, ledger.UnitXP)
	rec.PreviousGold = decodeAmount(prevGold, ledger.UnitGold)
	return &rec, nil
}

func (q *queries) PutProgress(ctx context.Context, rec ledger.ProgressRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			level = excluded.level,
			total_xp = excluded.total_xp,
			available_gold = excluded.available_gold,
			total_gold_earned = excluded.total_gold_earned,
			total_gold_spent = excluded.total_gold_spent,
			streak = excluded.streak,
			longest_streak = excluded.longest_streak,
			total_tasks_completed = excluded.total_tasks_completed,
			rewards_redeemed = excluded.rewards_redeemed,
			last_activity_date = excluded.last_activity_date,
			updated_at = excluded.updated_at,
			restored_at = excluded.restored_at,
			restored_by = excluded.restored_by,
			restoration_reason = excluded.restoration_reason,
			previous_xp = excluded.previous_xp,
			previous_level = excluded.previous_level,
			previous_gold = excluded.previous_gold`,
		string(rec.UserID), rec.Level, encodeAmount(rec.TotalXP),
		encodeAmount(rec.AvailableGold), encodeAmount(rec.TotalGoldEarned),
		encodeAmount(rec.TotalGoldSpent), rec.Streak, rec.LongestStreak,
		rec.TotalTasksCompleted, rec.RewardsRedeemed, encodeDay(rec.LastActivityDate),
		encodeTime(rec.UpdatedAt), encodeTimePtr(rec.RestoredAt), rec.RestoredBy,
		rec.RestorationReason, encodeAmount(rec.PreviousXP), rec.PreviousLevel,
		encodeAmount(rec.PreviousGold))
	if err != nil {
		return err
	}
	if q.dirty != nil {
		q.dirty[rec.UserID] = rec
	}
	return nil
}

// ApplyProgressDelta reads, applies and writes back. Every mutation goes
// through the store's single-writer lock, so the increment is atomic
// with respect to all other writes on this store.
func (q *queries) ApplyProgressDelta(ctx context.Context, userID ledger.UserID, delta ledger.ProgressDelta) (*ledger.ProgressRecord, error) {
	rec, err := q.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.Apply(delta)
	if err := q.PutProgress(ctx, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (q *queries) DeleteProgress(ctx context.Context, userID ledger.UserID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM progress WHERE user_id = ?`, string(userID))
	return err
}

func (q *queries) ListUserIDs(ctx context.Context) ([]ledger.UserID, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT user_id FROM progress ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, ledger.UserID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

const dailyColumns = `user_id, date, tasks_completed, total_tasks_available, gold_penalty,
	bonus_gold, xp_earned, gold_earned, applied_gold_delta, summary_processed, processed_at`

func scanDaily(scan func(...any) error) (*ledger.DailyProgressRecord, error) {
	var rec ledger.DailyProgressRecord
	var uid, date, penalty, bonus, xp, gold, applied string
	var processed int
	var processedAt sql.NullString
	err := scan(&uid, &date, &rec.TasksCompleted, &rec.TotalTasksAvailable,
		&penalty, &bonus, &xp, &gold, &applied, &processed, &processedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.UserID = ledger.UserID(uid)
	rec.Date = decodeDay(date)
	rec.GoldPenalty = decodeAmount(penalty, ledger.UnitGold)
	rec.AllTasksBonusGold = decodeAmount(bonus, ledger.UnitGold)
	rec.XPEarned = decodeAmount(xp, ledger.UnitXP)
	rec.GoldEarned = decodeAmount(gold, ledger.UnitGold)
	rec.AppliedGoldDelta = decodeAmount(applied, ledger.UnitGold)
	rec.SummaryProcessed = processed != 0
	rec.ProcessedAt = decodeTimePtr(processedAt)
	return &rec, nil
}

func (q *queries) GetDaily(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+dailyColumns+` FROM daily_progress WHERE user_id = ? AND date = ?`,
		string(userID), day.String())
	return scanDaily(row.Scan)
}

func (q *queries) PutDaily(ctx context.Context, rec ledger.DailyProgressRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO daily_progress (`+dailyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			tasks_completed = excluded.tasks_completed,
			total_tasks_available = excluded.total_tasks_available,
			gold_penalty = excluded.gold_penalty,
			bonus_gold = excluded.bonus_gold,
			xp_earned = excluded.xp_earned,
			gold_earned = excluded.gold_earned,
			applied_gold_delta = excluded.applied_gold_delta,
			summary_processed = excluded.summary_processed,
			processed_at = excluded.processed_at`,
		string(rec.UserID), rec.Date.String(), rec.TasksCompleted,
		rec.TotalTasksAvailable, encodeAmount(rec.GoldPenalty),
		encodeAmount(rec.AllTasksBonusGold), encodeAmount(rec.XPEarned),
		encodeAmount(rec.GoldEarned), encodeAmount(rec.AppliedGoldDelta),
		boolToInt(rec.SummaryProcessed), encodeTimePtr(rec.ProcessedAt))
	return err
}

func (q *queries) MarkSettled(ctx context.Context, userID ledger.UserID, day ledger.CalendarDay, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE daily_progress SET summary_processed = 1, processed_at = ?
		WHERE user_id = ? AND date = ? AND summary_processed = 0`,
		encodeTime(at), string(userID), day.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Guard failed: distinguish missing record from already-settled.
	if _, err := q.GetDaily(ctx, userID, day); err != nil {
		return err
	}
	return &ledger.AlreadySettledError{UserID: userID, Day: day}
}

func (q *queries) ListDaily(ctx context.Context, userID ledger.UserID) ([]ledger.DailyProgressRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+dailyColumns+` FROM daily_progress WHERE user_id = ? ORDER BY date ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.DailyProgressRecord
	for rows.Next() {
		rec, err := scanDaily(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

const redemptionColumns = `id, user_id, reward_id, reward_title, cost_gold, status,
	created_at, approved_by, resolved_at`

func (q *queries) PutRedemption(ctx context.Context, r ledger.Redemption) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approved_by = excluded.approved_by,
			resolved_at = excluded.resolved_at`,
		string(r.ID), string(r.UserID), string(r.RewardID), r.RewardTitle,
		encodeAmount(r.CostGold), string(r.Status), encodeTime(r.CreatedAt),
		r.ApprovedBy, encodeTimePtr(r.ResolvedAt))
	return err
}

func scanRedemption(scan func(...any) error) (*ledger.Redemption, error) {
	var r ledger.Redemption
	var id, uid, rewardID, cost, status, createdAt string
	var title, approvedBy, resolvedAt sql.NullString
	err := scan(&id, &uid, &rewardID, &title, &cost, &status, &createdAt, &approvedBy, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ID = ledger.RedemptionID(id)
	r.UserID = ledger.UserID(uid)
	r.RewardID = ledger.RewardID(rewardID)
	r.RewardTitle = title.String
	r.CostGold = decodeAmount(cost, ledger.UnitGold)
	r.Status = ledger.RedemptionStatus(status)
	r.CreatedAt = decodeTime(createdAt)
	r.ApprovedBy = approvedBy.String
	r.ResolvedAt = decodeTimePtr(resolvedAt)
	return &r, nil
}

func (q *queries) GetRedemption(ctx context.Context, id ledger.RedemptionID) (*ledger.Redemption, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE id = ?`, string(id))
	return scanRedemption(row.Scan)
}

func (q *queries) ListRedemptions(ctx context.Context, userID ledger.UserID) ([]ledger.Redemption, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE user_id = ? ORDER BY created_at ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (q *queries) FindPendingRedemption(ctx context.Context, userID ledger.UserID, rewardID ledger.RewardID) (*ledger.Redemption, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE user_id = ? AND reward_id = ? AND status = 'pending'`,
		string(userID), string(rewardID))
	r, err := scanRedemption(row.Scan)
	if ledger.IsNotFound(err) {
		return nil, nil
	}
	return r, err
}

func (q *queries) ResolveRedemption(ctx context.Context, id ledger.RedemptionID, status ledger.RedemptionStatus, approvedBy string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE redemptions SET status = ?, approved_by = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(status), approvedBy, encodeTime(at), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	existing, err := q.GetRedemption(ctx, id)
	if err != nil {
		return err
	}
	return &ledger.NotPendingError{RedemptionID: id, Status: existing.Status}
}

// =============================================================================
// TASKS
// =============================================================================

const taskColumns = `id, user_id, title, description, xp_reward, gold_reward,
	frequency, active, created_at, completions`

func (q *queries) PutTask(ctx context.Context, t ledger.Task) error {
	completions, err := json.Marshal(t.Completions)
	if err != nil {
		return fmt.Errorf("marshal completions: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			xp_reward = excluded.xp_reward,
			gold_reward = excluded.gold_reward,
			frequency = excluded.frequency,
			active = excluded.active,
			completions = excluded.completions`,
		string(t.ID), string(t.UserID), t.Title, t.Description,
		encodeAmount(t.XPReward), encodeAmount(t.GoldReward), string(t.Frequency),
		boolToInt(t.Active), encodeTime(t.CreatedAt), string(completions))
	return err
}

func scanTask(scan func(...any) error) (*ledger.Task, error) {
	var t ledger.Task
	var id, uid, title, xp, gold, frequency, createdAt, completions string
	var description sql.NullString
	var active int
	err := scan(&id, &uid, &title, &description, &xp, &gold, &frequency, &active, &createdAt, &completions)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ID = ledger.TaskID(id)
	t.UserID = ledger.UserID(uid)
	t.Title = title
	t.Description = description.String
	t.XPReward = decodeAmount(xp, ledger.UnitXP)
	t.GoldReward = decodeAmount(gold, ledger.UnitGold)
	t.Frequency = ledger.Frequency(frequency)
	t.Active = active != 0
	t.CreatedAt = decodeTime(createdAt)
	if completions != "" && completions != "null" {
		if err := json.Unmarshal([]byte(completions), &t.Completions); err != nil {
			return nil, fmt.Errorf("unmarshal completions: %w", err)
		}
	}
	return &t, nil
}

func (q *queries) GetTask(ctx context.Context, id ledger.TaskID) (*ledger.Task, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, string(id))
	return scanTask(row.Scan)
}

func (q *queries) ListTasks(ctx context.Context, userID ledger.UserID) ([]ledger.Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q *queries) RecordTaskCompletion(ctx context.Context, id ledger.TaskID, at time.Time) error {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return err
	}
	t.Completions = append(t.Completions, at)
	return q.PutTask(ctx, *t)
}

// =============================================================================
// REWARDS
// =============================================================================

func (q *queries) PutReward(ctx context.Context, r ledger.Reward) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO rewards (id, title, description, cost_gold, required_level, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			cost_gold = excluded.cost_gold,
			required_level = excluded.required_level,
			active = excluded.active`,
		string(r.ID), r.Title, r.Description, encodeAmount(r.CostGold),
		r.RequiredLevel, boolToInt(r.Active), encodeTime(r.CreatedAt))
	return err
}

func scanReward(scan func(...any) error) (*ledger.Reward, error) {
	var r ledger.Reward
	var id, title, cost, createdAt string
	var description sql.NullString
	var active int
	err := scan(&id, &title, &description, &cost, &r.RequiredLevel, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ID = ledger.RewardID(id)
	r.Title = title
	r.Description = description.String
	r.CostGold = decodeAmount(cost, ledger.UnitGold)
	r.Active = active != 0
	r.CreatedAt = decodeTime(createdAt)
	return &r, nil
}

func (q *queries) GetReward(ctx context.Context, id ledger.RewardID) (*ledger.Reward, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, title, description, cost_gold, required_level, active, created_at
		FROM rewards WHERE id = ?`, string(id))
	return scanReward(row.Scan)
}

func (q *queries) ListRewards(ctx context.Context) ([]ledger.Reward, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, description, cost_gold, required_level, active, created_at
		FROM rewards ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Reward
	for rows.Next() {
		r, err := scanReward(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

func (q *queries) PutAchievement(ctx context.Context, a ledger.Achievement) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO achievements (id, user_id, title, xp_reward, gold_reward, claimed, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			xp_reward = excluded.xp_reward,
			gold_reward = excluded.gold_reward,
			claimed = excluded.claimed,
			claimed_at = excluded.claimed_at`,
		a.ID, string(a.UserID), a.Title, encodeAmount(a.XPReward),
		encodeAmount(a.GoldReward), boolToInt(a.Claimed), encodeTimePtr(a.ClaimedAt))
	return err
}

func (q *queries) ListAchievements(ctx context.Context, userID ledger.UserID) ([]ledger.Achievement, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, title, xp_reward, gold_reward, claimed, claimed_at
		FROM achievements WHERE user_id = ? ORDER BY id ASC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Achievement
	for rows.Next() {
		var a ledger.Achievement
		var id, uid, xp, gold string
		var title, claimedAt sql.NullString
		var claimed int
		if err := rows.Scan(&id, &uid, &title, &xp, &gold, &claimed, &claimedAt); err != nil {
			return nil, err
		}
		a.ID = id
		a.UserID = ledger.UserID(uid)
		a.Title = title.String
		a.XPReward = decodeAmount(xp, ledger.UnitXP)
		a.GoldReward = decodeAmount(gold, ledger.UnitGold)
		a.Claimed = claimed != 0
		a.ClaimedAt = decodeTimePtr(claimedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// PUNISHMENT
// =============================================================================

func (q *queries) GetPunishment(ctx context.Context, userID ledger.UserID) (*ledger.PunishmentMode, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, is_active, reason, start_date, end_date,
		       tasks_completed, tasks_required, last_task_completed_at
		FROM punishments WHERE user_id = ?`, string(userID))

	var p ledger.PunishmentMode
	var uid, startDate, endDate string
	var reason, lastTask sql.NullString
	var active int
	err := row.Scan(&uid, &active, &reason, &startDate, &endDate,
		&p.TasksCompleted, &p.TasksRequired, &lastTask)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserID = ledger.UserID(uid)
	p.IsActive = active != 0
	p.Reason = reason.String
	p.StartDate = decodeTime(startDate)
	p.EndDate = decodeTime(endDate)
	p.LastTaskCompletedAt = decodeTimePtr(lastTask)
	return &p, nil
}

func (q *queries) PutPunishment(ctx context.Context, p ledger.PunishmentMode) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO punishments
			(user_id, is_active, reason, start_date, end_date,
			 tasks_completed, tasks_required, last_task_completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_active = excluded.is_active,
			reason = excluded.reason,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			tasks_completed = excluded.tasks_completed,
			tasks_required = excluded.tasks_required,
			last_task_completed_at = excluded.last_task_completed_at`,
		string(p.UserID), boolToInt(p.IsActive), p.Reason, encodeTime(p.StartDate),
		encodeTime(p.EndDate), p.TasksCompleted, p.TasksRequired,
		encodeTimePtr(p.LastTaskCompletedAt))
	return err
}
