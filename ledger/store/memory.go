/*
Package store provides the in-memory Store implementation.

Used by tests and development. WithTx is simulated with a full snapshot
plus rollback on error; progress watchers are only notified after a
batch commits, so listeners never observe rolled-back state.
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heitormissions/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	transactions map[ledger.UserID][]ledger.GoldTransaction // ascending CreatedAt
	dedup        map[string]bool
	progress     map[ledger.UserID]ledger.ProgressRecord
	daily        map[dailyKey]ledger.DailyProgressRecord
	redemptions  map[ledger.RedemptionID]ledger.Redemption
	tasks        map[ledger.TaskID]ledger.Task
	rewards      map[ledger.RewardID]ledger.Reward
	achievements map[string]ledger.Achievement
	punishments  map[ledger.UserID]ledger.PunishmentMode

	watchers map[ledger.UserID]map[int]chan ledger.ProgressRecord
	nextSub  int
}

type dailyKey struct {
	UserID ledger.UserID
	Day    string
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[ledger.UserID][]ledger.GoldTransaction),
		dedup:        make(map[string]bool),
		progress:     make(map[ledger.UserID]ledger.ProgressRecord),
		daily:        make(map[dailyKey]ledger.DailyProgressRecord),
		redemptions:  make(map[ledger.RedemptionID]ledger.Redemption),
		tasks:        make(map[ledger.TaskID]ledger.Task),
		rewards:      make(map[ledger.RewardID]ledger.Reward),
		achievements: make(map[string]ledger.Achievement),
		punishments:  make(map[ledger.UserID]ledger.PunishmentMode),
		watchers:     make(map[ledger.UserID]map[int]chan ledger.ProgressRecord),
	}
}

// =============================================================================
// TRANSACTIONS - Append-only
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx ledger.GoldTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.GoldTransaction) error {
	if tx.DedupKey != "" && m.dedup[tx.DedupKey] {
		return ledger.ErrDuplicateDedupKey
	}
	txs := m.transactions[tx.UserID]

	// Binary search keeps the slice ordered by CreatedAt on insert.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, ledger.GoldTransaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.UserID] = txs

	if tx.DedupKey != "" {
		m.dedup[tx.DedupKey] = true
	}
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context, userID ledger.UserID) ([]ledger.GoldTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.GoldTransaction, len(m.transactions[userID]))
	copy(out, m.transactions[userID])
	return out, nil
}

func (m *Memory) DedupKeyExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dedup[key], nil
}

// =============================================================================
// PROGRESS
// =============================================================================

func (m *Memory) GetProgress(_ context.Context, userID ledger.UserID) (*ledger.ProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProgressLocked(userID)
}

func (m *Memory) getProgressLocked(userID ledger.UserID) (*ledger.ProgressRecord, error) {
	rec, ok := m.progress[userID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *Memory) PutProgress(_ context.Context, rec ledger.ProgressRecord) error {
	m.mu.Lock()
	m.progress[rec.UserID] = rec
	m.mu.Unlock()
	m.notify(rec)
	return nil
}

func (m *Memory) ApplyProgressDelta(_ context.Context, userID ledger.UserID, delta ledger.ProgressDelta) (*ledger.ProgressRecord, error) {
	m.mu.Lock()
	rec, err := m.applyDeltaLocked(userID, delta)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.notify(*rec)
	return rec, nil
}

func (m *Memory) applyDeltaLocked(userID ledger.UserID, delta ledger.ProgressDelta) (*ledger.ProgressRecord, error) {
	rec, ok := m.progress[userID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	rec.Apply(delta)
	m.progress[userID] = rec
	out := rec
	return &out, nil
}

func (m *Memory) DeleteProgress(_ context.Context, userID ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, userID)
	return nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]ledger.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.UserID, 0, len(m.progress))
	for id := range m.progress {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

func (m *Memory) GetDaily(_ context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.daily[dailyKey{userID, day.String()}]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *Memory) PutDaily(_ context.Context, rec ledger.DailyProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[dailyKey{rec.UserID, rec.Date.String()}] = rec
	return nil
}

func (m *Memory) MarkSettled(_ context.Context, userID ledger.UserID, day ledger.CalendarDay, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dailyKey{userID, day.String()}
	rec, ok := m.daily[k]
	if !ok {
		return ledger.ErrNotFound
	}
	if rec.SummaryProcessed {
		return &ledger.AlreadySettledError{UserID: userID, Day: day}
	}
	rec.SummaryProcessed = true
	rec.ProcessedAt = &at
	m.daily[k] = rec
	return nil
}

func (m *Memory) ListDaily(_ context.Context, userID ledger.UserID) ([]ledger.DailyProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.DailyProgressRecord
	for k, rec := range m.daily {
		if k.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

func (m *Memory) PutRedemption(_ context.Context, r ledger.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions[r.ID] = r
	return nil
}

func (m *Memory) GetRedemption(_ context.Context, id ledger.RedemptionID) (*ledger.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.redemptions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := r
	return &out, nil
}

func (m *Memory) ListRedemptions(_ context.Context, userID ledger.UserID) ([]ledger.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Redemption
	for _, r := range m.redemptions {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindPendingRedemption(_ context.Context, userID ledger.UserID, rewardID ledger.RewardID) (*ledger.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.redemptions {
		if r.UserID == userID && r.RewardID == rewardID && r.Status == ledger.RedemptionPending {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ResolveRedemption(_ context.Context, id ledger.RedemptionID, status ledger.RedemptionStatus, approvedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.redemptions[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if r.Status != ledger.RedemptionPending {
		return &ledger.NotPendingError{RedemptionID: id, Status: r.Status}
	}
	r.Status = status
	r.ApprovedBy = approvedBy
	r.ResolvedAt = &at
	m.redemptions[id] = r
	return nil
}

// =============================================================================
// TASKS / REWARDS / ACHIEVEMENTS / PUNISHMENT
// =============================================================================

func (m *Memory) PutTask(_ context.Context, t ledger.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) GetTask(_ context.Context, id ledger.TaskID) (*ledger.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := t
	out.Completions = append([]time.Time(nil), t.Completions...)
	return &out, nil
}

func (m *Memory) ListTasks(_ context.Context, userID ledger.UserID) ([]ledger.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			c := t
			c.Completions = append([]time.Time(nil), t.Completions...)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RecordTaskCompletion(_ context.Context, id ledger.TaskID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ledger.ErrNotFound
	}
	t.Completions = append(t.Completions, at)
	m.tasks[id] = t
	return nil
}

func (m *Memory) PutReward(_ context.Context, r ledger.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[r.ID] = r
	return nil
}

func (m *Memory) GetReward(_ context.Context, id ledger.RewardID) (*ledger.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rewards[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := r
	return &out, nil
}

func (m *Memory) ListRewards(_ context.Context) ([]ledger.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Reward
	for _, r := range m.rewards {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PutAchievement(_ context.Context, a ledger.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.achievements[a.ID] = a
	return nil
}

func (m *Memory) ListAchievements(_ context.Context, userID ledger.UserID) ([]ledger.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Achievement
	for _, a := range m.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPunishment(_ context.Context, userID ledger.UserID) (*ledger.PunishmentMode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.punishments[userID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := p
	return &out, nil
}

func (m *Memory) PutPunishment(_ context.Context, p ledger.PunishmentMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.punishments[p.UserID] = p
	return nil
}

// =============================================================================
// WATCHERS - Progress listeners
// =============================================================================

// WatchProgress subscribes to aggregate updates. Slow consumers drop
// intermediate snapshots; every delivered value is the latest known state
// at send time.
func (m *Memory) WatchProgress(userID ledger.UserID) (<-chan ledger.ProgressRecord, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan ledger.ProgressRecord, 8)
	id := m.nextSub
	m.nextSub++
	if m.watchers[userID] == nil {
		m.watchers[userID] = make(map[int]chan ledger.ProgressRecord)
	}
	m.watchers[userID][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.watchers[userID][id]; ok {
			delete(m.watchers[userID], id)
			close(sub)
		}
	}
	return ch, cancel
}

func (m *Memory) notify(rec ledger.ProgressRecord) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.watchers[rec.UserID] {
		select {
		case ch <- rec:
		default: // slow consumer, drop
		}
	}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with atomic batch support: snapshot on entry,
// restore on error. Watcher notifications queue up during the batch and
// flush only on commit.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()

	snap := tm.snapshot()
	view := &txView{parent: tm, pendingNotify: make(map[ledger.UserID]ledger.ProgressRecord)}

	if err := fn(view); err != nil {
		tm.restore(snap)
		tm.mu.Unlock()
		return err
	}

	notify := make([]ledger.ProgressRecord, 0, len(view.pendingNotify))
	for _, rec := range view.pendingNotify {
		notify = append(notify, rec)
	}
	tm.mu.Unlock()

	for _, rec := range notify {
		tm.notify(rec)
	}
	return nil
}

type memorySnapshot struct {
	transactions map[ledger.UserID][]ledger.GoldTransaction
	dedup        map[string]bool
	progress     map[ledger.UserID]ledger.ProgressRecord
	daily        map[dailyKey]ledger.DailyProgressRecord
	redemptions  map[ledger.RedemptionID]ledger.Redemption
	tasks        map[ledger.TaskID]ledger.Task
	rewards      map[ledger.RewardID]ledger.Reward
	achievements map[string]ledger.Achievement
	punishments  map[ledger.UserID]ledger.PunishmentMode
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		transactions: make(map[ledger.UserID][]ledger.GoldTransaction, len(tm.transactions)),
		dedup:        make(map[string]bool, len(tm.dedup)),
		progress:     make(map[ledger.UserID]ledger.ProgressRecord, len(tm.progress)),
		daily:        make(map[dailyKey]ledger.DailyProgressRecord, len(tm.daily)),
		redemptions:  make(map[ledger.RedemptionID]ledger.Redemption, len(tm.redemptions)),
		tasks:        make(map[ledger.TaskID]ledger.Task, len(tm.tasks)),
		rewards:      make(map[ledger.RewardID]ledger.Reward, len(tm.rewards)),
		achievements: make(map[string]ledger.Achievement, len(tm.achievements)),
		punishments:  make(map[ledger.UserID]ledger.PunishmentMode, len(tm.punishments)),
	}
	for k, v := range tm.transactions {
		s.transactions[k] = append([]ledger.GoldTransaction(nil), v...)
	}
	for k, v := range tm.dedup {
		s.dedup[k] = v
	}
	for k, v := range tm.progress {
		s.progress[k] = v
	}
	for k, v := range tm.daily {
		s.daily[k] = v
	}
	for k, v := range tm.redemptions {
		s.redemptions[k] = v
	}
	for k, v := range tm.tasks {
		c := v
		c.Completions = append([]time.Time(nil), v.Completions...)
		s.tasks[k] = c
	}
	for k, v := range tm.rewards {
		s.rewards[k] = v
	}
	for k, v := range tm.achievements {
		s.achievements[k] = v
	}
	for k, v := range tm.punishments {
		s.punishments[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.dedup = s.dedup
	tm.progress = s.progress
	tm.daily = s.daily
	tm.redemptions = s.redemptions
	tm.tasks = s.tasks
	tm.rewards = s.rewards
	tm.achievements = s.achievements
	tm.punishments = s.punishments
}

// txView gives fn direct access to the locked parent state. All methods
// assume tm.mu is held by WithTx.
type txView struct {
	parent        *TxMemory
	pendingNotify map[ledger.UserID]ledger.ProgressRecord
}

func (tv *txView) AppendTransaction(_ context.Context, tx ledger.GoldTransaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txView) LoadTransactions(_ context.Context, userID ledger.UserID) ([]ledger.GoldTransaction, error) {
	out := make([]ledger.GoldTransaction, len(tv.parent.transactions[userID]))
	copy(out, tv.parent.transactions[userID])
	return out, nil
}

func (tv *txView) DedupKeyExists(_ context.Context, key string) (bool, error) {
	return tv.parent.dedup[key], nil
}

func (tv *txView) GetProgress(_ context.Context, userID ledger.UserID) (*ledger.ProgressRecord, error) {
	return tv.parent.getProgressLocked(userID)
}

func (tv *txView) PutProgress(_ context.Context, rec ledger.ProgressRecord) error {
	tv.parent.progress[rec.UserID] = rec
	tv.pendingNotify[rec.UserID] = rec
	return nil
}

func (tv *txView) ApplyProgressDelta(_ context.Context, userID ledger.UserID, delta ledger.ProgressDelta) (*ledger.ProgressRecord, error) {
	rec, err := tv.parent.applyDeltaLocked(userID, delta)
	if err != nil {
		return nil, err
	}
	tv.pendingNotify[userID] = *rec
	return rec, nil
}

func (tv *txView) DeleteProgress(_ context.Context, userID ledger.UserID) error {
	delete(tv.parent.progress, userID)
	return nil
}

func (tv *txView) ListUserIDs(ctx context.Context) ([]ledger.UserID, error) {
	out := make([]ledger.UserID, 0, len(tv.parent.progress))
	for id := range tv.parent.progress {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (tv *txView) GetDaily(_ context.Context, userID ledger.UserID, day ledger.CalendarDay) (*ledger.DailyProgressRecord, error) {
	rec, ok := tv.parent.daily[dailyKey{userID, day.String()}]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (tv *txView) PutDaily(_ context.Context, rec ledger.DailyProgressRecord) error {
	tv.parent.daily[dailyKey{rec.UserID, rec.Date.String()}] = rec
	return nil
}

func (tv *txView) MarkSettled(_ context.Context, userID ledger.UserID, day ledger.CalendarDay, at time.Time) error {
	k := dailyKey{userID, day.String()}
	rec, ok := tv.parent.daily[k]
	if !ok {
		return ledger.ErrNotFound
	}
	if rec.SummaryProcessed {
		return &ledger.AlreadySettledError{UserID: userID, Day: day}
	}
	rec.SummaryProcessed = true
	rec.ProcessedAt = &at
	tv.parent.daily[k] = rec
	return nil
}

func (tv *txView) ListDaily(_ context.Context, userID ledger.UserID) ([]ledger.DailyProgressRecord, error) {
	var out []ledger.DailyProgressRecord
	for k, rec := range tv.parent.daily {
		if k.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (tv *txView) PutRedemption(_ context.Context, r ledger.Redemption) error {
	tv.parent.redemptions[r.ID] = r
	return nil
}

func (tv *txView) GetRedemption(_ context.Context, id ledger.RedemptionID) (*ledger.Redemption, error) {
	r, ok := tv.parent.redemptions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := r
	return &out, nil
}

func (tv *txView) ListRedemptions(_ context.Context, userID ledger.UserID) ([]ledger.Redemption, error) {
	var out []ledger.Redemption
	for _, r := range tv.parent.redemptions {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tv *txView) FindPendingRedemption(_ context.Context, userID ledger.UserID, rewardID ledger.RewardID) (*ledger.Redemption, error) {
	for _, r := range tv.parent.redemptions {
		if r.UserID == userID && r.RewardID == rewardID && r.Status == ledger.RedemptionPending {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (tv *txView) ResolveRedemption(_ context.Context, id ledger.RedemptionID, status ledger.RedemptionStatus, approvedBy string, at time.Time) error {
	r, ok := tv.parent.redemptions[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if r.Status != ledger.RedemptionPending {
		return &ledger.NotPendingError{RedemptionID: id, Status: r.Status}
	}
	r.Status = status
	r.ApprovedBy = approvedBy
	r.ResolvedAt = &at
	tv.parent.redemptions[id] = r
	return nil
}

func (tv *txView) PutTask(_ context.Context, t ledger.Task) error {
	tv.parent.tasks[t.ID] = t
	return nil
}

func (tv *txView) GetTask(_ context.Context, id ledger.TaskID) (*ledger.Task, error) {
	t, ok := tv.parent.tasks[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := t
	out.Completions = append([]time.Time(nil), t.Completions...)
	return &out, nil
}

func (tv *txView) ListTasks(_ context.Context, userID ledger.UserID) ([]ledger.Task, error) {
	var out []ledger.Task
	for _, t := range tv.parent.tasks {
		if t.UserID == userID {
			c := t
			c.Completions = append([]time.Time(nil), t.Completions...)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tv *txView) RecordTaskCompletion(_ context.Context, id ledger.TaskID, at time.Time) error {
	t, ok := tv.parent.tasks[id]
	if !ok {
		return ledger.ErrNotFound
	}
	t.Completions = append(t.Completions, at)
	tv.parent.tasks[id] = t
	return nil
}

func (tv *txView) PutReward(_ context.Context, r ledger.Reward) error {
	tv.parent.rewards[r.ID] = r
	return nil
}

func (tv *txView) GetReward(_ context.Context, id ledger.RewardID) (*ledger.Reward, error) {
	r, ok := tv.parent.rewards[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := r
	return &out, nil
}

func (tv *txView) ListRewards(_ context.Context) ([]ledger.Reward, error) {
	var out []ledger.Reward
	for _, r := range tv.parent.rewards {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tv *txView) PutAchievement(_ context.Context, a ledger.Achievement) error {
	tv.parent.achievements[a.ID] = a
	return nil
}

func (tv *txView) ListAchievements(_ context.Context, userID ledger.UserID) ([]ledger.Achievement, error) {
	var out []ledger.Achievement
	for _, a := range tv.parent.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txView) GetPunishment(_ context.Context, userID ledger.UserID) (*ledger.PunishmentMode, error) {
	p, ok := tv.parent.punishments[userID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := p
	return &out, nil
}

func (tv *txView) PutPunishment(_ context.Context, p ledger.PunishmentMode) error {
	tv.parent.punishments[p.UserID] = p
	return nil
}
