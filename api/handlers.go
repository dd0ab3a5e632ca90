/*
handlers.go - HTTP API handlers for the gold/XP ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Progress:
    GET    /api/users/{id}/progress             Live aggregate
    GET    /api/users/{id}/progress/watch       Server-sent updates
    POST   /api/users/{id}/credit               Credit gold
    POST   /api/users/{id}/debit                Spend gold
    POST   /api/users/{id}/xp                   Adjust XP (admin)

  Transactions:
    GET    /api/users/{id}/transactions         History (filterable)
    GET    /api/users/{id}/transactions/export  CSV export

  Settlement:
    POST   /api/users/{id}/settlement/settle    Settle one day
    POST   /api/users/{id}/settlement/catch-up  Settle missed days
    POST   /api/users/{id}/settlement/reprocess Reverse and re-settle
    GET    /api/users/{id}/settlement/days      Daily records

  Tasks / Rewards / Redemptions:
    GET,POST /api/users/{id}/tasks
    POST   /api/tasks/{taskID}/complete
    GET,POST /api/rewards
    GET,POST /api/users/{id}/redemptions
    POST   /api/redemptions/{id}/approve
    POST   /api/redemptions/{id}/reject

  Recovery (admin):
    GET    /api/users/{id}/recovery/investigate
    GET    /api/users/{id}/recovery/health
    POST   /api/users/{id}/recovery/restore
    POST   /api/users/{id}/recovery/migrate

  Punishment:
    GET    /api/users/{id}/punishment
    POST   /api/users/{id}/punishment
    POST   /api/users/{id}/punishment/task

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient funds, gates
  - 404: Document not found
  - 409: Conflict (already settled, not pending, duplicate)
  - 429: Punishment task cooldown
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  The deployment in front of this binary is expected to terminate auth.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/punishment"
	"github.com/heitormissions/ledger-engine/recovery"
	"github.com/heitormissions/ledger-engine/redemption"
	"github.com/heitormissions/ledger-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      ledger.TxStore
	Ledger     *ledger.Ledger
	Engine     *settlement.Engine
	Workflow   *redemption.Workflow
	Doctor     *recovery.Doctor
	Punishment *punishment.Tracker
}

// NewHandler creates a handler wired to the given store.
func NewHandler(store ledger.TxStore) *Handler {
	return &Handler{
		Store:      store,
		Ledger:     ledger.NewLedger(store),
		Engine:     settlement.NewEngine(store),
		Workflow:   redemption.NewWorkflow(store),
		Doctor:     recovery.NewDoctor(store),
		Punishment: punishment.NewTracker(store),
	}
}

func userID(r *http.Request) ledger.UserID {
	return ledger.UserID(chi.URLParam(r, "id"))
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

// GetProgress returns the live aggregate, created lazily on first read.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.GetProgress(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(rec))
}

// WatchProgress streams aggregate updates as server-sent events until the
// client disconnects.
func (h *Handler) WatchProgress(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Store.(ledger.WatchStore)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support watch", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Streaming unsupported", nil)
		return
	}

	ch, cancel := ws.WatchProgress(userID(r))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case rec, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(toProgressDTO(&rec))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// CreditGold credits gold from a named source.
func (h *Handler) CreditGold(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := userID(r)
	balance, err := h.Ledger.CreditGold(r.Context(), id, ledger.Gold(req.Amount),
		ledger.TransactionSource(req.Source), req.Description, req.RelatedID)
	if err != nil {
		writeDomainError(w, "Failed to credit gold", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: string(id), AvailableGold: balance.Int64()})
}

// DebitGold spends gold; fails when the balance cannot cover the amount.
func (h *Handler) DebitGold(w http.ResponseWriter, r *http.Request) {
	var req DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := userID(r)
	balance, err := h.Ledger.DebitGold(r.Context(), id, ledger.Gold(req.Amount),
		ledger.TransactionSource(req.Source), req.Description, req.RelatedID)
	if err != nil {
		writeDomainError(w, "Failed to debit gold", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: string(id), AvailableGold: balance.Int64()})
}

// AdjustXP applies a signed XP delta and recomputes the level.
func (h *Handler) AdjustXP(w http.ResponseWriter, r *http.Request) {
	var req AdjustXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rec, err := h.Ledger.AdminAdjustXP(r.Context(), userID(r), ledger.XP(req.Delta))
	if err != nil {
		writeDomainError(w, "Failed to adjust XP", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(rec))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// GetTransactions returns transaction history, newest first.
// Query params: type, source, from, to (YYYY-MM-DD), limit, offset.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	txs, err := h.Ledger.Query(r.Context(), userID(r), f)
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportTransactions streams the full history as CSV.
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	id := userID(r)
	txs, err := h.Ledger.Query(r.Context(), id, f)
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="transactions-%s.csv"`, id))
	if err := ledger.ExportCSV(w, txs); err != nil {
		// Headers already sent; nothing sensible left to do.
		return
	}
}

func filterFromQuery(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter
	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		f.Type = ledger.TransactionType(v)
	}
	if v := q.Get("source"); v != "" {
		f.Source = ledger.TransactionSource(v)
	}
	if v := q.Get("from"); v != "" {
		day, err := ledger.ParseDay(v)
		if err != nil {
			return f, err
		}
		from := day.Start()
		f.From = &from
	}
	if v := q.Get("to"); v != "" {
		day, err := ledger.ParseDay(v)
		if err != nil {
			return f, err
		}
		to := day.AddDays(1).Start()
		f.To = &to
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Offset = n
	}
	return f, nil
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// SettleDay settles one Brazil-local day. Empty date means yesterday.
func (h *Handler) SettleDay(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	day := ledger.Today().AddDays(-1)
	if req.Date != "" {
		var err error
		day, err = ledger.ParseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}
	rec, err := h.Engine.SettleDay(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, "Failed to settle day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyRecordDTO(rec))
}

// CatchUp settles every unprocessed day within the lookback window.
func (h *Handler) CatchUp(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Engine.ProcessUnprocessedDays(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to process missed days", err)
		return
	}
	dtos := make([]DailyRecordDTO, len(recs))
	for i := range recs {
		dtos[i] = toDailyRecordDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Reprocess reverses a settled day's ledger effect and settles it again.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	day, err := ledger.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	rec, err := h.Engine.Reprocess(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, "Failed to reprocess day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyRecordDTO(rec))
}

// ListDailyRecords returns all daily records for a user, ascending by date.
func (h *Handler) ListDailyRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListDaily(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to list daily records", err)
		return
	}
	dtos := make([]DailyRecordDTO, len(recs))
	for i := range recs {
		dtos[i] = toDailyRecordDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns a user's missions.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Store.ListTasks(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to list tasks", err)
		return
	}
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTask creates a mission.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required", nil)
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	freq := ledger.Frequency(req.Frequency)
	if freq == "" {
		freq = ledger.FrequencyDaily
	}
	task := ledger.Task{
		ID:          ledger.TaskID(id),
		UserID:      userID(r),
		Title:       req.Title,
		Description: req.Description,
		XPReward:    ledger.XP(req.XPReward),
		GoldReward:  ledger.Gold(req.GoldReward),
		Frequency:   freq,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	if err := h.Store.PutTask(r.Context(), task); err != nil {
		writeDomainError(w, "Failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(task))
}

// CompleteTask records a completion and pays the task's XP and gold.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := ledger.TaskID(chi.URLParam(r, "taskID"))
	task, err := h.Store.GetTask(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, "Failed to load task", err)
		return
	}
	tx, err := h.Engine.CompleteTask(r.Context(), task.UserID, taskID, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the reward catalog.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Store.ListRewards(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list rewards", err)
		return
	}
	dtos := make([]RewardDTO, len(rewards))
	for i, rw := range rewards {
		dtos[i] = toRewardDTO(rw)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReward adds a reward to the catalog.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req CreateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required", nil)
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	reward := ledger.Reward{
		ID:            ledger.RewardID(id),
		Title:         req.Title,
		Description:   req.Description,
		CostGold:      ledger.Gold(req.CostGold),
		RequiredLevel: req.RequiredLevel,
		Active:        true,
		CreatedAt:     time.Now(),
	}
	if err := h.Store.PutReward(r.Context(), reward); err != nil {
		writeDomainError(w, "Failed to create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardDTO(reward))
}

// =============================================================================
// REDEMPTION HANDLERS
// =============================================================================

// ListRedemptions returns a user's redemption history.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListRedemptions(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to list redemptions", err)
		return
	}
	dtos := make([]RedemptionDTO, len(recs))
	for i := range recs {
		dtos[i] = toRedemptionDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RequestRedemption starts a reward purchase: gold is debited immediately,
// the redemption waits for parent approval.
func (h *Handler) RequestRedemption(w http.ResponseWriter, r *http.Request) {
	var req RequestRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	red, err := h.Workflow.Request(r.Context(), userID(r), ledger.RewardID(req.RewardID))
	if err != nil {
		writeDomainError(w, "Failed to request redemption", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionDTO(red))
}

// ApproveRedemption confirms a pending purchase.
func (h *Handler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	h.resolveRedemption(w, r, true)
}

// RejectRedemption refunds a pending purchase.
func (h *Handler) RejectRedemption(w http.ResponseWriter, r *http.Request) {
	h.resolveRedemption(w, r, false)
}

func (h *Handler) resolveRedemption(w http.ResponseWriter, r *http.Request, approved bool) {
	var req ResolveRedemptionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	id := ledger.RedemptionID(chi.URLParam(r, "id"))
	red, err := h.Workflow.Resolve(r.Context(), id, approved, req.ApprovedBy)
	if err != nil {
		writeDomainError(w, "Failed to resolve redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(red))
}

// =============================================================================
// RECOVERY HANDLERS
// =============================================================================

// Investigate estimates what the aggregate should be from history.
func (h *Handler) Investigate(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Doctor.Investigate(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to investigate", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestigationDTO(rep))
}

// Health runs invariant checks over one user's documents.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Doctor.CheckHealth(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to check health", err)
		return
	}
	dto := HealthDTO{UserID: string(rep.UserID), Healthy: rep.Healthy}
	for _, f := range rep.Findings {
		dto.Findings = append(dto.Findings, FindingDTO{Code: string(f.Code), Message: f.Message})
	}
	writeJSON(w, http.StatusOK, dto)
}

// Restore overwrites the aggregate to operator-provided values, with a
// full audit trail.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rec, err := h.Doctor.Restore(r.Context(), userID(r),
		ledger.XP(req.TargetXP), ledger.Gold(req.TargetGold), req.Reason, req.Operator)
	if err != nil {
		writeDomainError(w, "Failed to restore progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(rec))
}

// Migrate backfills ledger entries from historical documents.
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Doctor.MigrateHistoricalLedger(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to migrate ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, MigrationDTO{
		UserID:          string(rep.UserID),
		Created:         rep.Created,
		Skipped:         rep.Skipped,
		ReplayedBalance: rep.ReplayedBalance.Int64(),
		LiveBalance:     rep.LiveBalance.Int64(),
		Drift:           rep.Drift.Int64(),
		InSync:          rep.InSync,
	})
}

// =============================================================================
// PUNISHMENT HANDLERS
// =============================================================================

// GetPunishment returns the active punishment, or 404.
func (h *Handler) GetPunishment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Punishment.Active(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, "Failed to get punishment", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "No active punishment", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPunishmentDTO(p))
}

// ActivatePunishment puts a user into punishment mode.
func (h *Handler) ActivatePunishment(w http.ResponseWriter, r *http.Request) {
	var req ActivatePunishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := h.Punishment.Activate(r.Context(), userID(r), req.Reason, time.Now())
	if err != nil {
		writeDomainError(w, "Failed to activate punishment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPunishmentDTO(p))
}

// CompletePunishmentTask counts one task toward release, subject to the
// per-task cooldown.
func (h *Handler) CompletePunishmentTask(w http.ResponseWriter, r *http.Request) {
	p, err := h.Punishment.CompleteTask(r.Context(), userID(r), time.Now())
	if err != nil {
		writeDomainError(w, "Failed to record punishment task", err)
		return
	}
	writeJSON(w, http.StatusOK, toPunishmentDTO(p))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadySettled),
		errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, ledger.ErrPendingRedemptionExists),
		errors.Is(err, ledger.ErrDuplicateDedupKey),
		errors.Is(err, ledger.ErrPunishmentActive):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrLevelTooLow),
		errors.Is(err, ledger.ErrDailyTaskGate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
