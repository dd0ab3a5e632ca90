package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitormissions/ledger-engine/api"
	"github.com/heitormissions/ledger-engine/ledger"
	"github.com/heitormissions/ledger-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.TxMemory) {
	mem := store.NewTxMemory()
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(mem)))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// seedTask writes a task old enough to count for any recent day.
func seedTask(t *testing.T, mem *store.TxMemory, id, userID string, gold int64) {
	t.Helper()
	require.NoError(t, mem.PutTask(context.Background(), ledger.Task{
		ID: ledger.TaskID(id), UserID: ledger.UserID(userID), Title: id,
		XPReward: ledger.XP(10), GoldReward: ledger.Gold(gold),
		Frequency: ledger.FrequencyDaily, Active: true,
		CreatedAt: time.Now().AddDate(0, 0, -7),
	}))
}

// =============================================================================
// PROGRESS + BALANCE
// =============================================================================

func TestCreditDebitProgressFlow(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: Crediting 50 and debiting 20 over HTTP
	// THEN: Balances round-trip and the progress aggregate agrees

	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/credit", api.CreditRequest{
		Amount: 50, Source: "quiz", Description: "math quiz",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal := decode[api.BalanceDTO](t, resp)
	assert.EqualValues(t, 50, bal.AvailableGold)

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/debit", api.DebitRequest{
		Amount: 20, Source: "admin_adjustment",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal = decode[api.BalanceDTO](t, resp)
	assert.EqualValues(t, 30, bal.AvailableGold)

	resp, err := http.Get(srv.URL + "/api/users/heitor/progress")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prog := decode[api.ProgressDTO](t, resp)
	assert.EqualValues(t, 30, prog.AvailableGold)
	assert.EqualValues(t, 50, prog.TotalGoldEarned)
	assert.EqualValues(t, 20, prog.TotalGoldSpent)
}

func TestDebit_InsufficientFunds_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/debit", api.DebitRequest{
		Amount: 100, Source: "admin_adjustment",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.NotEmpty(t, body.Error)
}

func TestAdjustXP_LevelsUp(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/xp", api.AdjustXPRequest{Delta: 150})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prog := decode[api.ProgressDTO](t, resp)
	assert.EqualValues(t, 150, prog.TotalXP)
	assert.Equal(t, 2, prog.Level)
}

// =============================================================================
// TASKS
// =============================================================================

func TestCreateAndCompleteTask(t *testing.T) {
	// GIVEN: A task created over HTTP
	// WHEN: Completing it
	// THEN: The returned transaction carries the task reward

	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/tasks", api.CreateTaskRequest{
		ID: "dishes", Title: "wash dishes", XPReward: 10, GoldReward: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[api.TaskDTO](t, resp)
	assert.Equal(t, "daily", task.Frequency, "frequency defaults to daily")

	resp = doJSON(t, "POST", srv.URL+"/api/tasks/dishes/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tx := decode[api.TransactionDTO](t, resp)
	assert.EqualValues(t, 5, tx.Amount)
	assert.Equal(t, "earned", tx.Type)
	assert.Equal(t, "task_completion", tx.Source)
}

func TestCompleteTask_Unknown_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/tasks/nope/complete", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestGetTransactions_FilterAndOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/credit", api.CreditRequest{
			Amount: int64(10 + i), Source: "quiz",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/users/heitor/transactions?source=quiz&limit=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decode[[]api.TransactionDTO](t, resp)
	require.Len(t, txs, 2)
	assert.EqualValues(t, 12, txs[0].Amount, "newest first")
	assert.EqualValues(t, 11, txs[1].Amount)
}

func TestExportTransactions_CSV(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/credit", api.CreditRequest{
		Amount: 10, Source: "quiz",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/users/heitor/transactions/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "transactions-heitor.csv")

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(body.String()), "\n")
	require.Len(t, lines, 2, "header plus one entry")
	assert.True(t, strings.HasPrefix(lines[0], "id,"))
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestSettleDay_Endpoint(t *testing.T) {
	// GIVEN: One daily task completed today
	// WHEN: Settling today's date explicitly
	// THEN: Perfect day, bonus applied; settling again conflicts

	srv, mem := newTestServer(t)
	seedTask(t, mem, "dishes", "heitor", 5)

	resp := doJSON(t, "POST", srv.URL+"/api/tasks/dishes/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	today := ledger.Today().String()
	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/settlement/settle", api.SettleRequest{Date: today})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[api.DailyRecordDTO](t, resp)
	assert.True(t, rec.SummaryProcessed)
	assert.Equal(t, 1, rec.TasksCompleted)
	assert.EqualValues(t, 10, rec.AppliedGoldDelta)

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/settlement/settle", api.SettleRequest{Date: today})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/users/heitor/settlement/days")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	days := decode[[]api.DailyRecordDTO](t, resp)
	assert.Len(t, days, 1)
}

func TestSettleDay_BadDate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/settlement/settle", api.SettleRequest{Date: "03/07/2026"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// REWARDS + REDEMPTIONS
// =============================================================================

func TestRedemptionLifecycle(t *testing.T) {
	// GIVEN: A funded user with four completions today and a reward
	// WHEN: Requesting and approving the redemption over HTTP
	// THEN: Pending then approved, gold debited once

	srv, mem := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/rewards/", api.CreateRewardRequest{
		ID: "ice-cream", Title: "ice cream", CostGold: 15,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("chore-%d", i)
		seedTask(t, mem, id, "heitor", 5)
		resp = doJSON(t, "POST", srv.URL+"/api/tasks/"+id+"/complete", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/redemptions", api.RequestRedemptionRequest{
		RewardID: "ice-cream",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	red := decode[api.RedemptionDTO](t, resp)
	assert.Equal(t, "pending", red.Status)

	resp = doJSON(t, "POST", srv.URL+"/api/redemptions/"+red.ID+"/approve", api.ResolveRedemptionRequest{
		ApprovedBy: "mom",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	red = decode[api.RedemptionDTO](t, resp)
	assert.Equal(t, "approved", red.Status)
	assert.Equal(t, "mom", red.ApprovedBy)

	resp, err := http.Get(srv.URL + "/api/users/heitor/progress")
	require.NoError(t, err)
	prog := decode[api.ProgressDTO](t, resp)
	assert.EqualValues(t, 5, prog.AvailableGold, "4x5 earned minus 15 spent")
	assert.Equal(t, 1, prog.RewardsRedeemed)
}

func TestRequestRedemption_GateFailure_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/rewards/", api.CreateRewardRequest{
		ID: "ice-cream", Title: "ice cream", CostGold: 15,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/credit", api.CreditRequest{Amount: 50, Source: "quiz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// no tasks done today: daily-task gate
	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/redemptions", api.RequestRedemptionRequest{
		RewardID: "ice-cream",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// RECOVERY + PUNISHMENT
// =============================================================================

func TestRecoveryHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/api/users/heitor/credit", api.CreditRequest{Amount: 10, Source: "quiz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/users/heitor/recovery/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[api.HealthDTO](t, resp)
	assert.True(t, health.Healthy)
}

func TestPunishmentEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/users/heitor/punishment/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no active mode yet")
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/punishment/", api.ActivatePunishmentRequest{
		Reason: "broke curfew",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mode := decode[api.PunishmentDTO](t, resp)
	assert.True(t, mode.IsActive)
	assert.Equal(t, 30, mode.TasksRequired)

	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/punishment/task", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mode = decode[api.PunishmentDTO](t, resp)
	assert.Equal(t, 1, mode.TasksCompleted)

	// cooldown: a second completion straight away is rate limited
	resp = doJSON(t, "POST", srv.URL+"/api/users/heitor/punishment/task", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
