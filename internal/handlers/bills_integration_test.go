package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/handlers/testutil"
)

type billPayload struct {
	ID         string          `json:"id"`
	AccountID  *string         `json:"account_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Recurrence string          `json:"recurrence"`
	NextDueAt  string          `json:"next_due_at"`
	AutoPay    bool            `json:"auto_pay"`
	Status     string          `json:"status"`
	LastPaidAt *string         `json:"last_paid_at"`
}

type paymentPayload struct {
	ID        string          `json:"id"`
	BillID    *string         `json:"bill_id"`
	AccountID *string         `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Note      string          `json:"note"`
}

func createBill(t *testing.T, env *testutil.Env, token string, body map[string]any) billPayload {
	t.Helper()

	resp := env.Request(http.MethodPost, "/api/bills", body, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var bill billPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &bill)
	return bill
}

func getBill(t *testing.T, env *testutil.Env, token, id string) billPayload {
	t.Helper()

	resp := env.Request(http.MethodGet, "/api/bills/"+id, nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var bill billPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &bill)
	return bill
}

func parseWhen(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestBillHandler_Lifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	created := createBill(t, env, token, map[string]any{
		"name":        "Internet",
		"amount":      60,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-01T00:00:00Z",
	})
	require.Equal(t, "Internet", created.Name)
	require.Equal(t, "active", created.Status)
	require.False(t, created.AutoPay)
	require.Nil(t, created.LastPaidAt)

	update := env.Request(http.MethodPatch, "/api/bills/"+created.ID, map[string]any{
		"name":   "Fiber Internet",
		"amount": 72.5,
	}, token)
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())
	var updated billPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, update).Data, &updated)
	require.Equal(t, "Fiber Internet", updated.Name)
	require.True(t, updated.Amount.Equal(decimal.RequireFromString("72.5")))

	del := env.Request(http.MethodDelete, "/api/bills/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, del.Code)

	gone := env.Request(http.MethodGet, "/api/bills/"+created.ID, nil, token)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestBillHandler_PayAdvancesScheduleAndDebitsAccount(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	account := createAccount(t, env, token, map[string]any{
		"name":         "Bill Money",
		"account_type": "checking",
		"currency":     "USD",
		"balance":      500,
		"details":      map[string]any{"institution": "First National"},
	})

	bill := createBill(t, env, token, map[string]any{
		"name":        "Electric",
		"account_id":  account.ID,
		"amount":      45,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-01T00:00:00Z",
	})

	pay := env.Request(http.MethodPost, "/api/bills/"+bill.ID+"/pay", map[string]any{}, token)
	require.Equal(t, http.StatusCreated, pay.Code, pay.Body.String())
	var payment paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, pay).Data, &payment)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(45)))
	require.NotNil(t, payment.BillID)
	require.Equal(t, bill.ID, *payment.BillID)
	require.NotNil(t, payment.AccountID)
	require.Equal(t, account.ID, *payment.AccountID)

	paid := getBill(t, env, token, bill.ID)
	require.NotNil(t, paid.LastPaidAt)
	require.Equal(t, "active", paid.Status)
	require.True(t, parseWhen(t, paid.NextDueAt).Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))

	funded := env.Request(http.MethodGet, "/api/accounts/"+account.ID, nil, token)
	require.Equal(t, http.StatusOK, funded.Code)
	var after accountPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, funded).Data, &after)
	require.True(t, after.Balance.Equal(decimal.NewFromInt(455)), "balance was %s", after.Balance)
}

func TestBillHandler_PayClosesNonRecurringBill(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	bill := createBill(t, env, token, map[string]any{
		"name":        "Passport Renewal",
		"amount":      130,
		"currency":    "USD",
		"recurrence":  "none",
		"next_due_at": "2026-09-15T00:00:00Z",
	})

	pay := env.Request(http.MethodPost, "/api/bills/"+bill.ID+"/pay", map[string]any{
		"note": "one and done",
	}, token)
	require.Equal(t, http.StatusCreated, pay.Code, pay.Body.String())
	var payment paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, pay).Data, &payment)
	require.Equal(t, "one and done", payment.Note)

	closed := getBill(t, env, token, bill.ID)
	require.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.LastPaidAt)
}

func TestBillHandler_AutopayGatedAtAPI(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	bill := createBill(t, env, token, map[string]any{
		"name":        "Streaming",
		"amount":      15,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-05T00:00:00Z",
	})

	// Autopay ships disabled, so the gate rejects the route itself.
	resp := env.Request(http.MethodPut, "/api/bills/"+bill.ID+"/autopay", map[string]any{
		"enabled": true,
	}, token)
	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())
	decoded := testutil.DecodeResponse(t, resp)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "FEATURE_DISABLED", decoded.Error.Code)
	require.Equal(t, features.FlagBillAutopay, decoded.Error.FeatureFlag)
	require.Equal(t, "api_endpoint", decoded.Error.EntityType)
	require.Equal(t, "/api/bills/"+bill.ID+"/autopay", decoded.Error.EntityID)

	admin := env.CreateAdmin("AdminPassw0rd!")
	adminToken := env.Login(admin.Username, "AdminPassw0rd!").Token.AccessToken
	enable := env.Request(http.MethodPut, "/api/features/"+features.FlagBillAutopay, map[string]any{
		"enabled": true,
	}, adminToken)
	require.Equal(t, http.StatusOK, enable.Code, enable.Body.String())

	retry := env.Request(http.MethodPut, "/api/bills/"+bill.ID+"/autopay", map[string]any{
		"enabled": true,
	}, token)
	require.Equal(t, http.StatusOK, retry.Code, retry.Body.String())
	var toggled billPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, retry).Data, &toggled)
	require.True(t, toggled.AutoPay)
}

func TestBillHandler_ListFilters(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	early := createBill(t, env, token, map[string]any{
		"name":        "Rent",
		"amount":      1200,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-01T00:00:00Z",
	})
	late := createBill(t, env, token, map[string]any{
		"name":        "Insurance",
		"amount":      300,
		"currency":    "USD",
		"recurrence":  "yearly",
		"next_due_at": "2026-12-01T00:00:00Z",
	})

	paused := env.Request(http.MethodPatch, "/api/bills/"+late.ID, map[string]any{
		"status": "paused",
	}, token)
	require.Equal(t, http.StatusOK, paused.Code, paused.Body.String())

	byStatus := env.Request(http.MethodGet, "/api/bills?status=paused", nil, token)
	require.Equal(t, http.StatusOK, byStatus.Code)
	var bills []billPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, byStatus).Data, &bills)
	require.Len(t, bills, 1)
	require.Equal(t, late.ID, bills[0].ID)

	byDue := env.Request(http.MethodGet, "/api/bills?due_before=2026-10-01T00:00:00Z", nil, token)
	require.Equal(t, http.StatusOK, byDue.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, byDue).Data, &bills)
	require.Len(t, bills, 1)
	require.Equal(t, early.ID, bills[0].ID)

	badDue := env.Request(http.MethodGet, "/api/bills?due_before=next-tuesday", nil, token)
	require.Equal(t, http.StatusBadRequest, badDue.Code)
}
