package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwhitfield/ledgerline/internal/handlers/testutil"
)

func payBill(t *testing.T, env *testutil.Env, token, billID string) paymentPayload {
	t.Helper()

	resp := env.Request(http.MethodPost, "/api/bills/"+billID+"/pay", map[string]any{}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var payment paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &payment)
	return payment
}

func TestPaymentHandler_ListAndGet(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Passw0rd!234")
	token := env.Login(user.Username, "Passw0rd!234").Token.AccessToken

	rent := createBill(t, env, token, map[string]any{
		"name":        "Rent",
		"amount":      1200,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-01T00:00:00Z",
	})
	water := createBill(t, env, token, map[string]any{
		"name":        "Water",
		"amount":      38,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-10T00:00:00Z",
	})

	rentPayment := payBill(t, env, token, rent.ID)
	payBill(t, env, token, water.ID)

	list := env.Request(http.MethodGet, "/api/payments", nil, token)
	require.Equal(t, http.StatusOK, list.Code)
	var payments []paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &payments)
	require.Len(t, payments, 2)

	filtered := env.Request(http.MethodGet, "/api/payments?bill_id="+rent.ID, nil, token)
	require.Equal(t, http.StatusOK, filtered.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, filtered).Data, &payments)
	require.Len(t, payments, 1)
	require.Equal(t, rentPayment.ID, payments[0].ID)

	get := env.Request(http.MethodGet, "/api/payments/"+rentPayment.ID, nil, token)
	require.Equal(t, http.StatusOK, get.Code)
	var fetched paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, get).Data, &fetched)
	require.Equal(t, rentPayment.ID, fetched.ID)
	require.NotNil(t, fetched.BillID)
	require.Equal(t, rent.ID, *fetched.BillID)

	bad := env.Request(http.MethodGet, "/api/payments?from=yesterday", nil, token)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestPaymentHandler_OwnershipIsolation(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("Passw0rd!234")
	ownerToken := env.Login(owner.Username, "Passw0rd!234").Token.AccessToken
	other := env.CreateUser("Passw0rd!234")
	otherToken := env.Login(other.Username, "Passw0rd!234").Token.AccessToken

	bill := createBill(t, env, ownerToken, map[string]any{
		"name":        "Gym",
		"amount":      30,
		"currency":    "USD",
		"recurrence":  "monthly",
		"next_due_at": "2026-09-01T00:00:00Z",
	})
	payment := payBill(t, env, ownerToken, bill.ID)

	list := env.Request(http.MethodGet, "/api/payments", nil, otherToken)
	require.Equal(t, http.StatusOK, list.Code)
	var payments []paymentPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &payments)
	require.Empty(t, payments)

	get := env.Request(http.MethodGet, "/api/payments/"+payment.ID, nil, otherToken)
	require.Equal(t, http.StatusNotFound, get.Code)
}
