package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
)

func newTestBillService(t *testing.T, flags features.Evaluator) (*BillService, *testDeps) {
	t.Helper()

	db := openServicesTestDB(t)
	svc, err := NewBillService(db, flags, nil)
	require.NoError(t, err)

	user := createServicesTestUser(t, db, "bill-owner")
	return svc, &testDeps{db: db, user: user}
}

type testDeps struct {
	db   *gorm.DB
	user *models.User
}

func TestBillServiceCreateValidation(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()
	due := time.Now().AddDate(0, 0, 7)

	_, err := svc.Create(ctx, CreateBillInput{UserID: deps.user.ID, Amount: decimal.NewFromInt(10), NextDueAt: due})
	require.Error(t, err)
	require.Contains(t, err.Error(), "name")

	_, err = svc.Create(ctx, CreateBillInput{UserID: deps.user.ID, Name: "Rent", NextDueAt: due})
	require.Error(t, err)
	require.Contains(t, err.Error(), "positive")

	_, err = svc.Create(ctx, CreateBillInput{UserID: deps.user.ID, Name: "Rent", Amount: decimal.NewFromInt(10)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "due date")

	_, err = svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Rent", Amount: decimal.NewFromInt(10),
		NextDueAt: due, Recurrence: "fortnightly",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "recurrence")
}

func TestBillServiceCreateDefaultsAndList(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	soon := time.Now().AddDate(0, 0, 3)
	later := time.Now().AddDate(0, 0, 20)

	first, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Internet", Amount: decimal.NewFromInt(60),
		Recurrence: "Monthly", NextDueAt: soon, Currency: "eur",
	})
	require.NoError(t, err)
	require.Equal(t, models.RecurrenceMonthly, first.Recurrence)
	require.Equal(t, "EUR", first.Currency)
	require.Equal(t, models.BillStatusActive, first.Status)
	require.False(t, first.AutoPay)

	_, err = svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Insurance", Amount: decimal.NewFromInt(200),
		NextDueAt: later,
	})
	require.NoError(t, err)

	bills, err := svc.List(ctx, deps.user.ID, BillFilters{})
	require.NoError(t, err)
	require.Len(t, bills, 2)
	require.Equal(t, "Internet", bills[0].Name)

	cutoff := time.Now().AddDate(0, 0, 7)
	bills, err = svc.List(ctx, deps.user.ID, BillFilters{DueBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, "Internet", bills[0].Name)
}

func TestBillServicePayDeductsBalanceAndAdvances(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	account := createServicesTestAccount(t, deps.db, deps.user.ID, "checking", decimal.NewFromInt(500))
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	bill, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, AccountID: &account.ID, Name: "Rent",
		Amount: decimal.NewFromInt(120), Recurrence: models.RecurrenceMonthly, NextDueAt: due,
	})
	require.NoError(t, err)

	payment, err := svc.Pay(ctx, deps.user.ID, bill.ID, PayBillInput{Note: "september"})
	require.NoError(t, err)
	require.NotNil(t, payment.BillID)
	require.Equal(t, bill.ID, *payment.BillID)
	require.NotNil(t, payment.AccountID)
	require.Equal(t, account.ID, *payment.AccountID)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(120)))
	require.Equal(t, "september", payment.Note)

	var reloadedAccount models.Account
	require.NoError(t, deps.db.First(&reloadedAccount, "id = ?", account.ID).Error)
	require.True(t, reloadedAccount.Balance.Equal(decimal.NewFromInt(380)),
		"balance = %s", reloadedAccount.Balance)

	reloaded, err := svc.Get(ctx, deps.user.ID, bill.ID)
	require.NoError(t, err)
	require.Equal(t, models.BillStatusActive, reloaded.Status)
	require.NotNil(t, reloaded.LastPaidAt)
	require.Equal(t, due.AddDate(0, 1, 0).Unix(), reloaded.NextDueAt.Unix())
}

func TestBillServicePayClosesOneOffBills(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	bill, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Car registration",
		Amount: decimal.NewFromInt(90), NextDueAt: time.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	require.Equal(t, models.RecurrenceNone, bill.Recurrence)

	_, err = svc.Pay(ctx, deps.user.ID, bill.ID, PayBillInput{})
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, deps.user.ID, bill.ID)
	require.NoError(t, err)
	require.Equal(t, models.BillStatusClosed, reloaded.Status)

	_, err = svc.Pay(ctx, deps.user.ID, bill.ID, PayBillInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}

func TestBillServicePayRejectsForeignFundingAccount(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	other := createServicesTestUser(t, deps.db, "someone-else")
	foreign := createServicesTestAccount(t, deps.db, other.ID, "checking", decimal.NewFromInt(1000))

	bill, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Gym",
		Amount: decimal.NewFromInt(25), NextDueAt: time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	_, err = svc.Pay(ctx, deps.user.ID, bill.ID, PayBillInput{AccountID: &foreign.ID})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestBillServiceSetAutoPay(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	unfunded, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Streaming",
		Amount: decimal.NewFromInt(15), Recurrence: models.RecurrenceMonthly,
		NextDueAt: time.Now().AddDate(0, 0, 10),
	})
	require.NoError(t, err)

	_, err = svc.SetAutoPay(ctx, deps.user.ID, unfunded.ID, true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "funding account")

	account := createServicesTestAccount(t, deps.db, deps.user.ID, "checking", decimal.NewFromInt(100))
	funded, err := svc.Update(ctx, deps.user.ID, unfunded.ID, UpdateBillInput{AccountID: &account.ID})
	require.NoError(t, err)

	funded, err = svc.SetAutoPay(ctx, deps.user.ID, funded.ID, true)
	require.NoError(t, err)
	require.True(t, funded.AutoPay)

	cleared, err := svc.Update(ctx, deps.user.ID, funded.ID, UpdateBillInput{ClearAccount: true})
	require.NoError(t, err)
	require.Nil(t, cleared.AccountID)
	require.False(t, cleared.AutoPay)
}

func TestBillServiceProcessAutoPay(t *testing.T) {
	flags := &stubFlags{flags: map[string]bool{features.FlagBillAutopay: false}}
	svc, deps := newTestBillService(t, flags)
	ctx := context.Background()

	account := createServicesTestAccount(t, deps.db, deps.user.ID, "checking", decimal.NewFromInt(300))
	due := time.Now().Add(-time.Hour)

	bill, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, AccountID: &account.ID, Name: "Electric",
		Amount: decimal.NewFromInt(80), Recurrence: models.RecurrenceMonthly, NextDueAt: due,
	})
	require.NoError(t, err)
	_, err = svc.SetAutoPay(ctx, deps.user.ID, bill.ID, true)
	require.NoError(t, err)

	notDue, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, AccountID: &account.ID, Name: "Water",
		Amount: decimal.NewFromInt(40), Recurrence: models.RecurrenceMonthly,
		NextDueAt: time.Now().AddDate(0, 0, 14),
	})
	require.NoError(t, err)
	_, err = svc.SetAutoPay(ctx, deps.user.ID, notDue.ID, true)
	require.NoError(t, err)

	processed, err := svc.ProcessAutoPay(ctx, time.Now())
	require.NoError(t, err)
	require.Zero(t, processed)

	flags.flags[features.FlagBillAutopay] = true
	processed, err = svc.ProcessAutoPay(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var reloadedAccount models.Account
	require.NoError(t, deps.db.First(&reloadedAccount, "id = ?", account.ID).Error)
	require.True(t, reloadedAccount.Balance.Equal(decimal.NewFromInt(220)),
		"balance = %s", reloadedAccount.Balance)

	reloaded, err := svc.Get(ctx, deps.user.ID, bill.ID)
	require.NoError(t, err)
	require.Equal(t, due.AddDate(0, 1, 0).Unix(), reloaded.NextDueAt.Unix())

	var payments []models.Payment
	require.NoError(t, deps.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	require.Equal(t, "autopay", payments[0].Note)
}

func TestBillServiceOwnershipScoping(t *testing.T) {
	svc, deps := newTestBillService(t, nil)
	ctx := context.Background()

	other := createServicesTestUser(t, deps.db, "intruder")
	bill, err := svc.Create(ctx, CreateBillInput{
		UserID: deps.user.ID, Name: "Phone",
		Amount: decimal.NewFromInt(45), NextDueAt: time.Now().AddDate(0, 0, 6),
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, other.ID, bill.ID)
	require.ErrorIs(t, err, ErrBillNotFound)

	err = svc.Delete(ctx, other.ID, bill.ID)
	require.ErrorIs(t, err, ErrBillNotFound)

	_, err = svc.Get(ctx, deps.user.ID, "missing-id")
	require.ErrorIs(t, err, ErrBillNotFound)
	require.NotErrorIs(t, err, apperrors.ErrBadRequest)
}
