package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mwhitfield/ledgerline/internal/models"
)

func TestPaymentServiceListFilters(t *testing.T) {
	db := openServicesTestDB(t)
	payments, err := NewPaymentService(db)
	require.NoError(t, err)
	bills, err := NewBillService(db, nil, nil)
	require.NoError(t, err)

	user := createServicesTestUser(t, db, "payer")
	account := createServicesTestAccount(t, db, user.ID, "checking", decimal.NewFromInt(1000))
	ctx := context.Background()

	rent, err := bills.Create(ctx, CreateBillInput{
		UserID: user.ID, AccountID: &account.ID, Name: "Rent",
		Amount: decimal.NewFromInt(800), Recurrence: models.RecurrenceMonthly,
		NextDueAt: time.Now().AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	gym, err := bills.Create(ctx, CreateBillInput{
		UserID: user.ID, Name: "Gym",
		Amount: decimal.NewFromInt(30), Recurrence: models.RecurrenceMonthly,
		NextDueAt: time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	first, err := bills.Pay(ctx, user.ID, rent.ID, PayBillInput{})
	require.NoError(t, err)
	_, err = bills.Pay(ctx, user.ID, gym.ID, PayBillInput{})
	require.NoError(t, err)

	all, err := payments.List(ctx, user.ID, PaymentFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	byBill, err := payments.List(ctx, user.ID, PaymentFilters{BillID: rent.ID})
	require.NoError(t, err)
	require.Len(t, byBill, 1)
	require.Equal(t, first.ID, byBill[0].ID)

	byAccount, err := payments.List(ctx, user.ID, PaymentFilters{AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)

	limited, err := payments.List(ctx, user.ID, PaymentFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestPaymentServiceGetScopedToOwner(t *testing.T) {
	db := openServicesTestDB(t)
	payments, err := NewPaymentService(db)
	require.NoError(t, err)
	bills, err := NewBillService(db, nil, nil)
	require.NoError(t, err)

	owner := createServicesTestUser(t, db, "payment-owner")
	other := createServicesTestUser(t, db, "payment-other")
	ctx := context.Background()

	bill, err := bills.Create(ctx, CreateBillInput{
		UserID: owner.ID, Name: "Insurance",
		Amount: decimal.NewFromInt(120), NextDueAt: time.Now().AddDate(0, 0, 3),
	})
	require.NoError(t, err)

	payment, err := bills.Pay(ctx, owner.ID, bill.ID, PayBillInput{})
	require.NoError(t, err)

	loaded, err := payments.Get(ctx, owner.ID, payment.ID)
	require.NoError(t, err)
	require.Equal(t, payment.ID, loaded.ID)

	_, err = payments.Get(ctx, other.ID, payment.ID)
	require.ErrorIs(t, err, ErrPaymentNotFound)

	foreign, err := payments.List(ctx, other.ID, PaymentFilters{})
	require.NoError(t, err)
	require.Empty(t, foreign)
}
