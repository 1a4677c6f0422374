package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
)

func newGatedBillService(t *testing.T, provider features.Provider, flags features.Evaluator) (*GatedBillService, *gorm.DB, *models.User) {
	t.Helper()

	db := openServicesTestDB(t)
	svc, err := NewBillService(db, flags, nil)
	require.NoError(t, err)

	guard, err := features.NewServiceGuard(provider, flags,
		features.WithServiceName("bills"))
	require.NoError(t, err)

	gated, err := NewGatedBillService(svc, guard)
	require.NoError(t, err)

	user := createServicesTestUser(t, db, "autopay-user")
	return gated, db, user
}

func autopayServiceProvider() features.Provider {
	return features.NewStaticProvider(features.RequirementSet{
		features.FlagBillAutopay: {
			Service: features.LayerRequirements{
				"SetAutoPay": features.TypeList{features.Wildcard},
			},
		},
	})
}

func TestGatedBillServiceAutopayToggle(t *testing.T) {
	flags := &stubFlags{flags: map[string]bool{features.FlagBillAutopay: false}}
	gated, db, user := newGatedBillService(t, autopayServiceProvider(), flags)
	ctx := context.Background()

	account := createServicesTestAccount(t, db, user.ID, "checking", decimal.NewFromInt(400))

	// Everything except the autopay toggle works while the flag is off.
	bill, err := gated.Create(ctx, CreateBillInput{
		UserID: user.ID, AccountID: &account.ID, Name: "Internet",
		Amount: decimal.NewFromInt(60), Recurrence: models.RecurrenceMonthly,
		NextDueAt: time.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)

	_, err = gated.Pay(ctx, user.ID, bill.ID, PayBillInput{})
	require.NoError(t, err)

	_, err = gated.SetAutoPay(ctx, user.ID, bill.ID, true)
	var disabled *features.DisabledError
	require.ErrorAs(t, err, &disabled)
	require.Equal(t, features.FlagBillAutopay, disabled.Feature)
	require.Equal(t, "SetAutoPay", disabled.Operation)
	require.Equal(t, "SetAutoPay", disabled.Pattern)

	reloaded, err := gated.Get(ctx, user.ID, bill.ID)
	require.NoError(t, err)
	require.False(t, reloaded.AutoPay)

	// Flipping the flag takes effect without any cache bust.
	flags.flags[features.FlagBillAutopay] = true

	enabled, err := gated.SetAutoPay(ctx, user.ID, bill.ID, true)
	require.NoError(t, err)
	require.True(t, enabled.AutoPay)
}

type failingProvider struct {
	err error
}

func (p *failingProvider) APIRequirements(context.Context, string) (features.LayerRequirements, error) {
	return nil, p.err
}

func (p *failingProvider) ServiceRequirements(context.Context, string) (features.LayerRequirements, error) {
	return nil, p.err
}

func (p *failingProvider) RepositoryRequirements(context.Context, string) (features.LayerRequirements, error) {
	return nil, p.err
}

func (p *failingProvider) AllRequirements(context.Context) (features.RequirementSet, error) {
	return nil, p.err
}

func (p *failingProvider) Invalidate(...string) {}

func TestGatedBillServiceSurfacesProviderFailures(t *testing.T) {
	flags := &stubFlags{flags: map[string]bool{features.FlagBillAutopay: true}}
	provider := &failingProvider{err: errors.New("requirement store down")}
	gated, _, user := newGatedBillService(t, provider, flags)

	_, err := gated.SetAutoPay(context.Background(), user.ID, "any-bill", true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "requirement store down")
}
