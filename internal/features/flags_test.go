package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
)

type recordingSink struct {
	actions []string
}

func (s *recordingSink) LogEvent(_ context.Context, action, _, _ string, _ map[string]any) {
	s.actions = append(s.actions, action)
}

func setupFeatureTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.FeatureFlag{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestFlagServiceIsEnabled(t *testing.T) {
	db := setupFeatureTestDB(t)

	require.NoError(t, db.Create(&models.FeatureFlag{
		Name:    "BANKING_ACCOUNT_TYPES_ENABLED",
		Enabled: true,
	}).Error)

	svc, err := NewFlagService(db)
	require.NoError(t, err)

	enabled, err := svc.IsEnabled(context.Background(), "BANKING_ACCOUNT_TYPES_ENABLED")
	require.NoError(t, err)
	require.True(t, enabled)

	// Unknown flags evaluate to disabled without erroring.
	enabled, err = svc.IsEnabled(context.Background(), "UNSEEDED_FLAG")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestFlagServiceSetEnabledBustsCache(t *testing.T) {
	db := setupFeatureTestDB(t)

	require.NoError(t, db.Create(&models.FeatureFlag{Name: "TOGGLED_FLAG"}).Error)

	svc, err := NewFlagService(db, WithFlagTTL(time.Hour))
	require.NoError(t, err)

	enabled, err := svc.IsEnabled(context.Background(), "TOGGLED_FLAG")
	require.NoError(t, err)
	require.False(t, enabled)

	require.NoError(t, svc.SetEnabled(context.Background(), "TOGGLED_FLAG", true))

	enabled, err = svc.IsEnabled(context.Background(), "TOGGLED_FLAG")
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestFlagServiceSetEnabledUnknownFlag(t *testing.T) {
	db := setupFeatureTestDB(t)

	svc, err := NewFlagService(db)
	require.NoError(t, err)

	err = svc.SetEnabled(context.Background(), "MISSING_FLAG", true)
	require.ErrorIs(t, err, ErrFlagNotFound)
}

func TestFlagServiceWhitelist(t *testing.T) {
	db := setupFeatureTestDB(t)

	require.NoError(t, db.Create(&models.FeatureFlag{
		Name:         "WHITELISTED_FLAG",
		Enabled:      true,
		AccountTypes: datatypes.JSON([]byte(`["bnpl","crypto"]`)),
	}).Error)

	svc, err := NewFlagService(db)
	require.NoError(t, err)

	whitelist, err := svc.AccountTypeWhitelist(context.Background(), "WHITELISTED_FLAG")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bnpl", "crypto"}, whitelist)

	whitelist, err = svc.AccountTypeWhitelist(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	require.Nil(t, whitelist)
}

func TestFlagServiceSetWhitelist(t *testing.T) {
	db := setupFeatureTestDB(t)

	require.NoError(t, db.Create(&models.FeatureFlag{Name: "RESTRICTED_FLAG"}).Error)

	svc, err := NewFlagService(db, WithFlagTTL(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.SetWhitelist(context.Background(), "RESTRICTED_FLAG", []string{"savings"}))

	whitelist, err := svc.AccountTypeWhitelist(context.Background(), "RESTRICTED_FLAG")
	require.NoError(t, err)
	require.Equal(t, []string{"savings"}, whitelist)
}

func TestFlagServiceCreateAndList(t *testing.T) {
	db := setupFeatureTestDB(t)

	sink := &recordingSink{}
	svc, err := NewFlagService(db, WithAuditSink(sink))
	require.NoError(t, err)

	require.NoError(t, svc.Create(context.Background(), &models.FeatureFlag{
		Name:        "NEW_FLAG",
		Description: "created in test",
	}))

	flag, err := svc.Get(context.Background(), "NEW_FLAG")
	require.NoError(t, err)
	require.Equal(t, "created in test", flag.Description)

	flags, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, flags, 1)

	require.Contains(t, sink.actions, "feature.create")
}

func TestFlagServiceVariant(t *testing.T) {
	db := setupFeatureTestDB(t)

	require.NoError(t, db.Create(&models.FeatureFlag{Name: "VARIANT_FLAG"}).Error)

	svc, err := NewFlagService(db, WithFlagTTL(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.SetVariant(context.Background(), "VARIANT_FLAG", "treatment-b"))

	variant, err := svc.Variant(context.Background(), "VARIANT_FLAG")
	require.NoError(t, err)
	require.Equal(t, "treatment-b", variant)
}

func TestFlagServiceGetUnknownFlag(t *testing.T) {
	db := setupFeatureTestDB(t)

	svc, err := NewFlagService(db)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrFlagNotFound)
}
