package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
)

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Bill{},
		&models.Income{},
		&models.Payment{},
		&models.AuditLog{},
		&models.FeatureFlag{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createServicesTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createServicesTestAccount(t *testing.T, db *gorm.DB, userID, accountType string, balance decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:      userID,
		Name:        accountType + " " + uuid.NewString()[:8],
		AccountType: accountType,
		Currency:    "USD",
		Status:      models.AccountStatusActive,
		Balance:     balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

// stubFlags is a canned feature flag evaluator for service tests.
type stubFlags struct {
	flags     map[string]bool
	whitelist map[string][]string
	err       error
}

func (s *stubFlags) IsEnabled(_ context.Context, name string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.flags[name], nil
}

func (s *stubFlags) AccountTypeWhitelist(_ context.Context, name string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.whitelist[name], nil
}
