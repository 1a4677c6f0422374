package database

import (
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.FeatureFlag{},
		&models.Account{},
		&models.Bill{},
		&models.Income{},
		&models.Payment{},
		&models.CacheEntry{},
	)
}

// SeedData populates the built-in feature flags. Each flag ships with its
// compiled-in requirement payload so a fresh database enforces the same
// boundaries the binary does. Existing rows are never overwritten, which
// keeps administrator changes intact across restarts.
func SeedData(db *gorm.DB) error {
	defaults := features.DefaultRequirements()

	flags := []seedFlag{
		{
			Name:        features.FlagBankingAccountTypes,
			Description: "Unlock extended banking account types such as buy-now-pay-later",
			Enabled:     true,
		},
		{
			Name:        features.FlagCryptoAccounts,
			Description: "Allow crypto wallet accounts to be created and updated",
			Enabled:     false,
		},
		{
			Name:        features.FlagBillAutopay,
			Description: "Allow bills to be paid automatically on their due date",
			Enabled:     false,
		},
	}

	for _, flag := range flags {
		if err := seedFeatureFlag(db, flag, defaults[flag.Name]); err != nil {
			return err
		}
	}

	return nil
}
