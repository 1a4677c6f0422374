package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account statuses.
const (
	AccountStatusActive = "active"
	AccountStatusClosed = "closed"
)

// Account represents one tracked financial account. Fields specific to the
// account type live in Details, discriminated by AccountType.
type Account struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Name        string `gorm:"not null;index" json:"name"`
	AccountType string `gorm:"not null;index" json:"account_type"`
	Currency    string `gorm:"size:3;not null;default:USD" json:"currency"`
	Status      string `gorm:"not null;default:active" json:"status"`

	Balance decimal.Decimal `gorm:"type:decimal(19,4);not null;default:0" json:"balance"`
	Details datatypes.JSON  `json:"details"`

	Bills   []Bill   `gorm:"foreignKey:AccountID" json:"bills,omitempty"`
	Incomes []Income `gorm:"foreignKey:AccountID" json:"incomes,omitempty"`
}

// EntityType reports the account type for feature gating.
func (a *Account) EntityType() string {
	return a.AccountType
}

// This ensures dependent bills, incomes and payments do not point at a
// deleted account.
func (a *Account) BeforeDelete(tx *gorm.DB) error {
	if err := tx.Model(&Bill{}).Where("account_id = ?", a.ID).
		Update("account_id", nil).Error; err != nil {
		return err
	}

	if err := tx.Model(&Income{}).Where("account_id = ?", a.ID).
		Update("account_id", nil).Error; err != nil {
		return err
	}

	return tx.Model(&Payment{}).Where("account_id = ?", a.ID).
		Update("account_id", nil).Error
}
