package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Income statuses.
const (
	IncomeStatusActive = "active"
	IncomeStatusEnded  = "ended"
)

// Income is an expected inflow such as a salary or recurring deposit,
// optionally tied to the account it lands in.
type Income struct {
	BaseModel

	UserID    string   `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID *string  `gorm:"type:uuid;index" json:"account_id"`
	Account   *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`

	Source   string          `gorm:"not null" json:"source"`
	Amount   decimal.Decimal `gorm:"type:decimal(19,4);not null" json:"amount"`
	Currency string          `gorm:"size:3;not null;default:USD" json:"currency"`

	Recurrence     string    `gorm:"not null;default:monthly" json:"recurrence"`
	NextExpectedAt time.Time `gorm:"index" json:"next_expected_at"`
	Status         string    `gorm:"not null;default:active" json:"status"`
}
