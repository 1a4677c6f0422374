package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment records money applied toward a bill, optionally drawn from a
// tracked account.
type Payment struct {
	BaseModel

	UserID    string   `gorm:"type:uuid;not null;index" json:"user_id"`
	BillID    *string  `gorm:"type:uuid;index" json:"bill_id"`
	Bill      *Bill    `gorm:"foreignKey:BillID" json:"bill,omitempty"`
	AccountID *string  `gorm:"type:uuid;index" json:"account_id"`
	Account   *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`

	Amount   decimal.Decimal `gorm:"type:decimal(19,4);not null" json:"amount"`
	Currency string          `gorm:"size:3;not null;default:USD" json:"currency"`
	PaidAt   time.Time       `gorm:"index" json:"paid_at"`
	Note     string          `json:"note"`
}
