package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recurrence cadences shared by bills and incomes.
const (
	RecurrenceNone     = "none"
	RecurrenceWeekly   = "weekly"
	RecurrenceBiweekly = "biweekly"
	RecurrenceMonthly  = "monthly"
	RecurrenceYearly   = "yearly"
)

// Bill statuses.
const (
	BillStatusActive = "active"
	BillStatusPaused = "paused"
	BillStatusClosed = "closed"
)

// Bill is a recurring or one-off obligation, optionally funded from a
// specific account.
type Bill struct {
	BaseModel

	UserID    string   `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID *string  `gorm:"type:uuid;index" json:"account_id"`
	Account   *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`

	Name     string          `gorm:"not null;index" json:"name"`
	Amount   decimal.Decimal `gorm:"type:decimal(19,4);not null" json:"amount"`
	Currency string          `gorm:"size:3;not null;default:USD" json:"currency"`

	Recurrence string    `gorm:"not null;default:none" json:"recurrence"`
	NextDueAt  time.Time `gorm:"index" json:"next_due_at"`
	AutoPay    bool      `gorm:"default:false" json:"auto_pay"`
	Status     string    `gorm:"not null;default:active" json:"status"`

	LastPaidAt *time.Time `json:"last_paid_at"`

	Payments []Payment `gorm:"foreignKey:BillID" json:"payments,omitempty"`
}

// NextOccurrence advances a due date by one recurrence period. Dates on
// non-recurring bills are returned unchanged.
func NextOccurrence(due time.Time, recurrence string) time.Time {
	switch recurrence {
	case RecurrenceWeekly:
		return due.AddDate(0, 0, 7)
	case RecurrenceBiweekly:
		return due.AddDate(0, 0, 14)
	case RecurrenceMonthly:
		return due.AddDate(0, 1, 0)
	case RecurrenceYearly:
		return due.AddDate(1, 0, 0)
	default:
		return due
	}
}
