package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Details is the type-specific payload stored on an account row. Concrete
// payloads report their type id so gates and decoders can resolve the
// account type without knowing the shape.
type Details interface {
	EntityType() string
}

// BankingDetails carries the fields shared by institution-held accounts.
type BankingDetails struct {
	Institution   string `json:"institution" validate:"required"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
}

// CheckingDetails is the payload for checking accounts.
type CheckingDetails struct {
	BankingDetails

	OverdraftLimit decimal.Decimal `json:"overdraft_limit" validate:"omitempty,gte=0"`
}

// EntityType reports the account type id.
func (CheckingDetails) EntityType() string { return TypeChecking }

// SavingsDetails is the payload for savings accounts.
type SavingsDetails struct {
	BankingDetails

	InterestRateBPS int `json:"interest_rate_bps" validate:"omitempty,gte=0"`
	WithdrawalLimit int `json:"withdrawal_limit" validate:"omitempty,gte=0"`
}

// EntityType reports the account type id.
func (SavingsDetails) EntityType() string { return TypeSavings }

// CreditDetails is the payload for revolving credit accounts.
type CreditDetails struct {
	BankingDetails

	CreditLimit  decimal.Decimal `json:"credit_limit" validate:"required,gt=0"`
	APRBps       int             `json:"apr_bps" validate:"omitempty,gte=0"`
	StatementDay int             `json:"statement_day" validate:"omitempty,gte=1,lte=28"`
}

// EntityType reports the account type id.
func (CreditDetails) EntityType() string { return TypeCredit }

// BNPLDetails is the payload for installment plan accounts.
type BNPLDetails struct {
	Provider          string          `json:"provider" validate:"required"`
	Installments      int             `json:"installments" validate:"required,gte=1"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" validate:"required,gt=0"`
	FirstDueAt        *time.Time      `json:"first_due_at,omitempty"`
}

// EntityType reports the account type id.
func (BNPLDetails) EntityType() string { return TypeBNPL }

// CryptoDetails is the payload for exchange and wallet holdings.
type CryptoDetails struct {
	Exchange      string          `json:"exchange" validate:"required"`
	Symbol        string          `json:"symbol" validate:"required"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	Quantity      decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
}

// EntityType reports the account type id.
func (CryptoDetails) EntityType() string { return TypeCrypto }
