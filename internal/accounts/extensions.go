package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	"github.com/mwhitfield/ledgerline/pkg/crypto"
)

// Extension hooks type-specific behaviour into the account repository.
// Extensions are chosen per type id at construction time; an unregistered
// type simply runs the base behaviour.
type Extension interface {
	// PrepareWrite adjusts a details payload before it is validated and
	// persisted. It runs on both create and update paths.
	PrepareWrite(ctx context.Context, details map[string]any) error
	// AfterCreate runs inside the creating transaction once the account row
	// exists.
	AfterCreate(ctx context.Context, tx *gorm.DB, account *models.Account) error
}

// encryptedPrefix marks an account number that has already been sealed, so
// round-tripped payloads are not encrypted twice.
const encryptedPrefix = "v1:"

// BankingExtension seals account numbers at rest for institution-held
// account types.
type BankingExtension struct {
	key []byte
}

// NewBankingExtension builds the banking extension with the given AES key.
// Valid key sizes are 16, 24 and 32 bytes.
func NewBankingExtension(key []byte) (*BankingExtension, error) {
	switch len(key) {
	case 16, 24, 32:
		return &BankingExtension{key: key}, nil
	default:
		return nil, errors.New("accounts: encryption key must be 16, 24 or 32 bytes")
	}
}

// PrepareWrite encrypts the account_number value in place. Already sealed
// values pass through unchanged.
func (e *BankingExtension) PrepareWrite(_ context.Context, details map[string]any) error {
	raw, ok := details["account_number"].(string)
	if !ok || raw == "" || strings.HasPrefix(raw, encryptedPrefix) {
		return nil
	}

	sealed, err := crypto.Encrypt([]byte(raw), e.key)
	if err != nil {
		return fmt.Errorf("accounts: encrypt account number: %w", err)
	}
	details["account_number"] = encryptedPrefix + sealed
	return nil
}

// AfterCreate is a no-op for banking accounts.
func (e *BankingExtension) AfterCreate(context.Context, *gorm.DB, *models.Account) error {
	return nil
}

// Reveal decrypts a sealed account number. Values without the seal prefix
// are returned unchanged.
func (e *BankingExtension) Reveal(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}

	plain, err := crypto.Decrypt(strings.TrimPrefix(value, encryptedPrefix), e.key)
	if err != nil {
		return "", fmt.Errorf("accounts: decrypt account number: %w", err)
	}
	return string(plain), nil
}

// BNPLExtension seeds the installment schedule for new pay-later accounts.
type BNPLExtension struct{}

// PrepareWrite is a no-op for pay-later accounts.
func (BNPLExtension) PrepareWrite(context.Context, map[string]any) error {
	return nil
}

// AfterCreate creates the recurring installment bill funded by the new
// account, due monthly starting at first_due_at.
func (BNPLExtension) AfterCreate(ctx context.Context, tx *gorm.DB, account *models.Account) error {
	var details BNPLDetails
	if err := json.Unmarshal(account.Details, &details); err != nil {
		return fmt.Errorf("accounts: decode bnpl details: %w", err)
	}

	due := time.Now().AddDate(0, 1, 0)
	if details.FirstDueAt != nil {
		due = *details.FirstDueAt
	}

	bill := &models.Bill{
		UserID:     account.UserID,
		AccountID:  &account.ID,
		Name:       account.Name + " installment",
		Amount:     details.InstallmentAmount,
		Currency:   account.Currency,
		Recurrence: models.RecurrenceMonthly,
		NextDueAt:  due,
		Status:     models.BillStatusActive,
	}
	if err := tx.WithContext(ctx).Create(bill).Error; err != nil {
		return fmt.Errorf("accounts: seed installment bill: %w", err)
	}
	return nil
}

// CryptoExtension normalises exchange holdings before persistence.
type CryptoExtension struct{}

// PrepareWrite upper-cases the ticker symbol and trims the exchange name.
func (CryptoExtension) PrepareWrite(_ context.Context, details map[string]any) error {
	if symbol, ok := details["symbol"].(string); ok {
		details["symbol"] = strings.ToUpper(strings.TrimSpace(symbol))
	}
	if exchange, ok := details["exchange"].(string); ok {
		details["exchange"] = strings.TrimSpace(exchange)
	}
	return nil
}

// AfterCreate is a no-op for crypto accounts.
func (CryptoExtension) AfterCreate(context.Context, *gorm.DB, *models.Account) error {
	return nil
}
