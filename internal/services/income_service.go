package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
)

// ErrIncomeNotFound indicates the requested income does not exist or is not
// visible to the caller.
var ErrIncomeNotFound = apperrors.New("INCOME_NOT_FOUND", "Income not found", http.StatusNotFound)

// IncomeService manages expected inflows and their receipt bookkeeping.
type IncomeService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewIncomeService constructs an IncomeService. The audit service is
// optional.
func NewIncomeService(db *gorm.DB, audit *AuditService) (*IncomeService, error) {
	if db == nil {
		return nil, errors.New("income service: database is required")
	}
	return &IncomeService{db: db, audit: audit}, nil
}

// CreateIncomeInput describes the fields accepted when registering an
// expected inflow.
type CreateIncomeInput struct {
	UserID         string
	AccountID      *string
	Source         string
	Amount         decimal.Decimal
	Currency       string
	Recurrence     string
	NextExpectedAt time.Time
}

// UpdateIncomeInput enumerates mutable income attributes. Nil pointers leave
// the stored value unchanged; ClearAccount detaches the deposit account.
type UpdateIncomeInput struct {
	Source         *string
	Amount         *decimal.Decimal
	Currency       *string
	Recurrence     *string
	NextExpectedAt *time.Time
	Status         *string
	AccountID      *string
	ClearAccount   bool
}

// ReceiveIncomeInput customises a receipt. Zero values fall back to the
// income's own amount and the current time.
type ReceiveIncomeInput struct {
	Amount     *decimal.Decimal
	ReceivedAt *time.Time
}

// Create registers a new expected inflow.
func (s *IncomeService) Create(ctx context.Context, input CreateIncomeInput) (*models.Income, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	source := strings.TrimSpace(input.Source)

	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if source == "" {
		return nil, apperrors.NewBadRequest("income source is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewBadRequest("income amount must be positive")
	}
	if input.NextExpectedAt.IsZero() {
		return nil, apperrors.NewBadRequest("next expected date is required")
	}

	recurrence := strings.ToLower(strings.TrimSpace(input.Recurrence))
	if recurrence == "" {
		recurrence = models.RecurrenceMonthly
	}
	if !validRecurrence(recurrence) {
		return nil, apperrors.NewBadRequest("unknown recurrence: " + recurrence)
	}

	if input.AccountID != nil {
		if err := accountOwnedBy(ctx, s.db, *input.AccountID, userID); err != nil {
			return nil, err
		}
	}

	income := &models.Income{
		UserID:         userID,
		AccountID:      input.AccountID,
		Source:         source,
		Amount:         input.Amount,
		Recurrence:     recurrence,
		NextExpectedAt: input.NextExpectedAt,
		Status:         models.IncomeStatusActive,
	}
	if currency := strings.ToUpper(strings.TrimSpace(input.Currency)); currency != "" {
		income.Currency = currency
	}

	if err := s.db.WithContext(ctx).Create(income).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to create income")
	}

	s.auditIncome(ctx, "income.create", income.ID, "success", nil)
	return income, nil
}

// Update applies a partial update to an owned income.
func (s *IncomeService) Update(ctx context.Context, userID, id string, input UpdateIncomeInput) (*models.Income, error) {
	ctx = ensureContext(ctx)

	income, err := s.ownedIncome(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if input.Source != nil {
		source := strings.TrimSpace(*input.Source)
		if source == "" {
			return nil, apperrors.NewBadRequest("income source cannot be empty")
		}
		updates["source"] = source
	}
	if input.Amount != nil {
		if input.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, apperrors.NewBadRequest("income amount must be positive")
		}
		updates["amount"] = *input.Amount
	}
	if input.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*input.Currency))
		if len(currency) != 3 {
			return nil, apperrors.NewBadRequest("currency must be a 3-letter code")
		}
		updates["currency"] = currency
	}
	if input.Recurrence != nil {
		recurrence := strings.ToLower(strings.TrimSpace(*input.Recurrence))
		if !validRecurrence(recurrence) {
			return nil, apperrors.NewBadRequest("unknown recurrence: " + recurrence)
		}
		updates["recurrence"] = recurrence
	}
	if input.NextExpectedAt != nil {
		updates["next_expected_at"] = *input.NextExpectedAt
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		switch status {
		case models.IncomeStatusActive, models.IncomeStatusEnded:
		default:
			return nil, apperrors.NewBadRequest("unknown income status: " + status)
		}
		updates["status"] = status
	}
	switch {
	case input.ClearAccount:
		updates["account_id"] = nil
	case input.AccountID != nil:
		if err := accountOwnedBy(ctx, s.db, *input.AccountID, userID); err != nil {
			return nil, err
		}
		updates["account_id"] = *input.AccountID
	}

	if len(updates) == 0 {
		return income, nil
	}

	if err := s.db.WithContext(ctx).Model(income).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to update income")
	}

	s.auditIncome(ctx, "income.update", income.ID, "success", nil)
	return s.ownedIncome(ctx, userID, id)
}

// Get loads one owned income.
func (s *IncomeService) Get(ctx context.Context, userID, id string) (*models.Income, error) {
	ctx = ensureContext(ctx)
	return s.ownedIncome(ctx, userID, id)
}

// List returns the caller's incomes ordered by expected date.
func (s *IncomeService) List(ctx context.Context, userID string) ([]models.Income, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var incomes []models.Income
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("next_expected_at asc").
		Find(&incomes).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list incomes")
	}
	return incomes, nil
}

// Delete removes an owned income.
func (s *IncomeService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	income, err := s.ownedIncome(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(income).Error; err != nil {
		return apperrors.Wrap(err, "Failed to delete income")
	}

	s.auditIncome(ctx, "income.delete", id, "success", nil)
	return nil
}

// Receive books an expected inflow: the deposit account's balance grows and
// the schedule advances. Non-recurring incomes end once received.
func (s *IncomeService) Receive(ctx context.Context, userID, id string, input ReceiveIncomeInput) (*models.Income, error) {
	ctx = ensureContext(ctx)

	income, err := s.ownedIncome(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if income.Status != models.IncomeStatusActive {
		return nil, apperrors.NewBadRequest("income is not active")
	}

	amount := income.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewBadRequest("received amount must be positive")
	}

	receivedAt := time.Now().UTC()
	if input.ReceivedAt != nil {
		receivedAt = *input.ReceivedAt
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if income.AccountID != nil {
			result := tx.Model(&models.Account{}).
				Where("id = ?", *income.AccountID).
				Update("balance", gorm.Expr("balance + ?", amount))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return apperrors.ErrNotFound
			}
		}

		updates := make(map[string]any)
		if income.Recurrence == models.RecurrenceNone {
			updates["status"] = models.IncomeStatusEnded
		} else {
			updates["next_expected_at"] = models.NextOccurrence(income.NextExpectedAt, income.Recurrence)
		}
		return tx.Model(&models.Income{}).Where("id = ?", income.ID).Updates(updates).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		s.auditIncome(ctx, "income.receive", income.ID, "failure", map[string]any{"amount": amount.String()})
		return nil, apperrors.Wrap(err, "Failed to receive income")
	}

	s.auditIncome(ctx, "income.receive", income.ID, "success", map[string]any{
		"amount":      amount.String(),
		"received_at": receivedAt.Format(time.RFC3339),
	})
	return s.ownedIncome(ctx, userID, id)
}

func (s *IncomeService) ownedIncome(ctx context.Context, userID, id string) (*models.Income, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequest("income id is required")
	}

	var income models.Income
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&income).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncomeNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load income")
	}
	return &income, nil
}


func (s *IncomeService) auditIncome(ctx context.Context, action, id, result string, metadata map[string]any) {
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "income",
		EntityID: id,
		Result:   result,
		Metadata: metadata,
	})
}
