package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
)

// ErrBillNotFound indicates the requested bill does not exist or is not
// visible to the caller.
var ErrBillNotFound = apperrors.New("BILL_NOT_FOUND", "Bill not found", http.StatusNotFound)

// BillService manages bills: recurring obligations, their payments and the
// autopay schedule.
type BillService struct {
	db    *gorm.DB
	flags features.Evaluator
	audit *AuditService
}

// NewBillService constructs a BillService. The evaluator and audit service
// are optional.
func NewBillService(db *gorm.DB, flags features.Evaluator, audit *AuditService) (*BillService, error) {
	if db == nil {
		return nil, errors.New("bill service: database is required")
	}
	return &BillService{db: db, flags: flags, audit: audit}, nil
}

// CreateBillInput describes the fields accepted when registering a bill.
// Autopay is always off at creation and enabled through SetAutoPay.
type CreateBillInput struct {
	UserID     string
	AccountID  *string
	Name       string
	Amount     decimal.Decimal
	Currency   string
	Recurrence string
	NextDueAt  time.Time
}

// UpdateBillInput enumerates mutable bill attributes. Nil pointers leave the
// stored value unchanged; ClearAccount detaches the funding account.
type UpdateBillInput struct {
	Name         *string
	Amount       *decimal.Decimal
	Currency     *string
	Recurrence   *string
	NextDueAt    *time.Time
	Status       *string
	AccountID    *string
	ClearAccount bool
}

// BillFilters narrows List results.
type BillFilters struct {
	Status    string
	AutoPay   *bool
	DueBefore *time.Time
}

// PayBillInput customises a payment. Zero values fall back to the bill's
// own amount, funding account and the current time.
type PayBillInput struct {
	AccountID *string
	Amount    *decimal.Decimal
	PaidAt    *time.Time
	Note      string
}

// Create registers a new bill.
func (s *BillService) Create(ctx context.Context, input CreateBillInput) (*models.Bill, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	name := strings.TrimSpace(input.Name)

	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("bill name is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewBadRequest("bill amount must be positive")
	}
	if input.NextDueAt.IsZero() {
		return nil, apperrors.NewBadRequest("next due date is required")
	}

	recurrence := strings.ToLower(strings.TrimSpace(input.Recurrence))
	if recurrence == "" {
		recurrence = models.RecurrenceNone
	}
	if !validRecurrence(recurrence) {
		return nil, apperrors.NewBadRequest("unknown recurrence: " + recurrence)
	}

	if input.AccountID != nil {
		if err := accountOwnedBy(ctx, s.db, *input.AccountID, userID); err != nil {
			return nil, err
		}
	}

	bill := &models.Bill{
		UserID:     userID,
		AccountID:  input.AccountID,
		Name:       name,
		Amount:     input.Amount,
		Recurrence: recurrence,
		NextDueAt:  input.NextDueAt,
		Status:     models.BillStatusActive,
	}
	if currency := strings.ToUpper(strings.TrimSpace(input.Currency)); currency != "" {
		bill.Currency = currency
	}

	if err := s.db.WithContext(ctx).Create(bill).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to create bill")
	}

	s.auditBill(ctx, "bill.create", bill.ID, "success", nil)
	return bill, nil
}

// Update applies a partial update to an owned bill.
func (s *BillService) Update(ctx context.Context, userID, id string, input UpdateBillInput) (*models.Bill, error) {
	ctx = ensureContext(ctx)

	bill, err := s.ownedBill(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("bill name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Amount != nil {
		if input.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, apperrors.NewBadRequest("bill amount must be positive")
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
	if input.NextDueAt != nil {
		updates["next_due_at"] = *input.NextDueAt
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		switch status {
		case models.BillStatusActive, models.BillStatusPaused, models.BillStatusClosed:
		default:
			return nil, apperrors.NewBadRequest("unknown bill status: " + status)
		}
		updates["status"] = status
	}
	switch {
	case input.ClearAccount:
		updates["account_id"] = nil
		updates["auto_pay"] = false
	case input.AccountID != nil:
		if err := accountOwnedBy(ctx, s.db, *input.AccountID, userID); err != nil {
			return nil, err
		}
		updates["account_id"] = *input.AccountID
	}

	if len(updates) == 0 {
		return bill, nil
	}

	if err := s.db.WithContext(ctx).Model(bill).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to update bill")
	}

	s.auditBill(ctx, "bill.update", bill.ID, "success", nil)
	return s.ownedBill(ctx, userID, id)
}

// Get loads one owned bill.
func (s *BillService) Get(ctx context.Context, userID, id string) (*models.Bill, error) {
	ctx = ensureContext(ctx)
	return s.ownedBill(ctx, userID, id)
}

// List returns the caller's bills ordered by due date.
func (s *BillService) List(ctx context.Context, userID string, filters BillFilters) ([]models.Bill, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.AutoPay != nil {
		query = query.Where("auto_pay = ?", *filters.AutoPay)
	}
	if filters.DueBefore != nil {
		query = query.Where("next_due_at <= ?", *filters.DueBefore)
	}

	var bills []models.Bill
	if err := query.Order("next_due_at asc").Find(&bills).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to list bills")
	}
	return bills, nil
}

// Delete removes an owned bill. Its payments keep their bill reference until
// the row is purged.
func (s *BillService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	bill, err := s.ownedBill(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(bill).Error; err != nil {
		return apperrors.Wrap(err, "Failed to delete bill")
	}

	s.auditBill(ctx, "bill.delete", id, "success", nil)
	return nil
}

// Pay records a payment against an owned bill, deducts the funding account's
// balance and advances the schedule. One-off bills close once paid.
func (s *BillService) Pay(ctx context.Context, userID, id string, input PayBillInput) (*models.Payment, error) {
	ctx = ensureContext(ctx)

	bill, err := s.ownedBill(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if bill.Status == models.BillStatusClosed {
		return nil, apperrors.NewBadRequest("bill is closed")
	}

	amount := bill.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.NewBadRequest("payment amount must be positive")
	}

	accountID := bill.AccountID
	if input.AccountID != nil {
		if err := accountOwnedBy(ctx, s.db, *input.AccountID, userID); err != nil {
			return nil, err
		}
		accountID = input.AccountID
	}

	paidAt := time.Now().UTC()
	if input.PaidAt != nil {
		paidAt = *input.PaidAt
	}

	payment, err := s.settle(ctx, bill, accountID, amount, paidAt, strings.TrimSpace(input.Note))
	if err != nil {
		metrics.BillPayments.WithLabelValues("failure").Inc()
		s.auditBill(ctx, "bill.pay", bill.ID, "failure", map[string]any{"amount": amount.String()})
		return nil, err
	}

	metrics.BillPayments.WithLabelValues("success").Inc()
	s.auditBill(ctx, "bill.pay", bill.ID, "success", map[string]any{
		"amount":     amount.String(),
		"payment_id": payment.ID,
	})
	return payment, nil
}

// settle runs the payment bookkeeping in one transaction.
func (s *BillService) settle(ctx context.Context, bill *models.Bill, accountID *string, amount decimal.Decimal, paidAt time.Time, note string) (*models.Payment, error) {
	payment := &models.Payment{
		UserID:    bill.UserID,
		BillID:    &bill.ID,
		AccountID: accountID,
		Amount:    amount,
		Currency:  bill.Currency,
		PaidAt:    paidAt,
		Note:      note,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		if accountID != nil {
			result := tx.Model(&models.Account{}).
				Where("id = ?", *accountID).
				Update("balance", gorm.Expr("balance - ?", amount))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return apperrors.ErrNotFound
			}
		}

		updates := map[string]any{"last_paid_at": paidAt}
		if bill.Recurrence == models.RecurrenceNone {
			updates["status"] = models.BillStatusClosed
		} else {
			updates["next_due_at"] = models.NextOccurrence(bill.NextDueAt, bill.Recurrence)
		}
		return tx.Model(&models.Bill{}).Where("id = ?", bill.ID).Updates(updates).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, apperrors.Wrap(err, "Failed to record payment")
	}
	return payment, nil
}

// SetAutoPay toggles automatic payment for an owned bill. Enabling requires
// a funding account.
func (s *BillService) SetAutoPay(ctx context.Context, userID, id string, enabled bool) (*models.Bill, error) {
	ctx = ensureContext(ctx)

	bill, err := s.ownedBill(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if bill.Status == models.BillStatusClosed {
		return nil, apperrors.NewBadRequest("bill is closed")
	}
	if enabled && bill.AccountID == nil {
		return nil, apperrors.NewBadRequest("autopay requires a funding account")
	}

	if err := s.db.WithContext(ctx).Model(bill).Update("auto_pay", enabled).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to update autopay")
	}

	s.auditBill(ctx, "bill.autopay", bill.ID, "success", map[string]any{"enabled": enabled})
	bill.AutoPay = enabled
	return bill, nil
}

// ProcessAutoPay pays every active autopay bill due at or before now and
// returns how many were settled. The sweep is a no-op while the autopay
// flag is disabled.
func (s *BillService) ProcessAutoPay(ctx context.Context, now time.Time) (int, error) {
	ctx = ensureContext(ctx)

	if s.flags != nil {
		enabled, err := s.flags.IsEnabled(ctx, features.FlagBillAutopay)
		if err != nil {
			return 0, err
		}
		if !enabled {
			return 0, nil
		}
	}

	var due []models.Bill
	err := s.db.WithContext(ctx).
		Where("auto_pay = ? AND status = ? AND next_due_at <= ? AND account_id IS NOT NULL",
			true, models.BillStatusActive, now).
		Order("next_due_at asc").
		Find(&due).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "Failed to load autopay bills")
	}

	var processed int
	var errs error
	for i := range due {
		bill := due[i]
		if _, err := s.settle(ctx, &bill, bill.AccountID, bill.Amount, now, "autopay"); err != nil {
			errs = multierr.Append(errs, err)
			metrics.BillPayments.WithLabelValues("failure").Inc()
			continue
		}
		processed++
		metrics.BillPayments.WithLabelValues("success").Inc()
	}
	return processed, errs
}

// AdvanceLapsed moves the due date of recurring active bills forward until
// it is in the future. It runs after the autopay sweep so settled bills are
// already advanced; what remains is bills nobody paid, whose history lives
// in the payments table rather than in a stale due date.
func (s *BillService) AdvanceLapsed(ctx context.Context, now time.Time) (int, error) {
	ctx = ensureContext(ctx)

	var lapsed []models.Bill
	err := s.db.WithContext(ctx).
		Where("status = ? AND recurrence <> ? AND next_due_at <= ?",
			models.BillStatusActive, models.RecurrenceNone, now).
		Find(&lapsed).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "Failed to load lapsed bills")
	}

	var advanced int
	var errs error
	for i := range lapsed {
		bill := lapsed[i]
		next := bill.NextDueAt
		for !next.After(now) {
			next = models.NextOccurrence(next, bill.Recurrence)
		}

		if err := s.db.WithContext(ctx).Model(&models.Bill{}).
			Where("id = ?", bill.ID).
			Update("next_due_at", next).Error; err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		advanced++
	}
	return advanced, errs
}

func (s *BillService) ownedBill(ctx context.Context, userID, id string) (*models.Bill, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequest("bill id is required")
	}

	var bill models.Bill
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load bill")
	}
	return &bill, nil
}


func (s *BillService) auditBill(ctx context.Context, action, id, result string, metadata map[string]any) {
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "bill",
		EntityID: id,
		Result:   result,
		Metadata: metadata,
	})
}

func validRecurrence(r string) bool {
	switch r {
	case models.RecurrenceNone, models.RecurrenceWeekly, models.RecurrenceBiweekly,
		models.RecurrenceMonthly, models.RecurrenceYearly:
		return true
	}
	return false
}
