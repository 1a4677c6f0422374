package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
)

// ErrPaymentNotFound indicates the requested payment does not exist or is
// not visible to the caller.
var ErrPaymentNotFound = apperrors.New("PAYMENT_NOT_FOUND", "Payment not found", http.StatusNotFound)

// PaymentService reads the payment ledger. Payments are written only by the
// bill settlement path, so the service is read-only.
type PaymentService struct {
	db *gorm.DB
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB) (*PaymentService, error) {
	if db == nil {
		return nil, errors.New("payment service: database is required")
	}
	return &PaymentService{db: db}, nil
}

// PaymentFilters narrows List results.
type PaymentFilters struct {
	BillID    string
	AccountID string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// List returns the caller's payments, newest first.
func (s *PaymentService) List(ctx context.Context, userID string, filters PaymentFilters) ([]models.Payment, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filters.BillID != "" {
		query = query.Where("bill_id = ?", filters.BillID)
	}
	if filters.AccountID != "" {
		query = query.Where("account_id = ?", filters.AccountID)
	}
	if filters.From != nil {
		query = query.Where("paid_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("paid_at <= ?", *filters.To)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var payments []models.Payment
	if err := query.Order("paid_at desc").Find(&payments).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to list payments")
	}
	return payments, nil
}

// Get loads one owned payment.
func (s *PaymentService) Get(ctx context.Context, userID, id string) (*models.Payment, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequest("payment id is required")
	}

	var payment models.Payment
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load payment")
	}
	return &payment, nil
}
