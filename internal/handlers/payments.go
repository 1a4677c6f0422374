package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mwhitfield/ledgerline/internal/middleware"
	"github.com/mwhitfield/ledgerline/internal/models"
	"github.com/mwhitfield/ledgerline/internal/services"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/response"
)

// PaymentHandler reads the payment history. Payments are written by bill
// operations, never directly through this handler.
type PaymentHandler struct {
	svc *services.PaymentService
}

func NewPaymentHandler(svc *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type paymentDTO struct {
	ID        string          `json:"id"`
	BillID    *string         `json:"bill_id,omitempty"`
	AccountID *string         `json:"account_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Note      string          `json:"note,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func mapPayment(payment *models.Payment) paymentDTO {
	return paymentDTO{
		ID:        payment.ID,
		BillID:    payment.BillID,
		AccountID: payment.AccountID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		PaidAt:    payment.PaidAt.Format(time.RFC3339),
		Note:      payment.Note,
		CreatedAt: payment.CreatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/payments
func (h *PaymentHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var filters services.PaymentFilters
	filters.BillID = strings.TrimSpace(c.Query("bill_id"))
	filters.AccountID = strings.TrimSpace(c.Query("account_id"))
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("from must be an RFC3339 timestamp"))
			return
		}
		filters.From = &t
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("to must be an RFC3339 timestamp"))
			return
		}
		filters.To = &t
	}
	filters.Limit = parseIntQuery(c, "limit", 0)

	payments, err := h.svc.List(requestContext(c), userID, filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, mapPayment(&payments[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	paymentID := strings.TrimSpace(c.Param("id"))
	if paymentID == "" {
		response.Error(c, apperrors.NewBadRequest("payment id is required"))
		return
	}

	payment, err := h.svc.Get(requestContext(c), userID, paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapPayment(payment))
}
