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

// BillHandler exposes the bill lifecycle: CRUD, manual payment and the
// autopay toggle.
type BillHandler struct {
	svc *services.GatedBillService
}

func NewBillHandler(svc *services.GatedBillService) *BillHandler {
	return &BillHandler{svc: svc}
}

type billDTO struct {
	ID         string          `json:"id"`
	AccountID  *string         `json:"account_id,omitempty"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Recurrence string          `json:"recurrence"`
	NextDueAt  string          `json:"next_due_at"`
	AutoPay    bool            `json:"auto_pay"`
	Status     string          `json:"status"`
	LastPaidAt *string         `json:"last_paid_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func mapBill(bill *models.Bill) billDTO {
	dto := billDTO{
		ID:         bill.ID,
		AccountID:  bill.AccountID,
		Name:       bill.Name,
		Amount:     bill.Amount,
		Currency:   bill.Currency,
		Recurrence: bill.Recurrence,
		NextDueAt:  bill.NextDueAt.Format(time.RFC3339),
		AutoPay:    bill.AutoPay,
		Status:     bill.Status,
		CreatedAt:  bill.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  bill.UpdatedAt.Format(time.RFC3339),
	}
	if bill.LastPaidAt != nil {
		paidAt := bill.LastPaidAt.Format(time.RFC3339)
		dto.LastPaidAt = &paidAt
	}
	return dto
}

type createBillRequest struct {
	Name       string          `json:"name" validate:"required,max=120"`
	AccountID  *string         `json:"account_id"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"omitempty,len=3"`
	Recurrence string          `json:"recurrence" validate:"omitempty,oneof=none weekly biweekly monthly yearly"`
	NextDueAt  time.Time       `json:"next_due_at" validate:"required"`
}

// Create handles POST /api/bills
func (h *BillHandler) Create(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body createBillRequest
	if !bindAndValidate(c, &body) {
		return
	}

	bill, err := h.svc.Create(requestContext(c), services.CreateBillInput{
		UserID:     userID,
		AccountID:  body.AccountID,
		Name:       body.Name,
		Amount:     body.Amount,
		Currency:   body.Currency,
		Recurrence: body.Recurrence,
		NextDueAt:  body.NextDueAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapBill(bill))
}

// List handles GET /api/bills
func (h *BillHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var filters services.BillFilters
	filters.Status = strings.TrimSpace(c.Query("status"))
	if v := strings.TrimSpace(c.Query("auto_pay")); v != "" {
		autoPay := v == "true" || v == "1"
		filters.AutoPay = &autoPay
	}
	if v := strings.TrimSpace(c.Query("due_before")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("due_before must be an RFC3339 timestamp"))
			return
		}
		filters.DueBefore = &t
	}

	bills, err := h.svc.List(requestContext(c), userID, filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	dtos := make([]billDTO, 0, len(bills))
	for i := range bills {
		dtos = append(dtos, mapBill(&bills[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/bills/:id
func (h *BillHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billID := strings.TrimSpace(c.Param("id"))
	if billID == "" {
		response.Error(c, apperrors.NewBadRequest("bill id is required"))
		return
	}

	bill, err := h.svc.Get(requestContext(c), userID, billID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapBill(bill))
}

type updateBillRequest struct {
	Name         *string          `json:"name" validate:"omitempty,max=120"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     *string          `json:"currency" validate:"omitempty,len=3"`
	Recurrence   *string          `json:"recurrence" validate:"omitempty,oneof=none weekly biweekly monthly yearly"`
	NextDueAt    *time.Time       `json:"next_due_at"`
	Status       *string          `json:"status" validate:"omitempty,oneof=active paused closed"`
	AccountID    *string          `json:"account_id"`
	ClearAccount bool             `json:"clear_account"`
}

// Update handles PATCH /api/bills/:id
func (h *BillHandler) Update(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billID := strings.TrimSpace(c.Param("id"))
	if billID == "" {
		response.Error(c, apperrors.NewBadRequest("bill id is required"))
		return
	}

	var body updateBillRequest
	if !bindAndValidate(c, &body) {
		return
	}

	bill, err := h.svc.Update(requestContext(c), userID, billID, services.UpdateBillInput{
		Name:         body.Name,
		Amount:       body.Amount,
		Currency:     body.Currency,
		Recurrence:   body.Recurrence,
		NextDueAt:    body.NextDueAt,
		Status:       body.Status,
		AccountID:    body.AccountID,
		ClearAccount: body.ClearAccount,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapBill(bill))
}

// Delete handles DELETE /api/bills/:id
func (h *BillHandler) Delete(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billID := strings.TrimSpace(c.Param("id"))
	if billID == "" {
		response.Error(c, apperrors.NewBadRequest("bill id is required"))
		return
	}

	if err := h.svc.Delete(requestContext(c), userID, billID); err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type payBillRequest struct {
	AccountID *string          `json:"account_id"`
	Amount    *decimal.Decimal `json:"amount"`
	PaidAt    *time.Time       `json:"paid_at"`
	Note      string           `json:"note" validate:"omitempty,max=500"`
}

// Pay handles POST /api/bills/:id/pay
func (h *BillHandler) Pay(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billID := strings.TrimSpace(c.Param("id"))
	if billID == "" {
		response.Error(c, apperrors.NewBadRequest("bill id is required"))
		return
	}

	var body payBillRequest
	if !bindAndValidate(c, &body) {
		return
	}

	payment, err := h.svc.Pay(requestContext(c), userID, billID, services.PayBillInput{
		AccountID: body.AccountID,
		Amount:    body.Amount,
		PaidAt:    body.PaidAt,
		Note:      body.Note,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapPayment(payment))
}

type setAutoPayRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoPay handles PUT /api/bills/:id/autopay
func (h *BillHandler) SetAutoPay(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	billID := strings.TrimSpace(c.Param("id"))
	if billID == "" {
		response.Error(c, apperrors.NewBadRequest("bill id is required"))
		return
	}

	var body setAutoPayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid autopay payload"))
		return
	}

	bill, err := h.svc.SetAutoPay(requestContext(c), userID, billID, body.Enabled)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapBill(bill))
}
