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

// IncomeHandler manages expected inflows and their receipts.
type IncomeHandler struct {
	svc *services.IncomeService
}

func NewIncomeHandler(svc *services.IncomeService) *IncomeHandler {
	return &IncomeHandler{svc: svc}
}

type incomeDTO struct {
	ID             string          `json:"id"`
	AccountID      *string         `json:"account_id,omitempty"`
	Source         string          `json:"source"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Recurrence     string          `json:"recurrence"`
	NextExpectedAt string          `json:"next_expected_at"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

func mapIncome(income *models.Income) incomeDTO {
	return incomeDTO{
		ID:             income.ID,
		AccountID:      income.AccountID,
		Source:         income.Source,
		Amount:         income.Amount,
		Currency:       income.Currency,
		Recurrence:     income.Recurrence,
		NextExpectedAt: income.NextExpectedAt.Format(time.RFC3339),
		Status:         income.Status,
		CreatedAt:      income.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      income.UpdatedAt.Format(time.RFC3339),
	}
}

type createIncomeRequest struct {
	Source         string          `json:"source" validate:"required,max=120"`
	AccountID      *string         `json:"account_id"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	Recurrence     string          `json:"recurrence" validate:"omitempty,oneof=none weekly biweekly monthly yearly"`
	NextExpectedAt time.Time       `json:"next_expected_at" validate:"required"`
}

// Create handles POST /api/incomes
func (h *IncomeHandler) Create(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body createIncomeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	income, err := h.svc.Create(requestContext(c), services.CreateIncomeInput{
		UserID:         userID,
		AccountID:      body.AccountID,
		Source:         body.Source,
		Amount:         body.Amount,
		Currency:       body.Currency,
		Recurrence:     body.Recurrence,
		NextExpectedAt: body.NextExpectedAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapIncome(income))
}

// List handles GET /api/incomes
func (h *IncomeHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	incomes, err := h.svc.List(requestContext(c), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	dtos := make([]incomeDTO, 0, len(incomes))
	for i := range incomes {
		dtos = append(dtos, mapIncome(&incomes[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/incomes/:id
func (h *IncomeHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	incomeID := strings.TrimSpace(c.Param("id"))
	if incomeID == "" {
		response.Error(c, apperrors.NewBadRequest("income id is required"))
		return
	}

	income, err := h.svc.Get(requestContext(c), userID, incomeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapIncome(income))
}

type updateIncomeRequest struct {
	Source         *string          `json:"source" validate:"omitempty,max=120"`
	Amount         *decimal.Decimal `json:"amount"`
	Currency       *string          `json:"currency" validate:"omitempty,len=3"`
	Recurrence     *string          `json:"recurrence" validate:"omitempty,oneof=none weekly biweekly monthly yearly"`
	NextExpectedAt *time.Time       `json:"next_expected_at"`
	Status         *string          `json:"status" validate:"omitempty,oneof=active ended"`
	AccountID      *string          `json:"account_id"`
	ClearAccount   bool             `json:"clear_account"`
}

// Update handles PATCH /api/incomes/:id
func (h *IncomeHandler) Update(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	incomeID := strings.TrimSpace(c.Param("id"))
	if incomeID == "" {
		response.Error(c, apperrors.NewBadRequest("income id is required"))
		return
	}

	var body updateIncomeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	income, err := h.svc.Update(requestContext(c), userID, incomeID, services.UpdateIncomeInput{
		Source:         body.Source,
		Amount:         body.Amount,
		Currency:       body.Currency,
		Recurrence:     body.Recurrence,
		NextExpectedAt: body.NextExpectedAt,
		Status:         body.Status,
		AccountID:      body.AccountID,
		ClearAccount:   body.ClearAccount,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapIncome(income))
}

// Delete handles DELETE /api/incomes/:id
func (h *IncomeHandler) Delete(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	incomeID := strings.TrimSpace(c.Param("id"))
	if incomeID == "" {
		response.Error(c, apperrors.NewBadRequest("income id is required"))
		return
	}

	if err := h.svc.Delete(requestContext(c), userID, incomeID); err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type receiveIncomeRequest struct {
	Amount     *decimal.Decimal `json:"amount"`
	ReceivedAt *time.Time       `json:"received_at"`
}

// Receive handles POST /api/incomes/:id/receive
func (h *IncomeHandler) Receive(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	incomeID := strings.TrimSpace(c.Param("id"))
	if incomeID == "" {
		response.Error(c, apperrors.NewBadRequest("income id is required"))
		return
	}

	var body receiveIncomeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid receive payload"))
		return
	}

	income, err := h.svc.Receive(requestContext(c), userID, incomeID, services.ReceiveIncomeInput{
		Amount:     body.Amount,
		ReceivedAt: body.ReceivedAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapIncome(income))
}
