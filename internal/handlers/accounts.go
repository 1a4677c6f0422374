package handlers

import (
	"encoding/json"
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

// AccountHandler exposes account CRUD plus the account-type catalog. All
// mutating calls run through the gated service so disabled account types are
// rejected before they reach storage.
type AccountHandler struct {
	svc *services.GatedAccountService
}

func NewAccountHandler(svc *services.GatedAccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type accountDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AccountType string          `json:"account_type"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func mapAccount(account *models.Account) accountDTO {
	return accountDTO{
		ID:          account.ID,
		Name:        account.Name,
		AccountType: account.AccountType,
		Currency:    account.Currency,
		Status:      account.Status,
		Balance:     account.Balance,
		Details:     json.RawMessage(account.Details),
		CreatedAt:   account.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   account.UpdatedAt.Format(time.RFC3339),
	}
}

type createAccountRequest struct {
	Name        string           `json:"name" validate:"required,max=120"`
	AccountType string           `json:"account_type" validate:"required"`
	Currency    string           `json:"currency" validate:"omitempty,len=3"`
	Balance     *decimal.Decimal `json:"balance"`
	Details     map[string]any   `json:"details"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var body createAccountRequest
	if !bindAndValidate(c, &body) {
		return
	}

	input := services.CreateAccountInput{
		UserID:      userID,
		AccountType: body.AccountType,
		Name:        body.Name,
		Currency:    body.Currency,
		Details:     body.Details,
	}
	if body.Balance != nil {
		input.Balance = *body.Balance
	}

	account, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapAccount(account))
}

// List handles GET /api/accounts
func (h *AccountHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	accounts, err := h.svc.List(requestContext(c), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	dtos := make([]accountDTO, 0, len(accounts))
	for i := range accounts {
		dtos = append(dtos, mapAccount(&accounts[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		response.Error(c, apperrors.NewBadRequest("account id is required"))
		return
	}

	account, err := h.svc.Get(requestContext(c), userID, accountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapAccount(account))
}

type updateAccountRequest struct {
	AccountType string           `json:"account_type"`
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	Currency    *string          `json:"currency" validate:"omitempty,len=3"`
	Status      *string          `json:"status" validate:"omitempty,oneof=active closed"`
	Balance     *decimal.Decimal `json:"balance"`
	Details     map[string]any   `json:"details"`
}

// Update handles PATCH /api/accounts/:id
func (h *AccountHandler) Update(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		response.Error(c, apperrors.NewBadRequest("account id is required"))
		return
	}

	var body updateAccountRequest
	if !bindAndValidate(c, &body) {
		return
	}

	account, err := h.svc.Update(requestContext(c), userID, accountID, services.UpdateAccountInput{
		AccountType: body.AccountType,
		Name:        body.Name,
		Currency:    body.Currency,
		Status:      body.Status,
		Balance:     body.Balance,
		Details:     body.Details,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapAccount(account))
}

// Delete handles DELETE /api/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		response.Error(c, apperrors.NewBadRequest("account id is required"))
		return
	}

	if err := h.svc.Delete(requestContext(c), userID, accountID); err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// RevealNumber handles GET /api/accounts/:id/number. The sealed account
// number is decrypted on demand and never included in account payloads.
func (h *AccountHandler) RevealNumber(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		response.Error(c, apperrors.NewBadRequest("account id is required"))
		return
	}

	number, err := h.svc.RevealNumber(requestContext(c), userID, accountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"account_number": number})
}

// Catalog handles GET /api/account-types. Discovery stays open so clients
// can learn which types are currently enabled.
func (h *AccountHandler) Catalog(c *gin.Context) {
	catalog, err := h.svc.Catalog(requestContext(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, catalog)
}
