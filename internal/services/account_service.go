package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mwhitfield/ledgerline/internal/accounts"
	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
)

// ErrAccountNotFound indicates the requested account does not exist or is
// not visible to the caller.
var ErrAccountNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account not found", http.StatusNotFound)

// ErrNoAccountNumber indicates the account carries no sealed number.
var ErrNoAccountNumber = apperrors.New("NO_ACCOUNT_NUMBER", "Account has no number on record", http.StatusNotFound)

// AccountStore is the data-access capability the account service consumes.
// Both the bare repository and its gated wrapper satisfy it.
type AccountStore interface {
	CreateTyped(ctx context.Context, typeID string, data map[string]any, opts ...accounts.TypedOption) (*models.Account, error)
	UpdateTyped(ctx context.Context, id, typeID string, data map[string]any, opts ...accounts.TypedOption) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
	Delete(ctx context.Context, id string) error
	DecodeDetails(account *models.Account) (accounts.Details, error)
	RevealNumber(ctx context.Context, account *models.Account) (string, error)
}

// CreateAccountInput describes the fields accepted when opening an account.
type CreateAccountInput struct {
	UserID      string
	AccountType string
	Name        string
	Currency    string
	Balance     decimal.Decimal
	Details     map[string]any
}

// UpdateAccountInput enumerates mutable account attributes. A non-empty
// AccountType asserts the entity's type and fails loudly on mismatch.
type UpdateAccountInput struct {
	AccountType string
	Name        *string
	Currency    *string
	Status      *string
	Balance     *decimal.Decimal
	Details     map[string]any
}

// AccountTypeInfo is one catalog entry: an account type and whether its
// gating flag currently allows it.
type AccountTypeInfo struct {
	TypeID      string `json:"type_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	FeatureFlag string `json:"feature_flag,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// AccountService manages the account lifecycle over the typed repository.
type AccountService struct {
	store    AccountStore
	registry *accounts.Registry
	flags    features.Evaluator
	audit    *AuditService
}

// NewAccountService constructs an AccountService. The evaluator and audit
// service are optional.
func NewAccountService(store AccountStore, registry *accounts.Registry, flags features.Evaluator, audit *AuditService) (*AccountService, error) {
	if store == nil {
		return nil, errors.New("account service: store is required")
	}
	if registry == nil {
		return nil, errors.New("account service: registry is required")
	}
	return &AccountService{
		store:    store,
		registry: registry,
		flags:    flags,
		audit:    audit,
	}, nil
}

// Create opens a new account of the requested type.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	name := strings.TrimSpace(input.Name)
	typeID := strings.ToLower(strings.TrimSpace(input.AccountType))

	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("account name is required")
	}
	if typeID == "" {
		return nil, apperrors.NewBadRequest("account type is required")
	}

	payload := make(map[string]any, len(input.Details)+4)
	for key, value := range input.Details {
		payload[key] = value
	}
	payload["user_id"] = userID
	payload["name"] = name
	if currency := strings.TrimSpace(input.Currency); currency != "" {
		payload["currency"] = currency
	}
	if !input.Balance.IsZero() {
		payload["balance"] = input.Balance
	}

	account, err := s.store.CreateTyped(ctx, typeID, payload)
	if err != nil {
		s.auditAccount(ctx, "account.create", "", typeID, "failure")
		return nil, err
	}

	metrics.AccountOperations.WithLabelValues(account.AccountType, "create").Inc()
	s.auditAccount(ctx, "account.create", account.ID, account.AccountType, "success")
	return account, nil
}

// Update applies a partial update to an owned account.
func (s *AccountService) Update(ctx context.Context, userID, id string, input UpdateAccountInput) (*models.Account, error) {
	ctx = ensureContext(ctx)

	existing, err := s.ownedAccount(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	typeID := strings.ToLower(strings.TrimSpace(input.AccountType))
	if typeID == "" {
		typeID = existing.AccountType
	}

	payload := make(map[string]any, len(input.Details)+4)
	for key, value := range input.Details {
		payload[key] = value
	}
	if input.Name != nil {
		payload["name"] = *input.Name
	}
	if input.Currency != nil {
		payload["currency"] = *input.Currency
	}
	if input.Status != nil {
		payload["status"] = *input.Status
	}
	if input.Balance != nil {
		payload["balance"] = *input.Balance
	}

	account, err := s.store.UpdateTyped(ctx, id, typeID, payload)
	if err != nil {
		s.auditAccount(ctx, "account.update", id, typeID, "failure")
		return nil, err
	}

	metrics.AccountOperations.WithLabelValues(account.AccountType, "update").Inc()
	s.auditAccount(ctx, "account.update", account.ID, account.AccountType, "success")
	return account, nil
}

// Get loads one owned account.
func (s *AccountService) Get(ctx context.Context, userID, id string) (*models.Account, error) {
	ctx = ensureContext(ctx)
	return s.ownedAccount(ctx, userID, id)
}

// List returns the caller's accounts.
func (s *AccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	return s.store.ListByUser(ctx, userID)
}

// Delete removes an owned account and detaches its dependents.
func (s *AccountService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	account, err := s.ownedAccount(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.auditAccount(ctx, "account.delete", id, account.AccountType, "failure")
		return err
	}

	metrics.AccountOperations.WithLabelValues(account.AccountType, "delete").Inc()
	s.auditAccount(ctx, "account.delete", id, account.AccountType, "success")
	return nil
}

// DecodeDetails exposes the typed view of an account's details payload.
func (s *AccountService) DecodeDetails(account *models.Account) (accounts.Details, error) {
	return s.store.DecodeDetails(account)
}

// RevealNumber returns the plaintext account number of an owned account.
// Every reveal is audited.
func (s *AccountService) RevealNumber(ctx context.Context, userID, id string) (string, error) {
	ctx = ensureContext(ctx)

	account, err := s.ownedAccount(ctx, userID, id)
	if err != nil {
		return "", err
	}

	number, err := s.store.RevealNumber(ctx, account)
	if errors.Is(err, accounts.ErrNoAccountNumber) {
		return "", ErrNoAccountNumber
	}
	if err != nil {
		s.auditAccount(ctx, "account.reveal_number", id, account.AccountType, "failure")
		return "", err
	}

	metrics.AccountOperations.WithLabelValues(account.AccountType, "reveal_number").Inc()
	s.auditAccount(ctx, "account.reveal_number", id, account.AccountType, "success")
	return number, nil
}

// Catalog lists the registered account types with their current flag state.
// Types without a gating flag are always enabled.
func (s *AccountService) Catalog(ctx context.Context) ([]AccountTypeInfo, error) {
	ctx = ensureContext(ctx)

	registrations := s.registry.All()
	catalog := make([]AccountTypeInfo, 0, len(registrations))
	for _, reg := range registrations {
		info := AccountTypeInfo{
			TypeID:      reg.TypeID,
			Name:        reg.Name,
			Description: reg.Description,
			Category:    reg.Category,
			FeatureFlag: reg.FeatureFlag,
			Enabled:     true,
		}

		if reg.FeatureFlag != "" && s.flags != nil {
			enabled, err := s.flags.IsEnabled(ctx, reg.FeatureFlag)
			if err != nil {
				return nil, fmt.Errorf("account service: evaluate flag %s: %w", reg.FeatureFlag, err)
			}
			info.Enabled = enabled
		}

		catalog = append(catalog, info)
	}
	return catalog, nil
}

func (s *AccountService) ownedAccount(ctx context.Context, userID, id string) (*models.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequest("account id is required")
	}

	account, err := s.store.Get(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountService) auditAccount(ctx context.Context, action, id, accountType, result string) {
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "account",
		EntityID: id,
		Result:   result,
		Metadata: map[string]any{"account_type": accountType},
	})
}
