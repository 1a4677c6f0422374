package services

import (
	"context"
	"errors"

	"github.com/mwhitfield/ledgerline/internal/accounts"
	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
)

// GatedAccountService enforces service-layer feature requirements in front
// of an AccountService. Each call is authorized first and delegated only
// when no requirement blocks it; the wrapped service stays gate-free so
// internal callers (jobs, migrations) can bypass enforcement deliberately.
type GatedAccountService struct {
	svc   *AccountService
	guard *features.ServiceGuard
}

// NewGatedAccountService wraps svc with the given guard.
func NewGatedAccountService(svc *AccountService, guard *features.ServiceGuard) (*GatedAccountService, error) {
	if svc == nil {
		return nil, errors.New("gated account service: account service is required")
	}
	if guard == nil {
		return nil, errors.New("gated account service: service guard is required")
	}
	return &GatedAccountService{svc: svc, guard: guard}, nil
}

// Create authorizes and opens a new account.
func (s *GatedAccountService) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	call := features.Call{
		Method:      "Create",
		AccountType: input.AccountType,
		Payload:     input.Details,
	}
	if err := serviceGateCheck(ctx, s.guard, call); err != nil {
		return nil, err
	}
	return s.svc.Create(ctx, input)
}

// Update authorizes and applies a partial account update. When the input
// does not assert a type the repository layer still resolves and enforces
// the stored one.
func (s *GatedAccountService) Update(ctx context.Context, userID, id string, input UpdateAccountInput) (*models.Account, error) {
	call := features.Call{
		Method:      "Update",
		AccountType: input.AccountType,
		Payload:     input.Details,
		EntityID:    id,
	}
	if err := serviceGateCheck(ctx, s.guard, call); err != nil {
		return nil, err
	}
	return s.svc.Update(ctx, userID, id, input)
}

// Get authorizes and loads one owned account.
func (s *GatedAccountService) Get(ctx context.Context, userID, id string) (*models.Account, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Get", EntityID: id}); err != nil {
		return nil, err
	}
	return s.svc.Get(ctx, userID, id)
}

// List authorizes and returns the caller's accounts.
func (s *GatedAccountService) List(ctx context.Context, userID string) ([]models.Account, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "List"}); err != nil {
		return nil, err
	}
	return s.svc.List(ctx, userID)
}

// Delete authorizes and removes an owned account.
func (s *GatedAccountService) Delete(ctx context.Context, userID, id string) error {
	account, err := s.svc.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	call := features.Call{
		Method:      "Delete",
		AccountType: account.AccountType,
		EntityID:    id,
	}
	if err := serviceGateCheck(ctx, s.guard, call); err != nil {
		return err
	}
	return s.svc.Delete(ctx, userID, id)
}

// RevealNumber authorizes against the stored account's type, then returns
// the plaintext account number.
func (s *GatedAccountService) RevealNumber(ctx context.Context, userID, id string) (string, error) {
	account, err := s.svc.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}

	call := features.Call{
		Method:      "RevealNumber",
		AccountType: account.AccountType,
		EntityID:    id,
	}
	if err := serviceGateCheck(ctx, s.guard, call); err != nil {
		return "", err
	}
	return s.svc.RevealNumber(ctx, userID, id)
}

// Catalog lists registered account types. Discovery is never gated so
// clients can learn which types are currently enabled.
func (s *GatedAccountService) Catalog(ctx context.Context) ([]AccountTypeInfo, error) {
	return s.svc.Catalog(ctx)
}

// DecodeDetails exposes the typed view of an account's details payload.
func (s *GatedAccountService) DecodeDetails(account *models.Account) (accounts.Details, error) {
	return s.svc.DecodeDetails(account)
}

// InvalidateCache drops the guard's match cache.
func (s *GatedAccountService) InvalidateCache() {
	s.guard.InvalidateCache()
}
