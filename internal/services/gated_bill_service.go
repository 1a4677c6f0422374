package services

import (
	"context"
	"errors"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
)

// GatedBillService enforces service-layer feature requirements in front of a
// BillService. The autopay toggle is the usual target: the default
// requirements bind SetAutoPay to the autopay flag for every account type.
type GatedBillService struct {
	svc   *BillService
	guard *features.ServiceGuard
}

// NewGatedBillService wraps svc with the given guard.
func NewGatedBillService(svc *BillService, guard *features.ServiceGuard) (*GatedBillService, error) {
	if svc == nil {
		return nil, errors.New("gated bill service: bill service is required")
	}
	if guard == nil {
		return nil, errors.New("gated bill service: service guard is required")
	}
	return &GatedBillService{svc: svc, guard: guard}, nil
}

// Create authorizes and registers a new bill.
func (s *GatedBillService) Create(ctx context.Context, input CreateBillInput) (*models.Bill, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Create"}); err != nil {
		return nil, err
	}
	return s.svc.Create(ctx, input)
}

// Update authorizes and applies a partial bill update.
func (s *GatedBillService) Update(ctx context.Context, userID, id string, input UpdateBillInput) (*models.Bill, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Update", EntityID: id}); err != nil {
		return nil, err
	}
	return s.svc.Update(ctx, userID, id, input)
}

// Get authorizes and loads one owned bill.
func (s *GatedBillService) Get(ctx context.Context, userID, id string) (*models.Bill, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Get", EntityID: id}); err != nil {
		return nil, err
	}
	return s.svc.Get(ctx, userID, id)
}

// List authorizes and returns the caller's bills.
func (s *GatedBillService) List(ctx context.Context, userID string, filters BillFilters) ([]models.Bill, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "List"}); err != nil {
		return nil, err
	}
	return s.svc.List(ctx, userID, filters)
}

// Delete authorizes and removes an owned bill.
func (s *GatedBillService) Delete(ctx context.Context, userID, id string) error {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Delete", EntityID: id}); err != nil {
		return err
	}
	return s.svc.Delete(ctx, userID, id)
}

// Pay authorizes and records a payment against an owned bill.
func (s *GatedBillService) Pay(ctx context.Context, userID, id string, input PayBillInput) (*models.Payment, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "Pay", EntityID: id}); err != nil {
		return nil, err
	}
	return s.svc.Pay(ctx, userID, id, input)
}

// SetAutoPay authorizes and toggles automatic payment for an owned bill.
func (s *GatedBillService) SetAutoPay(ctx context.Context, userID, id string, enabled bool) (*models.Bill, error) {
	if err := serviceGateCheck(ctx, s.guard, features.Call{Method: "SetAutoPay", EntityID: id}); err != nil {
		return nil, err
	}
	return s.svc.SetAutoPay(ctx, userID, id, enabled)
}

// InvalidateCache drops the guard's match cache.
func (s *GatedBillService) InvalidateCache() {
	s.guard.InvalidateCache()
}
