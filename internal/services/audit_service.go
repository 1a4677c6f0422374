package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
)

// Audit actions are dot-namespaced: the segment before the dot names the
// domain that emitted the event ("feature.toggle", "bill.pay", "account.
// reveal_number"), the remainder the operation. Queries slice the trail by
// exact action or by that leading category.

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Resource  string
	EntityID  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// row normalises the entry into a persistable record. Action and result are
// mandatory; every other field is best effort.
func (e AuditEntry) row() (*models.AuditLog, error) {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return nil, errors.New("audit service: action is required")
	}
	result := strings.TrimSpace(e.Result)
	if result == "" {
		return nil, errors.New("audit service: result is required")
	}

	row := &models.AuditLog{
		Action:    action,
		Resource:  strings.TrimSpace(e.Resource),
		EntityID:  strings.TrimSpace(e.EntityID),
		Result:    result,
		Username:  strings.TrimSpace(e.Username),
		IPAddress: strings.TrimSpace(e.IPAddress),
		UserAgent: strings.TrimSpace(e.UserAgent),
	}

	if e.Metadata != nil {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		row.Metadata = string(encoded)
	}

	if e.UserID != nil {
		if id := strings.TrimSpace(*e.UserID); id != "" {
			row.UserID = &id
		}
	}

	return row, nil
}

// AuditFilters narrows audit queries. Zero-valued fields do not filter.
type AuditFilters struct {
	// UserID matches the acting user.
	UserID string
	// Action matches one exact action name.
	Action string
	// Category matches every action in one namespace, e.g. "feature" for
	// the whole flag-administration trail.
	Category string
	// Result matches the recorded outcome.
	Result string
	// Resource matches the resource kind, e.g. "feature_flag".
	Resource string
	// EntityID matches the affected entity, e.g. a flag name or account id.
	EntityID string
	// Since and Until bound the creation time, inclusive.
	Since *time.Time
	Until *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

const (
	auditDefaultPageSize = 50
	auditMaxPageSize     = 200
)

func (o AuditListOptions) normalise() (page, size int) {
	page = o.Page
	if page <= 0 {
		page = 1
	}
	size = o.PageSize
	if size <= 0 || size > auditMaxPageSize {
		size = auditDefaultPageSize
	}
	return page, size
}

// AuditService persists and queries the audit trail.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Log stores one audit event.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	row, err := entry.row()
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// List returns one page of the trail, newest first, together with the total
// count for the filter set.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)
	page, size := opts.normalise()

	query := s.filtered(ctx, opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return logs, total, nil
}

// Export returns every matching entry without pagination, in the order the
// events happened.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var logs []models.AuditLog
	if err := s.filtered(ctx, filters).
		Preload("User").
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: export logs: %w", err)
	}

	return logs, nil
}

// CleanupBefore removes every entry created before the cutoff and reports
// how many rows went. Retention policy lives with the caller; the maintenance
// cleaner derives the cutoff from its configured window and clock.
func (s *AuditService) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	if cutoff.IsZero() {
		return 0, errors.New("audit service: cutoff is required")
	}

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *AuditService) filtered(ctx context.Context, f AuditFilters) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		query = query.Where("action LIKE ?", category+".%")
	}
	if f.Result != "" {
		query = query.Where("result = ?", f.Result)
	}
	if f.Resource != "" {
		query = query.Where("resource = ?", f.Resource)
	}
	if f.EntityID != "" {
		query = query.Where("entity_id = ?", f.EntityID)
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}
	return query
}
