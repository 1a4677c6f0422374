package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
)

// ErrFlagNotFound signals that no flag with the requested name exists.
var ErrFlagNotFound = errors.New("features: flag not found")

// Evaluator answers whether a feature flag is enabled. A missing flag
// evaluates to disabled rather than erroring, so requirements referencing an
// unseeded flag stay conservative.
type Evaluator interface {
	IsEnabled(ctx context.Context, name string) (bool, error)
	AccountTypeWhitelist(ctx context.Context, name string) ([]string, error)
}

// AuditSink receives audit events emitted by flag administration.
type AuditSink interface {
	LogEvent(ctx context.Context, action, resource, result string, metadata map[string]any)
}

type flagState struct {
	enabled   bool
	variant   string
	whitelist []string
}

type flagCache struct {
	mu        sync.RWMutex
	fetchedAt time.Time
	states    map[string]flagState
}

// DefaultFlagTTL bounds how long flag values are served from the snapshot
// before the database is consulted again.
const DefaultFlagTTL = 30 * time.Second

// FlagService evaluates and administers feature flags. It satisfies
// Evaluator for the gates and exposes the administrative operations used by
// the API layer.
type FlagService struct {
	db    *gorm.DB
	ttl   time.Duration
	now   func() time.Time
	audit AuditSink

	cache flagCache
}

// FlagOption customises a FlagService.
type FlagOption func(*FlagService)

// WithFlagTTL overrides the snapshot TTL.
func WithFlagTTL(ttl time.Duration) FlagOption {
	return func(s *FlagService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithFlagClock overrides time measurement for tests.
func WithFlagClock(now func() time.Time) FlagOption {
	return func(s *FlagService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditSink attaches an audit sink for administrative changes.
func WithAuditSink(audit AuditSink) FlagOption {
	return func(s *FlagService) {
		s.audit = audit
	}
}

// NewFlagService builds a FlagService over the database.
func NewFlagService(db *gorm.DB, opts ...FlagOption) (*FlagService, error) {
	if db == nil {
		return nil, errors.New("features: database handle is required")
	}

	svc := &FlagService{
		db:  db,
		ttl: DefaultFlagTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IsEnabled reports whether the named flag is on. Unknown flags are off.
func (s *FlagService) IsEnabled(ctx context.Context, name string) (bool, error) {
	states, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}

	state, ok := states[name]
	if !ok {
		return false, nil
	}
	return state.enabled, nil
}

// AccountTypeWhitelist returns the optional per-flag account-type whitelist.
// A nil result means the flag is not restricted to particular types.
func (s *FlagService) AccountTypeWhitelist(ctx context.Context, name string) ([]string, error) {
	states, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	state, ok := states[name]
	if !ok || len(state.whitelist) == 0 {
		return nil, nil
	}
	return append([]string(nil), state.whitelist...), nil
}

// Variant returns the flag's variant payload, empty when unset or unknown.
func (s *FlagService) Variant(ctx context.Context, name string) (string, error) {
	states, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return states[name].variant, nil
}

func (s *FlagService) snapshot(ctx context.Context) (map[string]flagState, error) {
	now := s.now()

	s.cache.mu.RLock()
	states := s.cache.states
	fetchedAt := s.cache.fetchedAt
	s.cache.mu.RUnlock()

	if states != nil && now.Sub(fetchedAt) < s.ttl {
		return states, nil
	}

	var records []models.FeatureFlag
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("features: load flags: %w", err)
	}

	fresh := make(map[string]flagState, len(records))
	for _, record := range records {
		fresh[record.Name] = flagState{
			enabled:   record.Enabled,
			variant:   record.Variant,
			whitelist: decodeWhitelist(record.AccountTypes),
		}
	}

	s.cache.mu.Lock()
	s.cache.states = fresh
	s.cache.fetchedAt = now
	s.cache.mu.Unlock()

	return fresh, nil
}

func decodeWhitelist(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// InvalidateCache drops the flag snapshot so the next evaluation re-reads
// the database.
func (s *FlagService) InvalidateCache() {
	s.cache.mu.Lock()
	s.cache.states = nil
	s.cache.mu.Unlock()
}

// List returns every flag ordered by name.
func (s *FlagService) List(ctx context.Context) ([]models.FeatureFlag, error) {
	var flags []models.FeatureFlag
	if err := s.db.WithContext(ctx).Order("name asc").Find(&flags).Error; err != nil {
		return nil, fmt.Errorf("features: list flags: %w", err)
	}
	return flags, nil
}

// Get returns one flag by name.
func (s *FlagService) Get(ctx context.Context, name string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("features: load flag %s: %w", name, err)
	}
	return &flag, nil
}

// Create registers a new flag. Names are upper-snake by convention but not
// enforced.
func (s *FlagService) Create(ctx context.Context, flag *models.FeatureFlag) error {
	if flag == nil {
		return errors.New("features: flag is required")
	}
	flag.Name = strings.TrimSpace(flag.Name)
	if flag.Name == "" {
		return errors.New("features: flag name is required")
	}

	if err := s.db.WithContext(ctx).Create(flag).Error; err != nil {
		return fmt.Errorf("features: create flag %s: %w", flag.Name, err)
	}

	s.InvalidateCache()
	s.logAudit(ctx, "feature.create", flag.Name, map[string]any{"enabled": flag.Enabled})
	return nil
}

// SetEnabled switches the named flag on or off.
func (s *FlagService) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if err := s.updateColumn(ctx, name, "enabled", enabled); err != nil {
		return err
	}
	s.logAudit(ctx, "feature.toggle", name, map[string]any{"enabled": enabled})
	return nil
}

// SetVariant stores a variant payload on the named flag.
func (s *FlagService) SetVariant(ctx context.Context, name, variant string) error {
	if err := s.updateColumn(ctx, name, "variant", variant); err != nil {
		return err
	}
	s.logAudit(ctx, "feature.variant", name, map[string]any{"variant": variant})
	return nil
}

// SetWhitelist replaces the per-flag account-type whitelist. An empty list
// clears the restriction.
func (s *FlagService) SetWhitelist(ctx context.Context, name string, accountTypes []string) error {
	payload, err := json.Marshal(accountTypes)
	if err != nil {
		return fmt.Errorf("features: encode whitelist for %s: %w", name, err)
	}

	if err := s.updateColumn(ctx, name, "account_types", datatypes.JSON(payload)); err != nil {
		return err
	}
	s.logAudit(ctx, "feature.whitelist", name, map[string]any{"account_types": accountTypes})
	return nil
}

func (s *FlagService) updateColumn(ctx context.Context, name, column string, value any) error {
	result := s.db.WithContext(ctx).Model(&models.FeatureFlag{}).
		Where("name = ?", name).
		Update(column, value)
	if result.Error != nil {
		return fmt.Errorf("features: update flag %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFlagNotFound, name)
	}

	s.InvalidateCache()
	return nil
}

func (s *FlagService) logAudit(ctx context.Context, action, flag string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, action, "feature:"+flag, "success", metadata)
}
