package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	"github.com/mwhitfield/ledgerline/internal/services"
	"github.com/mwhitfield/ledgerline/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultCacheSpec          = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultBillSpec           = "@hourly"
)

// Cleaner coordinates background maintenance: purging expired cache entries,
// pruning stale audit logs, paying due autopay bills and advancing lapsed
// recurring due dates.
type Cleaner struct {
	db        *gorm.DB
	bills     *services.BillService
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int
	autopay   bool

	cacheSchedule string
	auditSchedule string
	billSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithAutoPaySweep toggles the autopay settlement pass of the bill job.
func WithAutoPaySweep(enabled bool) Option {
	return func(cleaner *Cleaner) {
		cleaner.autopay = enabled
	}
}

// WithCacheSchedule overrides the cron schedule for cache entry cleanup.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron schedule for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithBillSchedule overrides the cron schedule for the bill sweep.
func WithBillSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.billSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding job being skipped.
func NewCleaner(db *gorm.DB, bills *services.BillService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		bills:         bills,
		audit:         audit,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		autopay:       true,
		cacheSchedule: defaultCacheSpec,
		auditSchedule: defaultAuditSpec,
		billSchedule:  defaultBillSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.db != nil || cleaner.audit != nil || cleaner.bills != nil

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			ctx := context.Background()
			if _, err := CleanupCacheEntries(ctx, c.db, c.now()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupBefore(ctx, c.retentionCutoff()); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.bills != nil {
		if _, err := c.cron.AddFunc(c.billSchedule, func() {
			ctx := context.Background()
			if err := c.sweepBills(ctx); err != nil {
				c.log.Warn("bill sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.db != nil {
		if _, err := CleanupCacheEntries(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupBefore(ctx, c.retentionCutoff()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.bills != nil {
		if err := c.sweepBills(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) retentionCutoff() time.Time {
	return c.now().AddDate(0, 0, -c.retention)
}

// sweepBills settles due autopay bills first so their due dates advance
// through payment, then advances whatever recurring bills remain lapsed.
func (c *Cleaner) sweepBills(ctx context.Context) error {
	now := c.now()
	var errs error

	if c.autopay {
		if _, err := c.bills.ProcessAutoPay(ctx, now); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if _, err := c.bills.AdvanceLapsed(ctx, now); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// CleanupCacheEntries removes cache rows whose expiry has passed.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup cache: %w", result.Error)
	}

	return result.RowsAffected, nil
}
