package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
)

// ErrRequirementsNotFound signals that a flag has no stored requirement
// payload.
var ErrRequirementsNotFound = errors.New("features: requirements not found")

// Store persists per-flag requirement payloads. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, flag string) (Requirements, error)
	GetAll(ctx context.Context) (RequirementSet, error)
	UpdateRequirements(ctx context.Context, flag string, req Requirements) error
}

// GormStore reads and writes requirement payloads on the feature_flags table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore builds a Store backed by the relational database.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("features: database handle is required")
	}
	return &GormStore{db: db}, nil
}

// Get loads one flag's requirements. A row whose payload column was never
// written counts as having no stored requirements, so callers fall back to
// their defaults; a stored empty object is an explicit clear and is returned
// as-is.
func (s *GormStore) Get(ctx context.Context, flag string) (Requirements, error) {
	var record models.FeatureFlag
	err := s.db.WithContext(ctx).Where("name = ?", flag).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Requirements{}, fmt.Errorf("%w: %s", ErrRequirementsNotFound, flag)
	}
	if err != nil {
		return Requirements{}, fmt.Errorf("features: load requirements for %s: %w", flag, err)
	}
	if len(record.Requirements) == 0 {
		return Requirements{}, fmt.Errorf("%w: %s", ErrRequirementsNotFound, flag)
	}

	req, err := ParseRequirements(record.Requirements)
	if err != nil {
		return Requirements{}, err
	}
	return req, nil
}

// GetAll loads requirements for every flag that carries a payload.
func (s *GormStore) GetAll(ctx context.Context) (RequirementSet, error) {
	var records []models.FeatureFlag
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("features: load requirements: %w", err)
	}

	set := make(RequirementSet, len(records))
	for _, record := range records {
		if len(record.Requirements) == 0 {
			continue
		}
		req, err := ParseRequirements(record.Requirements)
		if err != nil {
			return nil, fmt.Errorf("features: flag %s: %w", record.Name, err)
		}
		set[record.Name] = req
	}
	return set, nil
}

// UpdateRequirements replaces one flag's requirement payload.
func (s *GormStore) UpdateRequirements(ctx context.Context, flag string, req Requirements) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("features: encode requirements for %s: %w", flag, err)
	}

	result := s.db.WithContext(ctx).Model(&models.FeatureFlag{}).
		Where("name = ?", flag).
		Update("requirements", datatypes.JSON(payload))
	if result.Error != nil {
		return fmt.Errorf("features: update requirements for %s: %w", flag, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRequirementsNotFound, flag)
	}
	return nil
}

// MemoryStore is an in-memory Store used by tests and offline tooling.
type MemoryStore struct {
	mu   sync.RWMutex
	data RequirementSet
}

// NewMemoryStore builds a MemoryStore seeded with the provided set.
func NewMemoryStore(seed RequirementSet) *MemoryStore {
	return &MemoryStore{data: seed.Clone()}
}

// Get loads one flag's requirements.
func (s *MemoryStore) Get(_ context.Context, flag string) (Requirements, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.data[flag]
	if !ok {
		return Requirements{}, fmt.Errorf("%w: %s", ErrRequirementsNotFound, flag)
	}
	return req.Clone(), nil
}

// GetAll returns a copy of every stored requirement.
func (s *MemoryStore) GetAll(_ context.Context) (RequirementSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return RequirementSet{}, nil
	}
	return s.data.Clone(), nil
}

// UpdateRequirements replaces one flag's requirements.
func (s *MemoryStore) UpdateRequirements(_ context.Context, flag string, req Requirements) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(RequirementSet)
	}
	s.data[flag] = req.Clone()
	return nil
}
