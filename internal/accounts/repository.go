package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	errs "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/logger"
	"github.com/mwhitfield/ledgerline/pkg/validator"
)

// ErrUseTypedOperation is returned by the generic write methods. Accounts
// are only ever written through the typed operations so the discriminator
// can never be wrong or missing.
var ErrUseTypedOperation = errors.New("accounts: use the typed operation instead")

// discriminatorKey is the payload key carrying the account type.
const discriminatorKey = "account_type"

// TypeMismatchError reports an update addressed to an entity of a different
// type. Retyping an account is never silent.
type TypeMismatchError struct {
	ID   string
	Have string
	Want string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("accounts: account %s is type %q, not %q", e.ID, e.Have, e.Want)
}

// accountCore is the validated, type-independent slice of a write payload.
type accountCore struct {
	UserID   string          `json:"user_id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	Status   string          `json:"status" validate:"omitempty,oneof=active closed"`
	Balance  decimal.Decimal `json:"balance"`
}

var (
	createCoreKeys = map[string]struct{}{
		"user_id": {}, "name": {}, "currency": {}, "status": {}, "balance": {},
	}
	updateCoreKeys = map[string]struct{}{
		"name": {}, "currency": {}, "status": {}, "balance": {},
	}
)

// Repository persists accounts of every registered type against a single
// table, discriminated by account_type. Writes go through the typed
// operations, which stamp the discriminator, filter payload keys against the
// concrete details shape and re-query the persisted row.
type Repository struct {
	db       *gorm.DB
	registry *Registry
	exts     map[string]Extension
	schemas  schemaCache
	log      *zap.Logger
}

// RepositoryOption customises a Repository.
type RepositoryOption func(*Repository)

// WithExtensions injects per-type behaviour, keyed by type id. Types without
// an entry run the base behaviour.
func WithExtensions(exts map[string]Extension) RepositoryOption {
	return func(r *Repository) {
		r.exts = exts
	}
}

// WithRepositoryLogger overrides the repository logger.
func WithRepositoryLogger(log *zap.Logger) RepositoryOption {
	return func(r *Repository) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRepository builds the polymorphic account repository.
func NewRepository(db *gorm.DB, registry *Registry, opts ...RepositoryOption) (*Repository, error) {
	if db == nil {
		return nil, errors.New("accounts: database handle is required")
	}
	if registry == nil {
		return nil, errors.New("accounts: registry is required")
	}

	repo := &Repository{db: db, registry: registry}
	for _, opt := range opts {
		opt(repo)
	}
	if repo.log == nil {
		repo.log = logger.WithModule("accounts.repository")
	}
	return repo, nil
}

// TypedOption adjusts a single typed operation.
type TypedOption func(*typedConfig)

type typedConfig struct {
	registry *Registry
}

// WithRegistry overrides the repository's registry for one call.
func WithRegistry(registry *Registry) TypedOption {
	return func(cfg *typedConfig) {
		cfg.registry = registry
	}
}

// Create always fails; use CreateTyped.
func (r *Repository) Create(context.Context, *models.Account) error {
	return ErrUseTypedOperation
}

// Update always fails; use UpdateTyped.
func (r *Repository) Update(context.Context, *models.Account) error {
	return ErrUseTypedOperation
}

// CreateTyped persists a new account of the given type. The discriminator is
// stamped from typeID regardless of the payload, unknown keys are dropped,
// and the returned entity is re-read from the database so defaults and the
// concrete details shape are authoritative.
func (r *Repository) CreateTyped(ctx context.Context, typeID string, data map[string]any, opts ...TypedOption) (*models.Account, error) {
	registration, err := r.resolveRegistration(typeID, opts)
	if err != nil {
		return nil, err
	}

	payload := clonePayload(data)
	payload[discriminatorKey] = registration.TypeID

	prototype := registration.NewDetails()
	schema := r.schemas.schemaFor(prototype)

	core, details := r.partition(payload, schema, createCoreKeys)

	ext := r.exts[registration.TypeID]
	if ext != nil {
		if err := ext.PrepareWrite(ctx, details); err != nil {
			return nil, err
		}
	}

	raw, err := encodeDetails(prototype, details)
	if err != nil {
		return nil, err
	}

	input, err := decodeCore(core)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		UserID:      input.UserID,
		Name:        input.Name,
		AccountType: registration.TypeID,
		Currency:    input.Currency,
		Status:      input.Status,
		Balance:     input.Balance,
		Details:     raw,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return fmt.Errorf("accounts: create %s account: %w", registration.TypeID, err)
		}

		// Re-read so column defaults and hooks are reflected in the
		// returned entity.
		var fresh models.Account
		if err := tx.First(&fresh, "id = ?", account.ID).Error; err != nil {
			return fmt.Errorf("accounts: reload account %s: %w", account.ID, err)
		}
		*account = fresh

		if ext != nil {
			return ext.AfterCreate(ctx, tx, account)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// UpdateTyped applies a partial update to an account of the given type. The
// entity's existing discriminator must equal typeID; required details fields
// are never overwritten with empty values, while the rest of the payload
// still applies.
func (r *Repository) UpdateTyped(ctx context.Context, id, typeID string, data map[string]any, opts ...TypedOption) (*models.Account, error) {
	registration, err := r.resolveRegistration(typeID, opts)
	if err != nil {
		return nil, err
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(existing.AccountType, registration.TypeID) {
		return nil, &TypeMismatchError{ID: id, Have: existing.AccountType, Want: registration.TypeID}
	}

	prototype := registration.NewDetails()
	schema := r.schemas.schemaFor(prototype)

	core, detailUpdates := r.partition(clonePayload(data), schema, updateCoreKeys)

	ext := r.exts[registration.TypeID]
	if ext != nil {
		if err := ext.PrepareWrite(ctx, detailUpdates); err != nil {
			return nil, err
		}
	}

	merged := make(map[string]any)
	if len(existing.Details) > 0 {
		if err := json.Unmarshal(existing.Details, &merged); err != nil {
			return nil, fmt.Errorf("accounts: decode stored details for %s: %w", id, err)
		}
	}
	for key, value := range detailUpdates {
		if schema.requires(key) && isEmptyValue(value) {
			continue
		}
		merged[key] = value
	}

	raw, err := encodeDetails(prototype, merged)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"details": raw}
	if err := applyCoreUpdates(updates, core); err != nil {
		return nil, err
	}

	if err := validateCoreUpdate(existing, updates); err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: update %s account %s: %w", registration.TypeID, id, err)
	}

	return r.Get(ctx, id)
}

// Get loads one account by id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: load account %s: %w", id, err)
	}
	return &account, nil
}

// ListByUser returns a user's accounts ordered by name.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name asc").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: list accounts for user %s: %w", userID, err)
	}
	return accounts, nil
}

// Delete removes an account, detaching dependent bills, incomes and
// payments via the model hook.
func (r *Repository) Delete(ctx context.Context, id string) error {
	account, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Delete(account).Error; err != nil {
		return fmt.Errorf("accounts: delete account %s: %w", id, err)
	}
	return nil
}

// DecodeDetails unmarshals an account's details through its registered
// concrete type.
func (r *Repository) DecodeDetails(account *models.Account) (Details, error) {
	registration, ok := r.registry.Get(account.AccountType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, account.AccountType)
	}

	details := registration.NewDetails()
	if len(account.Details) == 0 {
		return details, nil
	}
	if err := json.Unmarshal(account.Details, details); err != nil {
		return nil, fmt.Errorf("accounts: decode %s details: %w", account.AccountType, err)
	}
	return details, nil
}

// ErrNoAccountNumber reports a reveal against an account that carries no
// sealed number, either because its type has no sealing extension or because
// none was recorded.
var ErrNoAccountNumber = errors.New("accounts: no account number on record")

// RevealNumber decrypts the sealed account number of an institution-held
// account.
func (r *Repository) RevealNumber(_ context.Context, account *models.Account) (string, error) {
	if account == nil {
		return "", errors.New("accounts: account is required")
	}

	banking, ok := r.exts[account.AccountType].(*BankingExtension)
	if !ok {
		return "", ErrNoAccountNumber
	}

	var payload struct {
		AccountNumber string `json:"account_number"`
	}
	if len(account.Details) > 0 {
		if err := json.Unmarshal(account.Details, &payload); err != nil {
			return "", fmt.Errorf("accounts: decode %s details: %w", account.AccountType, err)
		}
	}
	if payload.AccountNumber == "" {
		return "", ErrNoAccountNumber
	}

	return banking.Reveal(payload.AccountNumber)
}

func (r *Repository) resolveRegistration(typeID string, opts []TypedOption) (Registration, error) {
	cfg := typedConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := cfg.registry
	if registry == nil {
		registry = r.registry
	}
	if registry == nil {
		return Registration{}, errors.New("accounts: registry is required")
	}

	registration, ok := registry.Get(typeID)
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	return registration, nil
}

// partition splits a payload into core account fields and details fields,
// dropping keys the concrete type does not accept.
func (r *Repository) partition(payload map[string]any, schema typeSchema, coreKeys map[string]struct{}) (map[string]any, map[string]any) {
	core := make(map[string]any)
	details := make(map[string]any)
	var dropped []string

	for key, value := range payload {
		if key == discriminatorKey {
			continue
		}
		if _, ok := coreKeys[key]; ok {
			core[key] = value
			continue
		}
		if schema.accepts(key) {
			details[key] = value
			continue
		}
		dropped = append(dropped, key)
	}

	if len(dropped) > 0 {
		r.log.Debug("dropping unknown payload keys", zap.Strings("keys", dropped))
	}
	return core, details
}

// encodeDetails round-trips a details payload through the concrete struct,
// validating it and producing the canonical stored form.
func encodeDetails(prototype Details, payload map[string]any) (datatypes.JSON, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("accounts: encode details payload: %w", err)
	}
	if err := json.Unmarshal(buf, prototype); err != nil {
		return nil, fmt.Errorf("accounts: decode %s details: %w", prototype.EntityType(), err)
	}
	if err := validator.ValidateStruct(prototype); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(prototype)
	if err != nil {
		return nil, fmt.Errorf("accounts: encode %s details: %w", prototype.EntityType(), err)
	}
	return datatypes.JSON(raw), nil
}

func decodeCore(core map[string]any) (accountCore, error) {
	if currency, ok := core["currency"].(string); ok {
		core["currency"] = strings.ToUpper(strings.TrimSpace(currency))
	}

	buf, err := json.Marshal(core)
	if err != nil {
		return accountCore{}, fmt.Errorf("accounts: encode account fields: %w", err)
	}

	var input accountCore
	if err := json.Unmarshal(buf, &input); err != nil {
		return accountCore{}, fmt.Errorf("accounts: decode account fields: %w", err)
	}
	if err := validator.ValidateStruct(input); err != nil {
		return accountCore{}, err
	}
	return input, nil
}

// applyCoreUpdates adds the core column changes to the update map. Name is
// required on the row, so empty values preserve the prior name.
func applyCoreUpdates(updates map[string]any, core map[string]any) error {
	if name, ok := core["name"].(string); ok && strings.TrimSpace(name) != "" {
		updates["name"] = name
	}
	if currency, ok := core["currency"].(string); ok && currency != "" {
		updates["currency"] = strings.ToUpper(strings.TrimSpace(currency))
	}
	if status, ok := core["status"].(string); ok && status != "" {
		updates["status"] = status
	}
	if balance, ok := core["balance"]; ok && balance != nil {
		value, err := toDecimal(balance)
		if err != nil {
			return fmt.Errorf("accounts: invalid balance: %w", err)
		}
		updates["balance"] = value
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case decimal.Decimal:
		return value, nil
	case float64:
		return decimal.NewFromFloat(value), nil
	case int:
		return decimal.NewFromInt(int64(value)), nil
	case string:
		return decimal.NewFromString(value)
	case json.Number:
		return decimal.NewFromString(value.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported numeric value %T", v)
	}
}

// validateCoreUpdate checks the post-update core fields against the account
// rules before touching the row.
func validateCoreUpdate(existing *models.Account, updates map[string]any) error {
	merged := accountCore{
		UserID:   existing.UserID,
		Name:     existing.Name,
		Currency: existing.Currency,
		Status:   existing.Status,
		Balance:  existing.Balance,
	}

	if name, ok := updates["name"].(string); ok {
		merged.Name = name
	}
	if currency, ok := updates["currency"].(string); ok {
		merged.Currency = currency
	}
	if status, ok := updates["status"].(string); ok {
		merged.Status = status
	}

	return validator.ValidateStruct(merged)
}

func clonePayload(data map[string]any) map[string]any {
	payload := make(map[string]any, len(data)+1)
	for key, value := range data {
		payload[key] = value
	}
	return payload
}

// isEmptyValue reports whether an update value would null out a column.
func isEmptyValue(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(value) == ""
	case float64:
		return value == 0
	case int:
		return value == 0
	case decimal.Decimal:
		return value.IsZero()
	default:
		return false
	}
}
