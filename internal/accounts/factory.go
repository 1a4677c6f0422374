package accounts

import (
	"context"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
	"github.com/mwhitfield/ledgerline/pkg/crypto"
)

// repositoryTargetName is the declared name the repository gate resolves
// account types from when nothing else in a call names one.
const repositoryTargetName = "account_repository"

// accountKeySalt pins the Argon2id derivation of the account number sealing
// key. Changing it strands every value sealed so far.
var accountKeySalt = []byte("ledgerline/accounts/number-seal/v1")

// DefaultExtensions returns the per-type behaviour map for the built-in
// account types. Banking types share one extension so account numbers are
// sealed with a single key, derived from the configured secret with
// Argon2id.
func DefaultExtensions(encryptionKey []byte) (map[string]Extension, error) {
	exts := map[string]Extension{
		TypeBNPL:   BNPLExtension{},
		TypeCrypto: CryptoExtension{},
	}

	if len(encryptionKey) > 0 {
		key, err := crypto.DeriveKeyArgon2id(encryptionKey, accountKeySalt, crypto.DefaultArgon2Params())
		if err != nil {
			return nil, err
		}
		banking, err := NewBankingExtension(key)
		if err != nil {
			return nil, err
		}
		exts[TypeChecking] = banking
		exts[TypeSavings] = banking
		exts[TypeCredit] = banking
	}

	return exts, nil
}

// GatedRepository layers feature enforcement over the account repository.
// Every data operation is checked against repository-layer requirements
// before it delegates; a nil evaluator turns the gate into a passthrough.
type GatedRepository struct {
	repo  *Repository
	guard *features.RepositoryGuard
}

// GatedRepositoryOption customises how NewGatedRepository assembles the
// repository and its guard.
type GatedRepositoryOption func(*gatedRepositoryConfig)

type gatedRepositoryConfig struct {
	repoOpts  []RepositoryOption
	guardOpts []features.RepositoryGuardOption
}

// WithRepository forwards options to the underlying repository.
func WithRepository(opts ...RepositoryOption) GatedRepositoryOption {
	return func(cfg *gatedRepositoryConfig) {
		cfg.repoOpts = append(cfg.repoOpts, opts...)
	}
}

// WithGuard forwards options to the repository guard.
func WithGuard(opts ...features.RepositoryGuardOption) GatedRepositoryOption {
	return func(cfg *gatedRepositoryConfig) {
		cfg.guardOpts = append(cfg.guardOpts, opts...)
	}
}

// NewGatedRepository builds the repository and its gate in one step. The
// registry supplies both the concrete detail shapes and the known type ids
// used for account-type resolution.
func NewGatedRepository(db *gorm.DB, registry *Registry, provider features.Provider, flags features.Evaluator, opts ...GatedRepositoryOption) (*GatedRepository, error) {
	var cfg gatedRepositoryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	repo, err := NewRepository(db, registry, cfg.repoOpts...)
	if err != nil {
		return nil, err
	}

	guardOpts := append([]features.RepositoryGuardOption{
		features.WithKnownTypes(registry.TypeIDs()),
		features.WithTargetName(repositoryTargetName),
	}, cfg.guardOpts...)

	guard, err := features.NewRepositoryGuard(provider, flags, guardOpts...)
	if err != nil {
		return nil, err
	}

	return &GatedRepository{repo: repo, guard: guard}, nil
}

// Create always fails; use CreateTyped.
func (g *GatedRepository) Create(ctx context.Context, account *models.Account) error {
	return g.repo.Create(ctx, account)
}

// Update always fails; use UpdateTyped.
func (g *GatedRepository) Update(ctx context.Context, account *models.Account) error {
	return g.repo.Update(ctx, account)
}

// CreateTyped checks repository requirements for the type, then delegates.
func (g *GatedRepository) CreateTyped(ctx context.Context, typeID string, data map[string]any, opts ...TypedOption) (*models.Account, error) {
	err := g.guard.Authorize(ctx, features.Call{
		Method:      "CreateTyped",
		AccountType: typeID,
		Payload:     data,
	})
	if err != nil {
		return nil, err
	}
	return g.repo.CreateTyped(ctx, typeID, data, opts...)
}

// UpdateTyped checks repository requirements for the type, then delegates.
func (g *GatedRepository) UpdateTyped(ctx context.Context, id, typeID string, data map[string]any, opts ...TypedOption) (*models.Account, error) {
	err := g.guard.Authorize(ctx, features.Call{
		Method:      "UpdateTyped",
		AccountType: typeID,
		Payload:     data,
		EntityID:    id,
	})
	if err != nil {
		return nil, err
	}
	return g.repo.UpdateTyped(ctx, id, typeID, data, opts...)
}

// Get checks repository requirements, then loads the account.
func (g *GatedRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	if err := g.guard.Authorize(ctx, features.Call{Method: "Get", EntityID: id}); err != nil {
		return nil, err
	}
	return g.repo.Get(ctx, id)
}

// ListByUser checks repository requirements, then lists the user's accounts.
func (g *GatedRepository) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	if err := g.guard.Authorize(ctx, features.Call{Method: "ListByUser"}); err != nil {
		return nil, err
	}
	return g.repo.ListByUser(ctx, userID)
}

// Delete checks repository requirements against the stored account's type,
// then deletes.
func (g *GatedRepository) Delete(ctx context.Context, id string) error {
	call := features.Call{Method: "Delete", EntityID: id}
	if account, err := g.repo.Get(ctx, id); err == nil {
		call.AccountType = account.AccountType
	}
	if err := g.guard.Authorize(ctx, call); err != nil {
		return err
	}
	return g.repo.Delete(ctx, id)
}

// DecodeDetails decodes an account's details through its registered type.
func (g *GatedRepository) DecodeDetails(account *models.Account) (Details, error) {
	return g.repo.DecodeDetails(account)
}

// RevealNumber checks repository requirements against the account's type,
// then decrypts the sealed number.
func (g *GatedRepository) RevealNumber(ctx context.Context, account *models.Account) (string, error) {
	call := features.Call{Method: "RevealNumber"}
	if account != nil {
		call.AccountType = account.AccountType
		call.EntityID = account.ID
	}
	if err := g.guard.Authorize(ctx, call); err != nil {
		return "", err
	}
	return g.repo.RevealNumber(ctx, account)
}

// InvalidateCache drops the gate's match cache.
func (g *GatedRepository) InvalidateCache() {
	g.guard.InvalidateCache()
}
