package features

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitfield/ledgerline/pkg/logger"
)

// FallbackPolicy selects the behaviour of a provider when the requirement
// store fails. The choice is deliberate configuration, not an accident of
// error handling.
type FallbackPolicy int

const (
	// FallbackDefaults serves the built-in defaults when the store fails.
	FallbackDefaults FallbackPolicy = iota
	// FallbackError surfaces a ConfigurationError instead of defaults.
	FallbackError
)

// DefaultRequirementTTL bounds how long cached requirement payloads are
// served before the store is consulted again.
const DefaultRequirementTTL = 60 * time.Second

// Provider serves layered feature requirements to the gates. Callers are
// polymorphic over this capability, never over a concrete implementation.
type Provider interface {
	APIRequirements(ctx context.Context, flag string) (LayerRequirements, error)
	ServiceRequirements(ctx context.Context, flag string) (LayerRequirements, error)
	RepositoryRequirements(ctx context.Context, flag string) (LayerRequirements, error)
	AllRequirements(ctx context.Context) (RequirementSet, error)
	Invalidate(flags ...string)
}

type cachedRequirements struct {
	fetchedAt time.Time
	req       Requirements
}

type cachedSet struct {
	fetchedAt time.Time
	set       RequirementSet
}

// StoreProvider loads requirements from a Store, caching per-flag payloads
// and an all-flags snapshot under separate TTLs.
type StoreProvider struct {
	store    Store
	defaults RequirementSet
	policy   FallbackPolicy
	ttl      time.Duration
	allTTL   time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu    sync.RWMutex
	flags map[string]cachedRequirements
	all   *cachedSet
}

// ProviderOption customises a StoreProvider.
type ProviderOption func(*StoreProvider)

// WithDefaults registers the built-in requirement defaults served when the
// store has no payload for a flag, or on store failure under
// FallbackDefaults.
func WithDefaults(defaults RequirementSet) ProviderOption {
	return func(p *StoreProvider) {
		p.defaults = defaults.Clone()
	}
}

// WithFallbackPolicy selects the store-failure behaviour.
func WithFallbackPolicy(policy FallbackPolicy) ProviderOption {
	return func(p *StoreProvider) {
		p.policy = policy
	}
}

// WithTTL overrides the per-flag cache TTL.
func WithTTL(ttl time.Duration) ProviderOption {
	return func(p *StoreProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithAllTTL overrides the all-flags snapshot TTL.
func WithAllTTL(ttl time.Duration) ProviderOption {
	return func(p *StoreProvider) {
		if ttl > 0 {
			p.allTTL = ttl
		}
	}
}

// WithClock overrides time measurement, used by tests to step the TTL.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *StoreProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProviderLogger overrides the provider logger.
func WithProviderLogger(log *zap.Logger) ProviderOption {
	return func(p *StoreProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewStoreProvider builds a Provider backed by the given store.
func NewStoreProvider(store Store, opts ...ProviderOption) (*StoreProvider, error) {
	if store == nil {
		return nil, errors.New("features: requirement store is required")
	}

	provider := &StoreProvider{
		store:  store,
		policy: FallbackDefaults,
		ttl:    DefaultRequirementTTL,
		allTTL: DefaultRequirementTTL,
		now:    time.Now,
		flags:  make(map[string]cachedRequirements),
	}
	for _, opt := range opts {
		opt(provider)
	}
	if provider.log == nil {
		provider.log = logger.WithModule("features.provider")
	}
	return provider, nil
}

// APIRequirements returns the api-layer entries for one flag.
func (p *StoreProvider) APIRequirements(ctx context.Context, flag string) (LayerRequirements, error) {
	req, err := p.requirements(ctx, flag)
	if err != nil {
		return nil, err
	}
	return req.API.Clone(), nil
}

// ServiceRequirements returns the service-layer entries for one flag.
func (p *StoreProvider) ServiceRequirements(ctx context.Context, flag string) (LayerRequirements, error) {
	req, err := p.requirements(ctx, flag)
	if err != nil {
		return nil, err
	}
	return req.Service.Clone(), nil
}

// RepositoryRequirements returns the repository-layer entries for one flag.
func (p *StoreProvider) RepositoryRequirements(ctx context.Context, flag string) (LayerRequirements, error) {
	req, err := p.requirements(ctx, flag)
	if err != nil {
		return nil, err
	}
	return req.Repository.Clone(), nil
}

func (p *StoreProvider) requirements(ctx context.Context, flag string) (Requirements, error) {
	now := p.now()

	p.mu.RLock()
	cached, ok := p.flags[flag]
	p.mu.RUnlock()
	if ok && now.Sub(cached.fetchedAt) < p.ttl {
		return cached.req, nil
	}

	req, err := p.store.Get(ctx, flag)
	switch {
	case err == nil:
	case errors.Is(err, ErrRequirementsNotFound):
		req = p.defaultFor(flag)
	default:
		if p.policy == FallbackError {
			return Requirements{}, &ConfigurationError{Flag: flag, Err: err}
		}
		p.log.Warn("requirement store failed, serving defaults",
			zap.String("flag", flag),
			zap.Error(err))
		// Fallback payloads are not cached so the store is retried on the
		// next read.
		return p.defaultFor(flag), nil
	}

	p.mu.Lock()
	p.flags[flag] = cachedRequirements{fetchedAt: now, req: req}
	p.mu.Unlock()

	return req, nil
}

func (p *StoreProvider) defaultFor(flag string) Requirements {
	if req, ok := p.defaults[flag]; ok {
		return req.Clone()
	}
	return Requirements{}
}

// AllRequirements returns the merged snapshot of every flag's requirements.
// Stored payloads overlay the built-in defaults, so flags without a stored
// payload still enforce their compiled-in entries while a stored empty
// payload clears the flag's rules.
func (p *StoreProvider) AllRequirements(ctx context.Context) (RequirementSet, error) {
	now := p.now()

	p.mu.RLock()
	snapshot := p.all
	p.mu.RUnlock()
	if snapshot != nil && now.Sub(snapshot.fetchedAt) < p.allTTL {
		return snapshot.set.Clone(), nil
	}

	stored, err := p.store.GetAll(ctx)
	if err != nil {
		if p.policy == FallbackError {
			return nil, &ConfigurationError{Err: err}
		}
		p.log.Warn("requirement store failed, serving defaults", zap.Error(err))
		return p.defaults.Clone(), nil
	}

	merged := p.mergeWithDefaults(stored)

	p.mu.Lock()
	p.all = &cachedSet{fetchedAt: now, set: merged}
	p.mu.Unlock()

	return merged.Clone(), nil
}

// RefreshAll bypasses the snapshot cache and reloads from the store. Unlike
// AllRequirements it always propagates store failures, regardless of the
// fallback policy; it exists for callers that explicitly chose not to
// tolerate stale or default data.
func (p *StoreProvider) RefreshAll(ctx context.Context) (RequirementSet, error) {
	stored, err := p.store.GetAll(ctx)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	merged := p.mergeWithDefaults(stored)

	p.mu.Lock()
	p.all = &cachedSet{fetchedAt: p.now(), set: merged}
	p.mu.Unlock()

	return merged.Clone(), nil
}

func (p *StoreProvider) mergeWithDefaults(stored RequirementSet) RequirementSet {
	merged := p.defaults.Clone()
	if merged == nil {
		merged = make(RequirementSet, len(stored))
	}
	// A stored payload overrides the compiled-in entries even when empty:
	// clearing a flag's requirements must disarm its defaults here exactly
	// as it does on the per-flag path.
	for flag, req := range stored {
		merged[flag] = req.Clone()
	}
	return merged
}

// Invalidate drops cached payloads. With no arguments the entire cache is
// cleared; otherwise only the named flags, plus the all-flags snapshot they
// participate in.
func (p *StoreProvider) Invalidate(flags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(flags) == 0 {
		p.flags = make(map[string]cachedRequirements)
		p.all = nil
		return
	}

	for _, flag := range flags {
		delete(p.flags, flag)
	}
	p.all = nil
}

// StaticProvider serves a fixed requirement set. It backs tests and offline
// tooling where no store exists.
type StaticProvider struct {
	set RequirementSet
}

// NewStaticProvider builds a provider over a fixed set.
func NewStaticProvider(set RequirementSet) *StaticProvider {
	return &StaticProvider{set: set.Clone()}
}

// APIRequirements returns the api-layer entries for one flag.
func (p *StaticProvider) APIRequirements(_ context.Context, flag string) (LayerRequirements, error) {
	return p.set[flag].API.Clone(), nil
}

// ServiceRequirements returns the service-layer entries for one flag.
func (p *StaticProvider) ServiceRequirements(_ context.Context, flag string) (LayerRequirements, error) {
	return p.set[flag].Service.Clone(), nil
}

// RepositoryRequirements returns the repository-layer entries for one flag.
func (p *StaticProvider) RepositoryRequirements(_ context.Context, flag string) (LayerRequirements, error) {
	return p.set[flag].Repository.Clone(), nil
}

// AllRequirements returns the full fixed set.
func (p *StaticProvider) AllRequirements(_ context.Context) (RequirementSet, error) {
	return p.set.Clone(), nil
}

// Invalidate is a no-op; static sets have nothing to refresh.
func (p *StaticProvider) Invalidate(...string) {}
