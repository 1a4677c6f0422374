package features

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitfield/ledgerline/pkg/logger"
)

// RepositoryGuard enforces repository-layer requirements at the data-access
// boundary. Method matching is exact, one layer stricter than the service
// guard's globs. A nil evaluator allows every call; it is the explicit
// escape hatch for tests and offline tooling.
type RepositoryGuard struct {
	provider Provider
	flags    Evaluator
	known    *TypeSet
	target   string

	cache *matchCache
	log   *zap.Logger
}

// RepositoryGuardOption customises a RepositoryGuard.
type RepositoryGuardOption func(*repositoryGuardConfig)

type repositoryGuardConfig struct {
	known  *TypeSet
	target string
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// WithTargetName records the wrapped repository's declared name. Known type
// ids appearing in it participate in account-type resolution, mirroring
// per-type repositories such as "bnpl_account_repository".
func WithTargetName(name string) RepositoryGuardOption {
	return func(cfg *repositoryGuardConfig) {
		cfg.target = name
	}
}

// WithKnownTypes supplies the registered account type ids used during
// account-type resolution.
func WithKnownTypes(ids []string) RepositoryGuardOption {
	return func(cfg *repositoryGuardConfig) {
		cfg.known = NewTypeSet(ids...)
	}
}

// WithRepositoryGuardTTL overrides the match-cache TTL.
func WithRepositoryGuardTTL(ttl time.Duration) RepositoryGuardOption {
	return func(cfg *repositoryGuardConfig) {
		cfg.ttl = ttl
	}
}

// WithRepositoryGuardClock overrides time measurement for tests.
func WithRepositoryGuardClock(now func() time.Time) RepositoryGuardOption {
	return func(cfg *repositoryGuardConfig) {
		cfg.now = now
	}
}

// WithRepositoryGuardLogger overrides the guard logger.
func WithRepositoryGuardLogger(log *zap.Logger) RepositoryGuardOption {
	return func(cfg *repositoryGuardConfig) {
		cfg.log = log
	}
}

// NewRepositoryGuard builds a guard over the given provider. The evaluator
// may be nil, in which case Authorize always allows.
func NewRepositoryGuard(provider Provider, flags Evaluator, opts ...RepositoryGuardOption) (*RepositoryGuard, error) {
	if provider == nil {
		return nil, errors.New("features: requirement provider is required")
	}

	cfg := repositoryGuardConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.WithModule("features.repository_guard")
	}

	return &RepositoryGuard{
		provider: provider,
		flags:    flags,
		known:    cfg.known,
		target:   cfg.target,
		cache:    newMatchCache(cfg.ttl, cfg.now),
		log:      cfg.log,
	}, nil
}

// Authorize checks the call against repository-layer requirements. Flag
// lookup failures allow the call: a dark flag store must not take the data
// path down with it. Requirement-load failures still surface as
// ConfigurationError.
func (g *RepositoryGuard) Authorize(ctx context.Context, call Call) error {
	if g.flags == nil {
		return nil
	}

	accountType := g.resolveType(call)

	rules, err := g.applicableRules(ctx, call.Method, accountType)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		enabled, err := g.flags.IsEnabled(ctx, rule.flag)
		if err != nil {
			g.log.Warn("flag evaluation failed, allowing call",
				zap.String("flag", rule.flag),
				zap.String("method", call.Method),
				zap.Error(err))
			continue
		}
		if !enabled {
			return g.disabled(rule, call, accountType)
		}

		if accountType != "" {
			whitelist, err := g.flags.AccountTypeWhitelist(ctx, rule.flag)
			if err != nil {
				g.log.Warn("whitelist evaluation failed, allowing call",
					zap.String("flag", rule.flag),
					zap.String("method", call.Method),
					zap.Error(err))
				continue
			}
			if len(whitelist) > 0 && !containsFold(whitelist, accountType) {
				return g.disabled(rule, call, accountType)
			}
		}
	}

	return nil
}

// resolveType runs the shared strategies, then the two data-access specific
// ones: known type ids inside the method name, and inside the wrapped
// repository's declared name.
func (g *RepositoryGuard) resolveType(call Call) string {
	if t := resolveAccountType(call, g.known); t != "" {
		return t
	}
	if t := g.known.MatchSubstring(call.Method); t != "" {
		return t
	}
	return g.known.MatchSubstring(g.target)
}

func (g *RepositoryGuard) disabled(rule matchedRule, call Call, accountType string) error {
	entityType := ""
	if accountType != "" {
		entityType = EntityTypeAccount
	}
	return &DisabledError{
		Feature:      rule.flag,
		EntityType:   entityType,
		EntityID:     resolveEntityID(call),
		Operation:    call.Method,
		Pattern:      rule.pattern,
		ResolvedType: accountType,
		AccountTypes: rule.types,
	}
}

func (g *RepositoryGuard) applicableRules(ctx context.Context, method, accountType string) ([]matchedRule, error) {
	key := matchKey(method, accountType)
	if rules, ok := g.cache.get(key); ok {
		return rules, nil
	}

	set, err := g.provider.AllRequirements(ctx)
	if err != nil {
		return nil, err
	}

	var rules []matchedRule
	for _, flag := range set.FlagNames() {
		for pattern, types := range set[flag].Layer(LayerRepository) {
			if pattern != method || !types.Matches(accountType) {
				continue
			}
			rules = append(rules, matchedRule{flag: flag, pattern: pattern, types: types.clone()})
		}
	}
	sortRules(rules)

	g.cache.put(key, rules)
	return rules, nil
}

// InvalidateCache drops the guard's match cache.
func (g *RepositoryGuard) InvalidateCache() {
	g.cache.bust()
}
