package features

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitfield/ledgerline/pkg/logger"
)

// ServiceGuard enforces service-layer requirements in front of a wrapped
// service. Wrapper types call Authorize before delegating each method; the
// guard itself holds no service state.
//
// Method patterns support glob matching (`*`, `?`, character classes) in
// addition to exact names.
type ServiceGuard struct {
	provider Provider
	flags    Evaluator
	known    *TypeSet
	service  string

	matcher *methodMatcher
	cache   *matchCache
	log     *zap.Logger
}

// ServiceGuardOption customises a ServiceGuard.
type ServiceGuardOption func(*serviceGuardConfig)

type serviceGuardConfig struct {
	known   *TypeSet
	service string
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// WithServiceName records the wrapped service's name for logs.
func WithServiceName(name string) ServiceGuardOption {
	return func(cfg *serviceGuardConfig) {
		cfg.service = name
	}
}

// WithServiceKnownTypes supplies the registered account type ids used during
// account-type resolution.
func WithServiceKnownTypes(ids []string) ServiceGuardOption {
	return func(cfg *serviceGuardConfig) {
		cfg.known = NewTypeSet(ids...)
	}
}

// WithServiceGuardTTL overrides the match-cache TTL.
func WithServiceGuardTTL(ttl time.Duration) ServiceGuardOption {
	return func(cfg *serviceGuardConfig) {
		cfg.ttl = ttl
	}
}

// WithServiceGuardClock overrides time measurement for tests.
func WithServiceGuardClock(now func() time.Time) ServiceGuardOption {
	return func(cfg *serviceGuardConfig) {
		cfg.now = now
	}
}

// WithServiceGuardLogger overrides the guard logger.
func WithServiceGuardLogger(log *zap.Logger) ServiceGuardOption {
	return func(cfg *serviceGuardConfig) {
		cfg.log = log
	}
}

// NewServiceGuard builds a guard over the given provider and evaluator.
func NewServiceGuard(provider Provider, flags Evaluator, opts ...ServiceGuardOption) (*ServiceGuard, error) {
	if provider == nil {
		return nil, errors.New("features: requirement provider is required")
	}
	if flags == nil {
		return nil, errors.New("features: flag evaluator is required")
	}

	cfg := serviceGuardConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.WithModule("features.service_guard")
	}

	return &ServiceGuard{
		provider: provider,
		flags:    flags,
		known:    cfg.known,
		service:  cfg.service,
		matcher:  newMethodMatcher(),
		cache:    newMatchCache(cfg.ttl, cfg.now),
		log:      cfg.log,
	}, nil
}

// Authorize checks the call against service-layer requirements, returning a
// DisabledError when a matching flag is off and a ConfigurationError when
// requirement or flag data cannot be loaded. A nil return means the call may
// proceed.
func (g *ServiceGuard) Authorize(ctx context.Context, call Call) error {
	accountType := resolveAccountType(call, g.known)

	rules, err := g.applicableRules(ctx, call.Method, accountType)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		enabled, err := g.flags.IsEnabled(ctx, rule.flag)
		if err != nil {
			return &ConfigurationError{Flag: rule.flag, Err: err}
		}
		if !enabled {
			return g.disabled(rule, call, accountType)
		}

		if accountType != "" {
			whitelist, err := g.flags.AccountTypeWhitelist(ctx, rule.flag)
			if err != nil {
				return &ConfigurationError{Flag: rule.flag, Err: err}
			}
			if len(whitelist) > 0 && !containsFold(whitelist, accountType) {
				return g.disabled(rule, call, accountType)
			}
		}
	}

	return nil
}

func (g *ServiceGuard) disabled(rule matchedRule, call Call, accountType string) error {
	return &DisabledError{
		Feature:      rule.flag,
		EntityType:   EntityTypeAccount,
		EntityID:     resolveEntityID(call),
		Operation:    call.Method,
		Pattern:      rule.pattern,
		ResolvedType: accountType,
		AccountTypes: rule.types,
	}
}

func (g *ServiceGuard) applicableRules(ctx context.Context, method, accountType string) ([]matchedRule, error) {
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
		for pattern, types := range set[flag].Layer(LayerService) {
			matched, err := g.matcher.Match(pattern, method)
			if err != nil {
				g.log.Warn("skipping invalid method pattern",
					zap.String("flag", flag),
					zap.String("pattern", pattern),
					zap.Error(err))
				continue
			}
			if !matched || !types.Matches(accountType) {
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
func (g *ServiceGuard) InvalidateCache() {
	g.cache.bust()
}
