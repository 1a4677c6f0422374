package features

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitfield/ledgerline/pkg/logger"
)

// APIGate blocks inbound requests whose path matches a requirement of a
// disabled flag. It keeps a flattened, TTL-refreshed view of the api-layer
// entries across all flags; a request matching zero patterns is never
// touched.
type APIGate struct {
	provider Provider
	flags    Evaluator
	ttl      time.Duration
	now      func() time.Time
	matcher  *pathMatcher
	log      *zap.Logger

	mu        sync.RWMutex
	rules     []apiRule
	fetchedAt time.Time
	loaded    bool
}

type apiRule struct {
	flag    string
	pattern string
	types   TypeList
	re      *regexp.Regexp
}

// APIGateOption customises an APIGate.
type APIGateOption func(*APIGate)

// WithAPIGateTTL overrides the flattened view's refresh TTL.
func WithAPIGateTTL(ttl time.Duration) APIGateOption {
	return func(g *APIGate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithAPIGateClock overrides time measurement for tests.
func WithAPIGateClock(now func() time.Time) APIGateOption {
	return func(g *APIGate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithAPIGateLogger overrides the gate logger.
func WithAPIGateLogger(log *zap.Logger) APIGateOption {
	return func(g *APIGate) {
		if log != nil {
			g.log = log
		}
	}
}

// NewAPIGate builds the gate over the given provider and evaluator.
func NewAPIGate(provider Provider, flags Evaluator, opts ...APIGateOption) (*APIGate, error) {
	if provider == nil {
		return nil, errors.New("features: requirement provider is required")
	}
	if flags == nil {
		return nil, errors.New("features: flag evaluator is required")
	}

	gate := &APIGate{
		provider: provider,
		flags:    flags,
		ttl:      DefaultRequirementTTL,
		now:      time.Now,
		matcher:  newPathMatcher(),
	}
	for _, opt := range opts {
		opt(gate)
	}
	if gate.log == nil {
		gate.log = logger.WithModule("features.api_gate")
	}
	return gate, nil
}

// Check evaluates the request path against every flattened rule. It returns
// a DisabledError when a matching rule's flag is off, a ConfigurationError
// when requirement or flag data cannot be loaded, and nil otherwise.
func (g *APIGate) Check(ctx context.Context, path string) error {
	rules, err := g.view(ctx)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if !rule.re.MatchString(path) {
			continue
		}

		enabled, err := g.flags.IsEnabled(ctx, rule.flag)
		if err != nil {
			return &ConfigurationError{Flag: rule.flag, Err: err}
		}
		if enabled {
			continue
		}

		return &DisabledError{
			Feature:      rule.flag,
			EntityType:   EntityTypeAPIEndpoint,
			EntityID:     path,
			Pattern:      rule.pattern,
			AccountTypes: rule.types,
		}
	}

	return nil
}

func (g *APIGate) view(ctx context.Context) ([]apiRule, error) {
	now := g.now()

	g.mu.RLock()
	rules := g.rules
	fresh := g.loaded && now.Sub(g.fetchedAt) < g.ttl
	g.mu.RUnlock()

	if fresh {
		return rules, nil
	}

	set, err := g.provider.AllRequirements(ctx)
	if err != nil {
		return nil, err
	}

	rebuilt := g.flatten(set)

	g.mu.Lock()
	g.rules = rebuilt
	g.fetchedAt = now
	g.loaded = true
	g.mu.Unlock()

	return rebuilt, nil
}

// flatten turns the requirement set into the gate's rule list, compiling
// path patterns up front. Invalid patterns are logged and skipped; they must
// not block unrelated routes.
func (g *APIGate) flatten(set RequirementSet) []apiRule {
	var rules []apiRule
	for _, flag := range set.FlagNames() {
		for pattern, types := range set[flag].Layer(LayerAPI) {
			re, err := g.matcher.Compiled(pattern)
			if err != nil {
				g.log.Warn("skipping invalid path pattern",
					zap.String("flag", flag),
					zap.String("pattern", pattern),
					zap.Error(err))
				continue
			}
			rules = append(rules, apiRule{flag: flag, pattern: pattern, types: types.clone(), re: re})
		}
	}

	// Sorted for deterministic evaluation across refreshes.
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].flag != rules[j].flag {
			return rules[i].flag < rules[j].flag
		}
		return rules[i].pattern < rules[j].pattern
	})
	return rules
}

// Invalidate drops the flattened view so the next check rebuilds it.
func (g *APIGate) Invalidate() {
	g.mu.Lock()
	g.loaded = false
	g.rules = nil
	g.mu.Unlock()
}
