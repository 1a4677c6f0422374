package app

import (
	"strings"

	"github.com/mwhitfield/ledgerline/internal/features"
)

// Policy maps the configured fallback policy name onto the provider's
// behaviour when the requirement store fails. Unknown names fall back to
// serving the compiled-in defaults.
func (c FeatureConfig) Policy() features.FallbackPolicy {
	switch strings.ToLower(strings.TrimSpace(c.FallbackPolicy)) {
	case "error", "deny":
		return features.FallbackError
	default:
		return features.FallbackDefaults
	}
}

// ProviderOptions converts FeatureConfig into requirement provider options.
func (c FeatureConfig) ProviderOptions() []features.ProviderOption {
	opts := []features.ProviderOption{
		features.WithDefaults(features.DefaultRequirements()),
		features.WithFallbackPolicy(c.Policy()),
	}
	if c.RequirementTTL > 0 {
		opts = append(opts,
			features.WithTTL(c.RequirementTTL),
			features.WithAllTTL(c.RequirementTTL),
		)
	}
	return opts
}

// FlagOptions converts FeatureConfig into flag service options.
func (c FeatureConfig) FlagOptions() []features.FlagOption {
	var opts []features.FlagOption
	if c.FlagTTL > 0 {
		opts = append(opts, features.WithFlagTTL(c.FlagTTL))
	}
	return opts
}

// APIGateOptions converts FeatureConfig into API gate options.
func (c FeatureConfig) APIGateOptions() []features.APIGateOption {
	var opts []features.APIGateOption
	if c.DecisionTTL > 0 {
		opts = append(opts, features.WithAPIGateTTL(c.DecisionTTL))
	}
	return opts
}

// ServiceGuardOptions converts FeatureConfig into service guard options.
func (c FeatureConfig) ServiceGuardOptions() []features.ServiceGuardOption {
	var opts []features.ServiceGuardOption
	if c.DecisionTTL > 0 {
		opts = append(opts, features.WithServiceGuardTTL(c.DecisionTTL))
	}
	return opts
}

// RepositoryGuardOptions converts FeatureConfig into repository guard options.
func (c FeatureConfig) RepositoryGuardOptions() []features.RepositoryGuardOption {
	var opts []features.RepositoryGuardOption
	if c.DecisionTTL > 0 {
		opts = append(opts, features.WithRepositoryGuardTTL(c.DecisionTTL))
	}
	return opts
}
