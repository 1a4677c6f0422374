package services

import (
	"context"
	"errors"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
)

// serviceGateCheck runs a service-layer authorization and records gate
// outcomes. A nil return means the call may proceed.
func serviceGateCheck(ctx context.Context, guard *features.ServiceGuard, call features.Call) error {
	err := guard.Authorize(ctx, call)
	if err == nil {
		return nil
	}

	var disabled *features.DisabledError
	if errors.As(err, &disabled) {
		metrics.FeatureChecks.WithLabelValues(disabled.Feature, "service", "blocked").Inc()
		return err
	}

	flag := "unknown"
	var cfgErr *features.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Flag != "" {
		flag = cfgErr.Flag
	}
	metrics.FeatureChecks.WithLabelValues(flag, "service", "error").Inc()
	return err
}
