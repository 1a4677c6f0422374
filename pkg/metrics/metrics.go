package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerline_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// FeatureChecks counts feature gate evaluations per flag and enforcement
	// layer, with their outcome (allowed|blocked|error).
	FeatureChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerline_feature_checks_total",
			Help: "Total number of feature gate checks",
		},
		[]string{"feature", "layer", "result"},
	)

	// FlagUpdates counts administrative changes to feature flags.
	FlagUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerline_flag_updates_total",
			Help: "Total number of feature flag updates",
		},
		[]string{"feature"},
	)

	// AccountOperations counts typed account writes by account type and
	// operation (create|update|delete).
	AccountOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerline_account_operations_total",
			Help: "Total number of account write operations",
		},
		[]string{"account_type", "operation"},
	)

	// BillPayments counts recorded bill payments by result (success|failure).
	BillPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerline_bill_payments_total",
			Help: "Total number of recorded bill payments",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerline_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
