package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPIGate(t *testing.T, provider Provider, flags Evaluator, opts ...APIGateOption) *APIGate {
	t.Helper()

	gate, err := NewAPIGate(provider, flags, opts...)
	require.NoError(t, err)
	return gate
}

func autopayAPIProvider() Provider {
	return NewStaticProvider(RequirementSet{
		FlagBillAutopay: {
			API: LayerRequirements{
				"/api/bills/{id}/autopay": TypeList{Wildcard},
			},
		},
	})
}

func TestAPIGateBlocksDisabledEndpoint(t *testing.T) {
	eval := &stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}}
	gate := newTestAPIGate(t, autopayAPIProvider(), eval)

	err := gate.Check(context.Background(), "/api/bills/42/autopay")

	disabled, ok := AsDisabled(err)
	require.True(t, ok)
	require.Equal(t, FlagBillAutopay, disabled.Feature)
	require.Equal(t, EntityTypeAPIEndpoint, disabled.EntityType)
	require.Equal(t, "/api/bills/42/autopay", disabled.EntityID)
	require.Equal(t, "/api/bills/{id}/autopay", disabled.Pattern)

	eval.enabled[FlagBillAutopay] = true
	require.NoError(t, gate.Check(context.Background(), "/api/bills/42/autopay"))
}

func TestAPIGateIgnoresUnflaggedPaths(t *testing.T) {
	gate := newTestAPIGate(t, autopayAPIProvider(),
		&stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}})

	require.NoError(t, gate.Check(context.Background(), "/api/accounts"))
	require.NoError(t, gate.Check(context.Background(), "/api/bills/42"))
}

func TestAPIGatePlaceholderSpansOneSegment(t *testing.T) {
	gate := newTestAPIGate(t, autopayAPIProvider(),
		&stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}})

	require.Error(t, gate.Check(context.Background(), "/api/bills/42/autopay"))
	require.NoError(t, gate.Check(context.Background(), "/api/bills/42/history/autopay"))
}

func TestAPIGateTrailingWildcardMatchesSuffix(t *testing.T) {
	provider := NewStaticProvider(RequirementSet{
		FlagCryptoAccounts: {
			API: LayerRequirements{"/api/crypto/*": TypeList{"crypto"}},
		},
	})
	gate := newTestAPIGate(t, provider,
		&stubEvaluator{enabled: map[string]bool{FlagCryptoAccounts: false}})

	require.Error(t, gate.Check(context.Background(), "/api/crypto/wallets"))
	require.Error(t, gate.Check(context.Background(), "/api/crypto/wallets/7/trades"))
	require.NoError(t, gate.Check(context.Background(), "/api/accounts/crypto"))
}

func TestAPIGateEvaluatorFailureIsConfigurationError(t *testing.T) {
	gate := newTestAPIGate(t, autopayAPIProvider(),
		&stubEvaluator{evalErr: errors.New("flag store down")})

	err := gate.Check(context.Background(), "/api/bills/42/autopay")
	require.True(t, IsConfiguration(err))
}

func TestAPIGateProviderFailurePropagates(t *testing.T) {
	provider, err := NewStoreProvider(&failingStore{err: errors.New("down")},
		WithFallbackPolicy(FallbackError))
	require.NoError(t, err)

	gate := newTestAPIGate(t, provider, &stubEvaluator{})

	checkErr := gate.Check(context.Background(), "/api/bills/42/autopay")
	require.True(t, IsConfiguration(checkErr))
}

func TestAPIGateInvalidateMakesRequirementEditsVisible(t *testing.T) {
	store := NewMemoryStore(RequirementSet{})
	provider, err := NewStoreProvider(store)
	require.NoError(t, err)

	gate := newTestAPIGate(t, provider,
		&stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}})

	require.NoError(t, gate.Check(context.Background(), "/api/bills/42/autopay"))

	req := Requirements{API: LayerRequirements{"/api/bills/{id}/autopay": TypeList{Wildcard}}}
	require.NoError(t, store.UpdateRequirements(context.Background(), FlagBillAutopay, req))

	// Still cached: both the provider snapshot and the gate's flattened
	// view were built before the edit.
	require.NoError(t, gate.Check(context.Background(), "/api/bills/42/autopay"))

	provider.Invalidate(FlagBillAutopay)
	gate.Invalidate()
	require.True(t, IsDisabled(gate.Check(context.Background(), "/api/bills/42/autopay")))
}

func TestAPIGateViewExpiresWithTTL(t *testing.T) {
	store := NewMemoryStore(RequirementSet{})
	now, advance := testClock(time.Unix(1700000000, 0))

	provider, err := NewStoreProvider(store, WithClock(now), WithAllTTL(time.Minute))
	require.NoError(t, err)

	gate := newTestAPIGate(t, provider,
		&stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}},
		WithAPIGateTTL(time.Minute), WithAPIGateClock(now))

	require.NoError(t, gate.Check(context.Background(), "/api/bills/42/autopay"))

	req := Requirements{API: LayerRequirements{"/api/bills/{id}/autopay": TypeList{Wildcard}}}
	require.NoError(t, store.UpdateRequirements(context.Background(), FlagBillAutopay, req))

	advance(2 * time.Minute)
	require.True(t, IsDisabled(gate.Check(context.Background(), "/api/bills/42/autopay")))
}

func TestAPIGateSkipsInvalidPatterns(t *testing.T) {
	provider := NewStaticProvider(RequirementSet{
		FlagBillAutopay: {
			API: LayerRequirements{
				"/api/broken/{id":         TypeList{Wildcard},
				"/api/bills/{id}/autopay": TypeList{Wildcard},
			},
		},
	})
	gate := newTestAPIGate(t, provider,
		&stubEvaluator{enabled: map[string]bool{FlagBillAutopay: false}},
		WithAPIGateLogger(zap.NewNop()))

	// The malformed entry is dropped; the valid one still enforces.
	require.NoError(t, gate.Check(context.Background(), "/api/broken/7"))
	require.True(t, IsDisabled(gate.Check(context.Background(), "/api/bills/7/autopay")))
}
