package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err error
}

func (s *failingStore) Get(context.Context, string) (Requirements, error) {
	return Requirements{}, s.err
}

func (s *failingStore) GetAll(context.Context) (RequirementSet, error) {
	return nil, s.err
}

func (s *failingStore) UpdateRequirements(context.Context, string, Requirements) error {
	return s.err
}

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func TestProviderServesStoredRequirements(t *testing.T) {
	store := NewMemoryStore(RequirementSet{
		"FLAG": {Repository: LayerRequirements{"CreateTyped": TypeList{"bnpl"}}},
	})

	provider, err := NewStoreProvider(store)
	require.NoError(t, err)

	reqs, err := provider.RepositoryRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"bnpl"}, reqs["CreateTyped"])
}

func TestProviderFallsBackToDefaultsForMissingFlag(t *testing.T) {
	provider, err := NewStoreProvider(NewMemoryStore(nil), WithDefaults(RequirementSet{
		"FLAG": {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
	}))
	require.NoError(t, err)

	reqs, err := provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"bnpl"}, reqs["Create*"])

	// A flag absent from store and defaults yields an empty map.
	empty, err := provider.APIRequirements(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestProviderCachesWithinTTL(t *testing.T) {
	store := NewMemoryStore(RequirementSet{
		"FLAG": {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
	})

	now, advance := testClock(time.Unix(1700000000, 0))
	provider, err := NewStoreProvider(store, WithTTL(time.Minute), WithClock(now))
	require.NoError(t, err)

	_, err = provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)

	// A store-side change inside the TTL window stays invisible.
	require.NoError(t, store.UpdateRequirements(context.Background(), "FLAG", Requirements{
		Service: LayerRequirements{"Create*": TypeList{"crypto"}},
	}))

	reqs, err := provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"bnpl"}, reqs["Create*"])

	// After the TTL elapses the change becomes visible.
	advance(2 * time.Minute)
	reqs, err = provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"crypto"}, reqs["Create*"])
}

func TestProviderInvalidateForcesReloadInsideTTL(t *testing.T) {
	store := NewMemoryStore(RequirementSet{
		"FLAG": {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
	})

	now, _ := testClock(time.Unix(1700000000, 0))
	provider, err := NewStoreProvider(store, WithTTL(time.Hour), WithClock(now))
	require.NoError(t, err)

	_, err = provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)

	require.NoError(t, store.UpdateRequirements(context.Background(), "FLAG", Requirements{
		Service: LayerRequirements{"Create*": TypeList{"crypto"}},
	}))

	provider.Invalidate("FLAG")

	reqs, err := provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"crypto"}, reqs["Create*"])
}

func TestProviderStoreFailureServesDefaults(t *testing.T) {
	defaults := RequirementSet{
		"FLAG": {API: LayerRequirements{"/api/x": TypeList{Wildcard}}},
	}

	provider, err := NewStoreProvider(&failingStore{err: errors.New("down")},
		WithDefaults(defaults),
		WithFallbackPolicy(FallbackDefaults))
	require.NoError(t, err)

	reqs, err := provider.APIRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{Wildcard}, reqs["/api/x"])

	all, err := provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "FLAG")
}

func TestProviderStoreFailureSurfacesConfigurationError(t *testing.T) {
	provider, err := NewStoreProvider(&failingStore{err: errors.New("down")},
		WithFallbackPolicy(FallbackError))
	require.NoError(t, err)

	_, err = provider.APIRequirements(context.Background(), "FLAG")
	require.True(t, IsConfiguration(err))

	_, err = provider.AllRequirements(context.Background())
	require.True(t, IsConfiguration(err))
}

func TestProviderRefreshAllAlwaysPropagatesFailure(t *testing.T) {
	provider, err := NewStoreProvider(&failingStore{err: errors.New("down")},
		WithFallbackPolicy(FallbackDefaults))
	require.NoError(t, err)

	_, err = provider.RefreshAll(context.Background())
	require.True(t, IsConfiguration(err))
}

func TestProviderAllRequirementsOverlaysDefaults(t *testing.T) {
	store := NewMemoryStore(RequirementSet{
		"STORED": {Service: LayerRequirements{"Pay*": TypeList{Wildcard}}},
	})

	provider, err := NewStoreProvider(store, WithDefaults(RequirementSet{
		"BUILTIN": {Repository: LayerRequirements{"CreateTyped": TypeList{"bnpl"}}},
	}))
	require.NoError(t, err)

	all, err := provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "STORED")
	require.Contains(t, all, "BUILTIN")
}

func TestProviderClearedFlagDropsDefaultEntries(t *testing.T) {
	store := NewMemoryStore(nil)

	provider, err := NewStoreProvider(store, WithDefaults(RequirementSet{
		"FLAG":    {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
		"BUILTIN": {Repository: LayerRequirements{"CreateTyped": TypeList{"crypto"}}},
	}))
	require.NoError(t, err)

	// An administrator clears the flag's rules by storing an empty payload.
	require.NoError(t, store.UpdateRequirements(context.Background(), "FLAG", Requirements{}))
	provider.Invalidate("FLAG")

	reqs, err := provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Empty(t, reqs)

	// The merged snapshot agrees with the per-flag view: the cleared flag
	// carries no rules while untouched defaults stay in force.
	all, err := provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "FLAG")
	require.True(t, all["FLAG"].IsZero())
	require.Equal(t, TypeList{"crypto"}, all["BUILTIN"].Repository["CreateTyped"])
}

func TestProviderInvalidateAllClearsSnapshot(t *testing.T) {
	store := NewMemoryStore(nil)

	now, _ := testClock(time.Unix(1700000000, 0))
	provider, err := NewStoreProvider(store, WithAllTTL(time.Hour), WithClock(now))
	require.NoError(t, err)

	all, err := provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, store.UpdateRequirements(context.Background(), "NEW", Requirements{
		API: LayerRequirements{"/api/new": TypeList{Wildcard}},
	}))

	provider.Invalidate()

	all, err = provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "NEW")
}

func TestStaticProviderServesFixedSet(t *testing.T) {
	provider := NewStaticProvider(RequirementSet{
		"FLAG": {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
	})

	reqs, err := provider.ServiceRequirements(context.Background(), "FLAG")
	require.NoError(t, err)
	require.Equal(t, TypeList{"bnpl"}, reqs["Create*"])

	all, err := provider.AllRequirements(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)

	provider.Invalidate() // no-op
}
