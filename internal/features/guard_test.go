package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubEvaluator is the shared flag-evaluation stub used by gate tests.
type stubEvaluator struct {
	enabled   map[string]bool
	whitelist map[string][]string
	evalErr   error
}

func (s *stubEvaluator) IsEnabled(_ context.Context, name string) (bool, error) {
	if s.evalErr != nil {
		return false, s.evalErr
	}
	return s.enabled[name], nil
}

func (s *stubEvaluator) AccountTypeWhitelist(_ context.Context, name string) ([]string, error) {
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	return s.whitelist[name], nil
}

func TestMatchCacheExpiresByTTL(t *testing.T) {
	now, advance := testClock(time.Unix(1700000000, 0))
	cache := newMatchCache(time.Minute, now)

	cache.put("k", []matchedRule{{flag: "F"}})

	rules, ok := cache.get("k")
	require.True(t, ok)
	require.Len(t, rules, 1)

	advance(2 * time.Minute)

	_, ok = cache.get("k")
	require.False(t, ok)
}

func TestMatchCacheBust(t *testing.T) {
	cache := newMatchCache(time.Hour, time.Now)

	cache.put("k", nil)
	_, ok := cache.get("k")
	require.True(t, ok)

	cache.bust()

	_, ok = cache.get("k")
	require.False(t, ok)
}
