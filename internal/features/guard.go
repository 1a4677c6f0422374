package features

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// matchedRule is one requirement entry that applies to a concrete
// (method, account type) pair.
type matchedRule struct {
	flag    string
	pattern string
	types   TypeList
}

// matchCache remembers which requirement entries apply to a method and
// account type. It caches the match computation only; flag values are always
// evaluated live, so toggling a flag takes effect immediately while edited
// requirements become visible after TTL or an explicit bust.
type matchCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]matchEntry
}

type matchEntry struct {
	fetchedAt time.Time
	rules     []matchedRule
}

func newMatchCache(ttl time.Duration, now func() time.Time) *matchCache {
	if ttl <= 0 {
		ttl = DefaultRequirementTTL
	}
	if now == nil {
		now = time.Now
	}
	return &matchCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]matchEntry),
	}
}

func matchKey(method, accountType string) string {
	return method + "|" + accountType
}

func (c *matchCache) get(key string) ([]matchedRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.rules, true
}

func (c *matchCache) put(key string, rules []matchedRule) {
	c.mu.Lock()
	c.entries[key] = matchEntry{fetchedAt: c.now(), rules: rules}
	c.mu.Unlock()
}

func (c *matchCache) bust() {
	c.mu.Lock()
	c.entries = make(map[string]matchEntry)
	c.mu.Unlock()
}

// sortRules keeps gate evaluation order stable across map iterations.
func sortRules(rules []matchedRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].flag != rules[j].flag {
			return rules[i].flag < rules[j].flag
		}
		return rules[i].pattern < rules[j].pattern
	})
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
