package features

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// compilePathPattern translates an API path pattern into a regular
// expression. `{name}` captures exactly one path segment, a trailing `*`
// matches any suffix, and every other character matches literally.
func compilePathPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("features: empty path pattern")
	}

	openSuffix := strings.HasSuffix(pattern, "*")
	if openSuffix {
		pattern = strings.TrimSuffix(pattern, "*")
	}

	var b strings.Builder
	b.WriteString("^")

	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}

		b.WriteString(regexp.QuoteMeta(rest[:open]))
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("features: unterminated parameter in path pattern %q", pattern)
		}
		b.WriteString(`[^/]+`)
		rest = rest[open+closing+1:]
	}

	if openSuffix {
		b.WriteString(".*")
	}
	b.WriteString("$")

	return regexp.Compile(b.String())
}

// pathMatcher caches compiled path patterns. Invalid patterns are remembered
// so they are reported once and never match.
type pathMatcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	invalid  map[string]error
}

func newPathMatcher() *pathMatcher {
	return &pathMatcher{
		compiled: make(map[string]*regexp.Regexp),
		invalid:  make(map[string]error),
	}
}

// Compiled returns the compiled form of pattern, caching both successes and
// failures so a bad pattern is compiled (and reported) once.
func (m *pathMatcher) Compiled(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	err, failed := m.invalid[pattern]
	m.mu.RUnlock()

	if failed {
		return nil, err
	}
	if ok {
		return re, nil
	}

	compiled, compileErr := compilePathPattern(pattern)
	m.mu.Lock()
	if compileErr != nil {
		m.invalid[pattern] = compileErr
	} else {
		m.compiled[pattern] = compiled
	}
	m.mu.Unlock()

	if compileErr != nil {
		return nil, compileErr
	}
	return compiled, nil
}

// Match reports whether path satisfies pattern.
func (m *pathMatcher) Match(pattern, path string) (bool, error) {
	re, err := m.Compiled(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(path), nil
}

// methodMatcher answers whether a requirement entry applies to a method
// name. Exact matches are tried first; entries containing glob metacharacters
// (`*`, `?`, `[`) are compiled with the glob library and cached.
type methodMatcher struct {
	mu       sync.RWMutex
	compiled map[string]glob.Glob
	invalid  map[string]error
}

func newMethodMatcher() *methodMatcher {
	return &methodMatcher{
		compiled: make(map[string]glob.Glob),
		invalid:  make(map[string]error),
	}
}

func isGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Match reports whether method satisfies pattern.
func (m *methodMatcher) Match(pattern, method string) (bool, error) {
	if pattern == method {
		return true, nil
	}
	if !isGlobPattern(pattern) {
		return false, nil
	}

	m.mu.RLock()
	g, ok := m.compiled[pattern]
	err, failed := m.invalid[pattern]
	m.mu.RUnlock()

	if failed {
		return false, err
	}

	if !ok {
		compiled, compileErr := glob.Compile(pattern)
		m.mu.Lock()
		if compileErr != nil {
			m.invalid[pattern] = fmt.Errorf("features: invalid method pattern %q: %w", pattern, compileErr)
			err = m.invalid[pattern]
		} else {
			m.compiled[pattern] = compiled
		}
		m.mu.Unlock()

		if compileErr != nil {
			return false, err
		}
		g = compiled
	}

	return g.Match(method), nil
}
