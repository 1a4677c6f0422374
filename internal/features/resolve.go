package features

import (
	"sort"
	"strings"
)

// TypedEntity reports the account type an entity belongs to. Inputs, models
// and detail payloads implement it so gates can resolve a type without
// knowing concrete shapes.
type TypedEntity interface {
	EntityType() string
}

// Call describes one intercepted method invocation. Wrappers populate the
// fields they can see; resolution works over whatever subset is present.
type Call struct {
	// Method is the invoked method name, e.g. "CreateTyped".
	Method string
	// AccountType carries an explicitly supplied type and wins over every
	// other strategy.
	AccountType string
	// Payload is the request payload for map-shaped arguments. A nested map
	// one level deep may carry the account_type key.
	Payload map[string]any
	// Entity is a typed argument such as a model or input struct.
	Entity any
	// Args holds positional string arguments, inspected only as a last
	// resort.
	Args []string
	// EntityID is the best-effort entity id for error context.
	EntityID string
}

// payloadTypeKey is the payload key carrying an account type.
const payloadTypeKey = "account_type"

// TypeSet is an immutable lookup of registered account type ids.
type TypeSet struct {
	ids     map[string]struct{}
	ordered []string
}

// NewTypeSet builds a TypeSet from the given ids. Ids are normalised to
// lower case; empties are dropped.
func NewTypeSet(ids ...string) *TypeSet {
	set := &TypeSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, exists := set.ids[id]; exists {
			continue
		}
		set.ids[id] = struct{}{}
		set.ordered = append(set.ordered, id)
	}
	sort.Strings(set.ordered)
	return set
}

// Contains reports whether id is a registered type.
func (s *TypeSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// MatchSubstring returns the first registered id appearing as a substring of
// name, scanning in sorted order for determinism.
func (s *TypeSet) MatchSubstring(name string) string {
	if s == nil || name == "" {
		return ""
	}
	lowered := strings.ToLower(name)
	for _, id := range s.ordered {
		if strings.Contains(lowered, id) {
			return id
		}
	}
	return ""
}

// IDs returns the registered ids in sorted order.
func (s *TypeSet) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ordered...)
}

// resolveAccountType extracts the account type a call concerns using, in
// priority order: the explicit field, the payload's account_type key (one
// nested level deep), a TypedEntity argument, and finally a positional
// string argument matching a known type id. An empty result means no type
// could be resolved.
func resolveAccountType(call Call, known *TypeSet) string {
	if t := normaliseType(call.AccountType); t != "" {
		return t
	}

	if t := payloadAccountType(call.Payload); t != "" {
		return t
	}

	if typed, ok := call.Entity.(TypedEntity); ok && typed != nil {
		if t := normaliseType(typed.EntityType()); t != "" {
			return t
		}
	}

	for _, arg := range call.Args {
		if known.Contains(arg) {
			return normaliseType(arg)
		}
	}

	return ""
}

func payloadAccountType(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	if t := stringValue(payload[payloadTypeKey]); t != "" {
		return normaliseType(t)
	}

	// Nested objects are visited in key order so a payload carrying more
	// than one candidate always resolves to the same type.
	keys := make([]string, 0, len(payload))
	for key, value := range payload {
		if _, ok := value.(map[string]any); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		nested := payload[key].(map[string]any)
		if t := stringValue(nested[payloadTypeKey]); t != "" {
			return normaliseType(t)
		}
	}

	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func normaliseType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// resolveEntityID extracts a best-effort entity id for error context: the
// explicit field first, then id-like payload keys.
func resolveEntityID(call Call) string {
	if call.EntityID != "" {
		return call.EntityID
	}
	if len(call.Payload) == 0 {
		return ""
	}
	for _, key := range []string{"id", "account_id", "entity_id"} {
		if v := stringValue(call.Payload[key]); v != "" {
			return v
		}
	}
	return ""
}
