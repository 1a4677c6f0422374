package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Layer identifies one enforcement boundary.
type Layer string

// Enforcement layers, outermost first.
const (
	LayerAPI        Layer = "api"
	LayerService    Layer = "service"
	LayerRepository Layer = "repository"
)

// Wildcard marks a requirement entry that applies to every account type.
const Wildcard = "*"

// TypeList is the set of account types one requirement entry restricts. On
// the wire the value may be a JSON array of type ids, a bare boolean (true
// meaning every type), or an object mapping type ids to booleans; all three
// normalise to a list, with true becoming ["*"].
type TypeList []string

// UnmarshalJSON accepts the three wire shapes described on TypeList.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = nil
		return nil
	}

	switch trimmed[0] {
	case 't', 'f':
		var enabled bool
		if err := json.Unmarshal(data, &enabled); err != nil {
			return fmt.Errorf("features: decode requirement value: %w", err)
		}
		if enabled {
			*t = TypeList{Wildcard}
		} else {
			*t = nil
		}
		return nil
	case '{':
		var byType map[string]bool
		if err := json.Unmarshal(data, &byType); err != nil {
			return fmt.Errorf("features: decode requirement value: %w", err)
		}
		var list []string
		for id, marked := range byType {
			if marked {
				list = append(list, id)
			}
		}
		sort.Strings(list)
		*t = TypeList(list)
		return nil
	default:
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("features: decode requirement value: %w", err)
		}
		*t = TypeList(list)
		return nil
	}
}

// Restricts reports whether the entry restricts anything at all. Empty or
// absent lists mean "no restriction".
func (t TypeList) Restricts() bool {
	return len(t) > 0
}

// HasWildcard reports whether the entry applies regardless of account type.
func (t TypeList) HasWildcard() bool {
	for _, id := range t {
		if id == Wildcard {
			return true
		}
	}
	return false
}

// Matches reports whether the entry applies to the resolved account type. A
// wildcard matches everything, including calls with no resolvable type.
func (t TypeList) Matches(accountType string) bool {
	if !t.Restricts() {
		return false
	}
	if t.HasWildcard() {
		return true
	}
	if accountType == "" {
		return false
	}
	for _, id := range t {
		if strings.EqualFold(id, accountType) {
			return true
		}
	}
	return false
}

func (t TypeList) clone() TypeList {
	if t == nil {
		return nil
	}
	return append(TypeList(nil), t...)
}

// LayerRequirements maps a method name or path pattern to the account types
// it restricts.
type LayerRequirements map[string]TypeList

// Clone returns a deep copy so callers can never mutate cache contents.
func (l LayerRequirements) Clone() LayerRequirements {
	if l == nil {
		return nil
	}
	out := make(LayerRequirements, len(l))
	for pattern, types := range l {
		out[pattern] = types.clone()
	}
	return out
}

// Requirements groups one flag's gating rules by enforcement layer.
type Requirements struct {
	API        LayerRequirements `json:"api,omitempty"`
	Service    LayerRequirements `json:"service,omitempty"`
	Repository LayerRequirements `json:"repository,omitempty"`
}

// Layer selects the entries for one enforcement boundary.
func (r Requirements) Layer(layer Layer) LayerRequirements {
	switch layer {
	case LayerAPI:
		return r.API
	case LayerService:
		return r.Service
	case LayerRepository:
		return r.Repository
	default:
		return nil
	}
}

// IsZero reports whether the flag carries no requirements at all.
func (r Requirements) IsZero() bool {
	return len(r.API) == 0 && len(r.Service) == 0 && len(r.Repository) == 0
}

// Clone returns a deep copy of the requirements.
func (r Requirements) Clone() Requirements {
	return Requirements{
		API:        r.API.Clone(),
		Service:    r.Service.Clone(),
		Repository: r.Repository.Clone(),
	}
}

// RequirementSet maps flag names to their layered requirements.
type RequirementSet map[string]Requirements

// Clone returns a deep copy of the set.
func (s RequirementSet) Clone() RequirementSet {
	if s == nil {
		return nil
	}
	out := make(RequirementSet, len(s))
	for flag, req := range s {
		out[flag] = req.Clone()
	}
	return out
}

// FlagNames returns the flags in the set in sorted order, which keeps gate
// evaluation deterministic.
func (s RequirementSet) FlagNames() []string {
	names := make([]string, 0, len(s))
	for flag := range s {
		names = append(names, flag)
	}
	sort.Strings(names)
	return names
}

// ParseRequirements decodes one flag's requirement payload.
func ParseRequirements(data []byte) (Requirements, error) {
	if len(data) == 0 {
		return Requirements{}, nil
	}

	var req Requirements
	if err := json.Unmarshal(data, &req); err != nil {
		return Requirements{}, fmt.Errorf("features: parse requirements: %w", err)
	}
	return req, nil
}
