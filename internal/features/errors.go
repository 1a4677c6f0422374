package features

import (
	"errors"
	"fmt"
	"strings"
)

// DisabledError reports that a feature flag gated the attempted operation.
// It carries best-effort entity and operation context for the API error body
// and may wrap a domain error as its cause. EntityType is the entity
// category ("account", "api_endpoint"); ResolvedType is the specific account
// type the gate resolved, when any.
type DisabledError struct {
	Feature      string
	EntityType   string
	EntityID     string
	Operation    string
	Pattern      string
	ResolvedType string
	AccountTypes TypeList
	Err          error
}

func (e *DisabledError) Error() string {
	var b strings.Builder
	b.WriteString("feature ")
	b.WriteString(e.Feature)
	b.WriteString(" is disabled")
	if e.Operation != "" {
		fmt.Fprintf(&b, " for operation %s", e.Operation)
	}
	if e.EntityType != "" {
		fmt.Fprintf(&b, " (entity_type=%s", e.EntityType)
		if e.EntityID != "" {
			fmt.Fprintf(&b, ", entity_id=%s", e.EntityID)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the wrapped domain cause, when present.
func (e *DisabledError) Unwrap() error {
	return e.Err
}

// Message renders the human-readable text used in API responses.
func (e *DisabledError) Message() string {
	if e.ResolvedType != "" {
		return fmt.Sprintf("%s accounts are not enabled", e.ResolvedType)
	}
	return fmt.Sprintf("feature %s is not enabled", e.Feature)
}

// IsDisabled reports whether err is (or wraps) a DisabledError.
func IsDisabled(err error) bool {
	var disabled *DisabledError
	return errors.As(err, &disabled)
}

// AsDisabled extracts a DisabledError from err when present.
func AsDisabled(err error) (*DisabledError, bool) {
	var disabled *DisabledError
	if errors.As(err, &disabled) {
		return disabled, true
	}
	return nil, false
}

// ConfigurationError reports that requirement data could not be loaded or was
// malformed. It is distinct from a disabled flag and must never be treated as
// an implicit allow.
type ConfigurationError struct {
	Flag string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Flag != "" {
		return fmt.Sprintf("feature requirements for %s unavailable: %v", e.Flag, e.Err)
	}
	return fmt.Sprintf("feature requirements unavailable: %v", e.Err)
}

// Unwrap exposes the underlying store error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Entity types attached to DisabledError by the gates.
const (
	EntityTypeAPIEndpoint = "api_endpoint"
	EntityTypeAccount     = "account"
)
