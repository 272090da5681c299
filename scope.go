package gcpauth

import "strings"

// Scope is an OAuth scope requested for an access token.
type Scope string

// Well-known scopes. Any other scope string is accepted as well.
const (
	ScopeCloudPlatform   Scope = "https://www.googleapis.com/auth/cloud-platform"
	ScopeStorageReadOnly Scope = "https://www.googleapis.com/auth/devstorage.read_only"
	ScopeLoggingRead     Scope = "https://www.googleapis.com/auth/logging.read"
)

// JoinScopes combines several scopes into the space-delimited form used in the assertion.
func JoinScopes(scopes ...Scope) Scope {
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if v := strings.TrimSpace(string(s)); v != "" {
			parts = append(parts, v)
		}
	}
	return Scope(strings.Join(parts, " "))
}

// Split returns the individual scopes of a space-delimited scope string.
func (s Scope) Split() []Scope {
	fields := strings.Fields(string(s))
	if len(fields) == 0 {
		return nil
	}
	out := make([]Scope, len(fields))
	for i, f := range fields {
		out[i] = Scope(f)
	}
	return out
}
