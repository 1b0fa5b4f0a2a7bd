package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scopes an API key can carry. ScopeAdmin implies the others.
const (
	ScopeAnalyze = "analyze"
	ScopeRead    = "read"
	ScopeAdmin   = "admin"
)

// KnownScopes lists every scope a key may be granted, in display order.
var KnownScopes = []string{ScopeAnalyze, ScopeRead, ScopeAdmin}

// APIKey is a credential for the HTTP API. The raw key is returned once when
// the key is created; afterwards only the bcrypt hash and a short clear-text
// prefix used for lookup are kept.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Grants reports whether the key may perform actions guarded by scope.
func (k *APIKey) Grants(scope string) bool {
	return ScopesGrant(k.Scopes, scope)
}

// Revoked reports whether the key has been soft-deleted.
func (k *APIKey) Revoked() bool {
	return k.DeletedAt != nil
}

// ScopesGrant reports whether a scope set allows scope.
func ScopesGrant(scopes []string, scope string) bool {
	return slices.Contains(scopes, scope) || slices.Contains(scopes, ScopeAdmin)
}

// IsKnownScope reports whether s names a scope the API understands.
func IsKnownScope(s string) bool {
	return slices.Contains(KnownScopes, s)
}
