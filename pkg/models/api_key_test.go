package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIKey_Grants(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		scope  string
		want   bool
	}{
		{"exact match", []string{ScopeRead}, ScopeRead, true},
		{"other scope", []string{ScopeRead}, ScopeAnalyze, false},
		{"admin grants analyze", []string{ScopeAdmin}, ScopeAnalyze, true},
		{"admin grants read", []string{ScopeAdmin}, ScopeRead, true},
		{"no scopes", nil, ScopeRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &APIKey{Scopes: tt.scopes}
			assert.Equal(t, tt.want, k.Grants(tt.scope))
		})
	}
}

func TestAPIKey_Revoked(t *testing.T) {
	k := &APIKey{}
	assert.False(t, k.Revoked())

	now := time.Now()
	k.DeletedAt = &now
	assert.True(t, k.Revoked())
}

func TestIsKnownScope(t *testing.T) {
	for _, s := range KnownScopes {
		assert.True(t, IsKnownScope(s), s)
	}
	assert.False(t, IsKnownScope("superuser"))
	assert.False(t, IsKnownScope(""))
}
