package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a raw key are stored in
// clear for lookup.
const KeyPrefixLen = 8

// Scopes checked by the router.
const (
	ScopeAnalyze = models.ScopeAnalyze
	ScopeRead    = models.ScopeRead
	ScopeAdmin   = models.ScopeAdmin
)

const touchTimeout = 5 * time.Second

var (
	errNoCredentials = errors.New("missing or invalid Authorization header")
	errMalformedKey  = errors.New("invalid API key format")
	errUnknownKey    = errors.New("invalid API key")
)

// Auth resolves bearer keys against the key store and enforces scopes.
type Auth struct {
	store store.Store
}

// NewAuth creates a new Auth middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate rejects requests without a valid key and attaches the
// matching Principal to the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := a.resolve(r.Context(), credential(r))
		switch {
		case err == nil:
		case errors.Is(err, errNoCredentials), errors.Is(err, errMalformedKey), errors.Is(err, errUnknownKey):
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", capitalize(err.Error()), nil)
			return
		default:
			slog.Error("api key lookup failed", "error", err, "request_id", GetRequestID(r))
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		go a.touch(key)

		ctx := WithPrincipal(r.Context(), Principal{
			KeyID:  key.ID,
			Prefix: key.KeyPrefix,
			Scopes: key.Scopes,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope returns middleware that admits only principals granted
// scope. It must run after Authenticate.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r)
			if !HasScope(p.Scopes, scope) {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasScope reports whether scopes grants scope.
func HasScope(scopes []string, scope string) bool {
	return models.ScopesGrant(scopes, scope)
}

func (a *Auth) resolve(ctx context.Context, raw string) (*models.APIKey, error) {
	if raw == "" {
		return nil, errNoCredentials
	}
	if len(raw) < KeyPrefixLen {
		return nil, errMalformedKey
	}

	candidates, err := a.store.GetAPIKeyByPrefix(ctx, raw[:KeyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if k.Revoked() {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil {
			return k, nil
		}
	}
	return nil, errUnknownKey
}

// touch records key usage off the request path.
func (a *Auth) touch(key *models.APIKey) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := a.store.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		slog.Debug("failed to update key last_used_at", "key_prefix", key.KeyPrefix, "error", err)
	}
}

// credential reads the bearer token. Browsers cannot set headers on a
// WebSocket handshake, so upgrade requests may pass the key as the
// access_token query parameter instead.
func credential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			return strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
