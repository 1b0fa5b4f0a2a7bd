package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/framecheck/internal/api"
	mw "github.com/kiranshivaraju/framecheck/internal/api/middleware"
	"github.com/kiranshivaraju/framecheck/internal/cache"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── stubs ───────────────────────────────────────────────────────────────────

// keyring answers prefix lookups from a fixed set of keys.
type keyring struct {
	keys []*models.APIKey
}

func (k *keyring) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, key := range k.keys {
		if key.KeyPrefix == prefix {
			out = append(out, key)
		}
	}
	return out, nil
}

func (k *keyring) Ping(context.Context) error                            { return nil }
func (k *keyring) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }
func (k *keyring) CreateAPIKey(context.Context, *models.APIKey) error    { return nil }
func (k *keyring) ListAPIKeys(context.Context) ([]*models.APIKey, error) { return k.keys, nil }
func (k *keyring) RevokeAPIKey(context.Context, uuid.UUID) error         { return nil }

func (k *keyring) CreateAnalysis(context.Context, *models.AnalysisRecord) error { return nil }

func (k *keyring) GetAnalysis(context.Context, uuid.UUID) (*models.AnalysisRecord, error) {
	return nil, store.ErrNotFound
}

func (k *keyring) GetAnalysisByJobID(context.Context, string) (*models.AnalysisRecord, error) {
	return nil, store.ErrNotFound
}

func (k *keyring) ListAnalyses(context.Context, store.AnalysisFilter) ([]*models.AnalysisRecord, int, error) {
	return nil, 0, nil
}

type nopCache struct{}

func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nopCache) Delete(context.Context, string) error                     { return nil }
func (nopCache) Ping(context.Context) error                               { return nil }
func (nopCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

var (
	_ store.Store = (*keyring)(nil)
	_ cache.Cache = nopCache{}
)

// ─── fixture ─────────────────────────────────────────────────────────────────

const (
	readerKey  = "fc_reader_0123456789abcdef"
	analystKey = "fc_analys_0123456789abcdef"
	adminKey   = "fc_admins_0123456789abcdef"
)

func stored(t *testing.T, raw string, scopes ...string) *models.APIKey {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.APIKey{ID: uuid.New(), KeyHash: string(hash), KeyPrefix: raw[:mw.KeyPrefixLen], Scopes: scopes}
}

// newTestRouter wires only the health handler; every other route falls back
// to the 501 placeholder once auth and scope checks pass.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ring := &keyring{keys: []*models.APIKey{
		stored(t, readerKey, models.ScopeRead),
		stored(t, analystKey, models.ScopeAnalyze),
		stored(t, adminKey, models.ScopeAdmin),
	}}
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ring),
		RateLimit: mw.NewRateLimit(nopCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

func call(router http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

var protectedRoutes = []struct {
	method, path, scope string
}{
	{http.MethodPost, "/api/v1/analysis", mw.ScopeAnalyze},
	{http.MethodDelete, "/api/v1/analysis", mw.ScopeAnalyze},
	{http.MethodGet, "/api/v1/analysis", mw.ScopeRead},
	{http.MethodGet, "/api/v1/analysis/results", mw.ScopeRead},
	{http.MethodGet, "/api/v1/analysis/stream", mw.ScopeRead},
	{http.MethodGet, "/api/v1/jobs/job-1", mw.ScopeRead},
	{http.MethodGet, "/api/v1/analyses", mw.ScopeRead},
	{http.MethodGet, "/api/v1/analyses/" + uuid.NewString(), mw.ScopeRead},
	{http.MethodPost, "/api/v1/admin/keys", mw.ScopeAdmin},
	{http.MethodGet, "/api/v1/admin/keys", mw.ScopeAdmin},
	{http.MethodDelete, "/api/v1/admin/keys/" + uuid.NewString(), mw.ScopeAdmin},
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	health := call(router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, health.Code)
	assert.NotEmpty(t, health.Header().Get(mw.RequestIDHeader))

	metrics := call(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "framecheck_http_request_duration_seconds")
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)
	for _, rt := range protectedRoutes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := call(router, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestRouter_ScopeGroups(t *testing.T) {
	router := newTestRouter(t)
	keys := map[string]string{
		mw.ScopeRead:    readerKey,
		mw.ScopeAnalyze: analystKey,
	}

	for _, rt := range protectedRoutes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			for scope, key := range keys {
				w := call(router, rt.method, rt.path, key)
				if scope == rt.scope {
					assert.Equal(t, http.StatusNotImplemented, w.Code, "scope %s", scope)
					assert.Equal(t, "NOT_IMPLEMENTED", errCode(t, w))
				} else {
					assert.Equal(t, http.StatusForbidden, w.Code, "scope %s", scope)
				}
			}

			w := call(router, rt.method, rt.path, adminKey)
			assert.Equal(t, http.StatusNotImplemented, w.Code, "admin reaches every route")
		})
	}
}

func TestRouter_RateLimitHeaders(t *testing.T) {
	w := call(newTestRouter(t), http.MethodGet, "/api/v1/analysis", readerKey)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_NotFound(t *testing.T) {
	w := call(newTestRouter(t), http.MethodGet, "/api/v1/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
