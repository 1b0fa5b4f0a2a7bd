package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/framecheck/internal/config"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// startPostgres runs a throwaway Postgres with the schema applied and
// returns a pool opened through Connect.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("framecheck_test"),
		postgres.WithUsername("framecheck"),
		postgres.WithPassword("framecheck"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(dsn, migrationsDir()))
	// Applying twice is a no-op.
	require.NoError(t, store.RunMigrations(dsn, migrationsDir()))

	pool, err := store.Connect(ctx, config.DatabaseConfig{URL: dsn, MaxOpenConns: 4, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE api_keys, analyses`)
	require.NoError(t, err)
}

func testKey(name, prefix string, at time.Time) *models.APIKey {
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   "$2a$10$" + name,
		KeyPrefix: prefix,
		Scopes:    []string{models.ScopeAnalyze, models.ScopeRead},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func testRecord(jobID string, verdict models.Verdict, fakePct float64, flagged bool, at time.Time) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		ID:                uuid.New(),
		JobID:             jobID,
		Filename:          jobID + ".mp4",
		Checksum:          "sha256-" + jobID,
		SizeBytes:         4096,
		OverallPrediction: verdict,
		FakePercentage:    fakePct,
		TotalFrames:       4,
		FakeFrames:        2,
		RealFrames:        2,
		AverageConfidence: 0.7,
		ConfidenceLevel:   "Medium",
		Flagged:           flagged,
		View: models.AggregateView{
			OverallPrediction: verdict,
			TotalFrames:       4,
			FakeCount:         2,
			RealCount:         2,
			FakePercentage:    fakePct,
			ConfidenceLevel:   "Medium",
			AverageConfidence: 0.7,
			Timeline:          []models.TimelinePoint{{Label: "F1", Confidence: 70, Verdict: 100}},
			Frames: models.FrameTable{
				Shown: []models.FrameRow{{Number: 1, Verdict: models.VerdictFake, Confidence: 70}},
			},
		},
		CreatedAt: at,
	}
}

func jobIDs(records []*models.AnalysisRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.JobID)
	}
	return ids
}

// TestPostgresStore shares one container across every store test.
func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := startPostgres(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("api key lifecycle", func(t *testing.T) {
		truncate(t, pool)
		key := testKey("ci", "fc_ci001", now)
		require.NoError(t, s.CreateAPIKey(ctx, key))

		found, err := s.GetAPIKeyByPrefix(ctx, "fc_ci001")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, key.ID, found[0].ID)
		assert.Equal(t, key.KeyHash, found[0].KeyHash)
		assert.Equal(t, key.Scopes, found[0].Scopes)
		assert.Nil(t, found[0].LastUsedAt)

		require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
		found, err = s.GetAPIKeyByPrefix(ctx, "fc_ci001")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.NotNil(t, found[0].LastUsedAt)

		require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
		found, err = s.GetAPIKeyByPrefix(ctx, "fc_ci001")
		require.NoError(t, err)
		assert.Empty(t, found)

		listed, err := s.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, listed)

		assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
		assert.ErrorIs(t, s.RevokeAPIKey(ctx, uuid.New()), store.ErrNotFound)
	})

	t.Run("api keys listed newest first", func(t *testing.T) {
		truncate(t, pool)
		for i, name := range []string{"first", "second", "third"} {
			key := testKey(name, "fc_list"+string(rune('a'+i)), now.Add(time.Duration(i)*time.Second))
			require.NoError(t, s.CreateAPIKey(ctx, key))
		}

		keys, err := s.ListAPIKeys(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 3)
		assert.Equal(t, "third", keys[0].Name)
		assert.Equal(t, "first", keys[2].Name)
	})

	t.Run("api key duplicate id", func(t *testing.T) {
		truncate(t, pool)
		key := testKey("one", "fc_dupaa", now)
		require.NoError(t, s.CreateAPIKey(ctx, key))

		clash := testKey("two", "fc_dupbb", now)
		clash.ID = key.ID
		assert.ErrorIs(t, s.CreateAPIKey(ctx, clash), store.ErrDuplicateKey)
	})

	t.Run("analysis round trip", func(t *testing.T) {
		truncate(t, pool)
		rec := testRecord("job-1", models.VerdictFake, 50, false, now)
		archiveKey := "uploads/ab/abcdef.mp4"
		rec.ArchiveKey = &archiveKey
		require.NoError(t, s.CreateAnalysis(ctx, rec))

		got, err := s.GetAnalysis(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.JobID, got.JobID)
		assert.Equal(t, models.VerdictFake, got.OverallPrediction)
		assert.Equal(t, 50.0, got.FakePercentage)
		require.NotNil(t, got.ArchiveKey)
		assert.Equal(t, archiveKey, *got.ArchiveKey)
		assert.Equal(t, rec.View.Timeline, got.View.Timeline)
		assert.Equal(t, rec.View.Frames, got.View.Frames)
		assert.True(t, now.Equal(got.CreatedAt))

		byJob, err := s.GetAnalysisByJobID(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byJob.ID)

		dup := testRecord("job-1", models.VerdictReal, 0, false, now)
		assert.ErrorIs(t, s.CreateAnalysis(ctx, dup), store.ErrDuplicateKey)
	})

	t.Run("analysis not found", func(t *testing.T) {
		truncate(t, pool)
		_, err := s.GetAnalysis(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetAnalysisByJobID(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("history filters", func(t *testing.T) {
		truncate(t, pool)
		base := now.Add(-time.Hour)
		require.NoError(t, s.CreateAnalysis(ctx, testRecord("old-real", models.VerdictReal, 10, false, base)))
		require.NoError(t, s.CreateAnalysis(ctx, testRecord("mid-fake", models.VerdictFake, 80, true, base.Add(10*time.Minute))))
		require.NoError(t, s.CreateAnalysis(ctx, testRecord("new-fake", models.VerdictFake, 55, false, base.Add(20*time.Minute))))

		flagged := true
		tests := []struct {
			name   string
			filter store.AnalysisFilter
			want   []string
		}{
			{"everything newest first", store.AnalysisFilter{}, []string{"new-fake", "mid-fake", "old-real"}},
			{"fake only", store.AnalysisFilter{Prediction: models.VerdictFake}, []string{"new-fake", "mid-fake"}},
			{"flagged", store.AnalysisFilter{Flagged: &flagged}, []string{"mid-fake"}},
			{"since", store.AnalysisFilter{Since: base.Add(5 * time.Minute)}, []string{"new-fake", "mid-fake"}},
			{"no match", store.AnalysisFilter{Prediction: models.VerdictReal, Flagged: &flagged}, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				records, total, err := s.ListAnalyses(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, len(tt.want), total)
				assert.Equal(t, tt.want, jobIDs(records))
				for _, r := range records {
					assert.Empty(t, r.View.Timeline, "listings leave the view out")
				}
			})
		}
	})

	t.Run("history pages", func(t *testing.T) {
		truncate(t, pool)
		for i := range 5 {
			rec := testRecord(uuid.NewString(), models.VerdictReal, 0, false, now.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.CreateAnalysis(ctx, rec))
		}

		pages := []struct {
			page, size int
		}{{1, 2}, {2, 2}, {3, 1}, {9, 0}}
		for _, p := range pages {
			records, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Page: p.page, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, 5, total)
			assert.Len(t, records, p.size, "page %d", p.page)
		}
	})
}

func TestAnalysisFilter_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		in        store.AnalysisFilter
		wantPage  int
		wantLimit int
	}{
		{"zero values", store.AnalysisFilter{}, 1, store.DefaultPageLimit},
		{"negative", store.AnalysisFilter{Page: -2, Limit: -5}, 1, store.DefaultPageLimit},
		{"over max", store.AnalysisFilter{Page: 3, Limit: 500}, 3, store.MaxPageLimit},
		{"in range", store.AnalysisFilter{Page: 2, Limit: 50}, 2, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantLimit, got.Limit)
		})
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := store.Connect(context.Background(), config.DatabaseConfig{URL: "::not a dsn::"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database URL")
}
