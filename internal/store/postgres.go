package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Analyses ---

const analysisSummaryColumns = `id, job_id, filename, checksum, size_bytes, overall_prediction, fake_percentage,
	total_frames, fake_frames, real_frames, average_confidence, confidence_level, flagged, archive_key, created_at`

func (s *PostgresStore) CreateAnalysis(ctx context.Context, r *models.AnalysisRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, job_id, filename, checksum, size_bytes, overall_prediction, fake_percentage,
		   total_frames, fake_frames, real_frames, average_confidence, confidence_level, flagged, archive_key, view, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.JobID, r.Filename, r.Checksum, r.SizeBytes, string(r.OverallPrediction), r.FakePercentage,
		r.TotalFrames, r.FakeFrames, r.RealFrames, r.AverageConfidence, r.ConfidenceLevel, r.Flagged,
		r.ArchiveKey, r.View, r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisSummaryColumns+`, view FROM analyses WHERE id = $1`, id)
	r, err := scanAnalysisWithView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetAnalysisByJobID(ctx context.Context, jobID string) (*models.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisSummaryColumns+`, view FROM analyses WHERE job_id = $1`, jobID)
	r, err := scanAnalysisWithView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis by job: %w", err)
	}
	return r, nil
}

// ListAnalyses returns one page of history, newest first, without the
// stored views, plus the total number of matching records.
func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.AnalysisRecord, int, error) {
	filter = filter.Normalize()

	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Prediction != "" {
		conditions = append(conditions, fmt.Sprintf("overall_prediction = $%d", argIdx))
		args = append(args, string(filter.Prediction))
		argIdx++
	}
	if filter.Flagged != nil {
		conditions = append(conditions, fmt.Sprintf("flagged = $%d", argIdx))
		args = append(args, *filter.Flagged)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analyses WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM analyses WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		analysisSummaryColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	records := []*models.AnalysisRecord{}
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

func scanAnalysis(row pgx.Row) (*models.AnalysisRecord, error) {
	var r models.AnalysisRecord
	var prediction string
	err := row.Scan(&r.ID, &r.JobID, &r.Filename, &r.Checksum, &r.SizeBytes, &prediction, &r.FakePercentage,
		&r.TotalFrames, &r.FakeFrames, &r.RealFrames, &r.AverageConfidence, &r.ConfidenceLevel, &r.Flagged,
		&r.ArchiveKey, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.OverallPrediction = models.Verdict(prediction)
	return &r, nil
}

func scanAnalysisWithView(row pgx.Row) (*models.AnalysisRecord, error) {
	var r models.AnalysisRecord
	var prediction string
	err := row.Scan(&r.ID, &r.JobID, &r.Filename, &r.Checksum, &r.SizeBytes, &prediction, &r.FakePercentage,
		&r.TotalFrames, &r.FakeFrames, &r.RealFrames, &r.AverageConfidence, &r.ConfidenceLevel, &r.Flagged,
		&r.ArchiveKey, &r.CreatedAt, &r.View)
	if err != nil {
		return nil, err
	}
	r.OverallPrediction = models.Verdict(prediction)
	return &r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
