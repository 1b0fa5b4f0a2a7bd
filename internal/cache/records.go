package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

var errSnapshotWithoutJob = errors.New("snapshot has no job id")

// PutJSON stores v under key as JSON.
func PutJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// GetJSON decodes the value under key into v and reports whether it was
// present. An undecodable value is treated as a miss and removed.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// PutSnapshot mirrors a job's latest snapshot under its job id.
func PutSnapshot(ctx context.Context, c Cache, snap models.Snapshot, ttl time.Duration) error {
	if snap.JobID == "" {
		return errSnapshotWithoutJob
	}
	return PutJSON(ctx, c, JobStatusKey(snap.JobID), snap, ttl)
}

// GetSnapshot returns the mirrored snapshot for jobID.
func GetSnapshot(ctx context.Context, c Cache, jobID string) (models.Snapshot, bool, error) {
	var snap models.Snapshot
	ok, err := GetJSON(ctx, c, JobStatusKey(jobID), &snap)
	return snap, ok, err
}

// PutAnalysis caches a recorded analysis under its id.
func PutAnalysis(ctx context.Context, c Cache, rec *models.AnalysisRecord, ttl time.Duration) error {
	return PutJSON(ctx, c, AnalysisKey(rec.ID), rec, ttl)
}

// GetAnalysis returns the cached analysis with the given id.
func GetAnalysis(ctx context.Context, c Cache, id uuid.UUID) (*models.AnalysisRecord, bool, error) {
	var rec models.AnalysisRecord
	ok, err := GetJSON(ctx, c, AnalysisKey(id), &rec)
	if !ok {
		return nil, false, err
	}
	return &rec, true, nil
}
