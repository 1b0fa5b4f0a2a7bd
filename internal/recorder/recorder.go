// Package recorder follows the controller's snapshot stream, mirrors job
// status into the cache and writes every completed job to analysis history.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/framecheck/internal/aggregate"
	"github.com/kiranshivaraju/framecheck/internal/cache"
	"github.com/kiranshivaraju/framecheck/internal/controller"
	"github.com/kiranshivaraju/framecheck/internal/observability"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

const (
	// StatusTTL bounds how long a mirrored job status outlives the job.
	StatusTTL = 30 * time.Minute
	// AnalysisTTL bounds how long a recorded analysis stays cached.
	AnalysisTTL = time.Hour

	// DefaultFlagThreshold is the fake ratio at or above which an analysis is flagged.
	DefaultFlagThreshold = 0.6

	recordTimeout = 2 * time.Minute
)

// Source is the part of the controller the recorder depends on.
type Source interface {
	Subscribe() (<-chan models.Snapshot, func())
	FetchResults(ctx context.Context, jobID string) (*models.JobResults, error)
}

// Recorder persists completed analyses. Run it on its own goroutine.
type Recorder struct {
	src       Source
	store     store.Store
	cache     cache.Cache
	threshold float64
	now       func() time.Time

	lastRecorded string
}

// New creates a Recorder. A threshold outside (0, 1] falls back to DefaultFlagThreshold.
func New(src Source, st store.Store, ca cache.Cache, threshold float64) *Recorder {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFlagThreshold
	}
	return &Recorder{
		src:       src,
		store:     st,
		cache:     ca,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run consumes snapshots until ctx is cancelled or the subscription closes.
func (r *Recorder) Run(ctx context.Context) error {
	ch, unsubscribe := r.src.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, snap)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, snap models.Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in recorder", "error", rec, "job_id", snap.JobID)
		}
	}()

	if snap.JobID == "" {
		return
	}

	r.mirrorStatus(ctx, snap)

	if snap.State != models.JobStateCompleted || snap.JobID == r.lastRecorded {
		return
	}

	recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	rec, err := r.record(recordCtx, snap)
	switch {
	case err == nil:
		r.lastRecorded = snap.JobID
		slog.Info("analysis recorded", "job_id", snap.JobID, "analysis_id", rec.ID,
			"prediction", rec.OverallPrediction, "flagged", rec.Flagged)
	case errors.Is(err, store.ErrDuplicateKey):
		r.lastRecorded = snap.JobID
		slog.Debug("analysis already recorded", "job_id", snap.JobID)
	case errors.Is(err, controller.ErrJobReset):
		slog.Info("job reset before its results were recorded", "job_id", snap.JobID)
	default:
		slog.Warn("failed to record analysis", "job_id", snap.JobID, "error", err)
	}
}

func (r *Recorder) mirrorStatus(ctx context.Context, snap models.Snapshot) {
	if err := cache.PutSnapshot(ctx, r.cache, snap, StatusTTL); err != nil {
		slog.Warn("failed to mirror job status", "job_id", snap.JobID, "error", err)
	}
}

// record fetches the job's results, aggregates them and stores the history row.
func (r *Recorder) record(ctx context.Context, snap models.Snapshot) (*models.AnalysisRecord, error) {
	results, err := r.src.FetchResults(ctx, snap.JobID)
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}

	rec := NewRecord(snap, aggregate.Build(results), r.threshold, r.now().UTC())
	if err := r.store.CreateAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating analysis: %w", err)
	}

	observability.AnalysesRecorded.WithLabelValues(string(rec.OverallPrediction)).Inc()

	if err := cache.PutAnalysis(ctx, r.cache, rec, AnalysisTTL); err != nil {
		slog.Warn("failed to cache analysis", "analysis_id", rec.ID, "error", err)
	}
	return rec, nil
}

// NewRecord builds the history row for a completed job.
func NewRecord(snap models.Snapshot, view models.AggregateView, threshold float64, now time.Time) *models.AnalysisRecord {
	rec := &models.AnalysisRecord{
		ID:                uuid.New(),
		JobID:             snap.JobID,
		Filename:          snap.Filename,
		Checksum:          snap.Checksum,
		SizeBytes:         snap.SizeBytes,
		OverallPrediction: view.OverallPrediction,
		FakePercentage:    view.FakePercentage,
		TotalFrames:       view.TotalFrames,
		FakeFrames:        view.FakeCount,
		RealFrames:        view.RealCount,
		AverageConfidence: view.AverageConfidence,
		ConfidenceLevel:   view.ConfidenceLevel,
		Flagged:           view.FakePercentage/100 >= threshold,
		View:              view,
		CreatedAt:         now,
	}
	if snap.ArchiveKey != "" {
		key := snap.ArchiveKey
		rec.ArchiveKey = &key
	}
	return rec
}
