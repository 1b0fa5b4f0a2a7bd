package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/framecheck/internal/cache"
	"github.com/kiranshivaraju/framecheck/internal/controller"
	"github.com/kiranshivaraju/framecheck/internal/detector/mock"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeSource struct {
	ch       chan models.Snapshot
	results  *models.JobResults
	err      error
	fetches  int
	fetched  []string
	mu       sync.Mutex
	unsubbed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan models.Snapshot, 16)}
}

func (s *fakeSource) Subscribe() (<-chan models.Snapshot, func()) {
	return s.ch, func() {
		s.mu.Lock()
		s.unsubbed = true
		s.mu.Unlock()
	}
}

func (s *fakeSource) FetchResults(_ context.Context, jobID string) (*models.JobResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	s.fetched = append(s.fetched, jobID)
	return s.results, s.err
}

type memStore struct {
	store.Store

	mu        sync.Mutex
	analyses  map[string]*models.AnalysisRecord
	createErr error
}

func newMemStore() *memStore {
	return &memStore{analyses: make(map[string]*models.AnalysisRecord)}
}

func (s *memStore) CreateAnalysis(_ context.Context, r *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.analyses[r.JobID]; ok {
		return store.ErrDuplicateKey
	}
	s.analyses[r.JobID] = r
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}

func (s *memStore) get(jobID string) *models.AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[jobID]
}

type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*memCache)(nil)

func intPtr(i int) *int { return &i }

func sampleResults() *models.JobResults {
	return &models.JobResults{
		OverallPrediction:   models.VerdictFake,
		TotalFramesAnalyzed: intPtr(4),
		FrameResults: []models.FrameDetection{
			{TimestampSeconds: 0, Verdict: models.VerdictFake, Confidence: 0.9},
			{TimestampSeconds: 1, Verdict: models.VerdictFake, Confidence: 0.8},
			{TimestampSeconds: 2, Verdict: models.VerdictFake, Confidence: 0.7},
			{TimestampSeconds: 3, Verdict: models.VerdictReal, Confidence: 0.6},
		},
	}
}

func completed(jobID string) models.Snapshot {
	return models.Snapshot{
		JobID:      jobID,
		State:      models.JobStateCompleted,
		Progress:   100,
		Filename:   "clip.mp4",
		SizeBytes:  2048,
		Checksum:   "abc123",
		ArchiveKey: "uploads/abc123.mp4",
	}
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestRecorder_RecordsCompletedJob(t *testing.T) {
	src := newFakeSource()
	src.results = sampleResults()
	st, ca := newMemStore(), newMemCache()
	r := New(src, st, ca, 0.6)

	r.handle(context.Background(), completed("job-1"))

	rec := st.get("job-1")
	require.NotNil(t, rec)
	assert.Equal(t, "clip.mp4", rec.Filename)
	assert.Equal(t, "abc123", rec.Checksum)
	assert.Equal(t, models.VerdictFake, rec.OverallPrediction)
	assert.Equal(t, 4, rec.TotalFrames)
	assert.Equal(t, 3, rec.FakeFrames)
	assert.Equal(t, 1, rec.RealFrames)
	assert.Equal(t, 75.0, rec.FakePercentage)
	assert.True(t, rec.Flagged)
	require.NotNil(t, rec.ArchiveKey)
	assert.Equal(t, "uploads/abc123.mp4", *rec.ArchiveKey)

	// The record is cached under the analysis id.
	cached, ok, err := cache.GetAnalysis(context.Background(), ca, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.ID, cached.ID)
	assert.Equal(t, rec.View.TotalFrames, cached.View.TotalFrames)

	// And the status is mirrored.
	snap, ok, err := cache.GetSnapshot(context.Background(), ca, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.JobStateCompleted, snap.State)
}

func TestRecorder_RecordsOncePerJob(t *testing.T) {
	src := newFakeSource()
	src.results = sampleResults()
	st := newMemStore()
	r := New(src, st, newMemCache(), 0.6)

	for i := 0; i < 3; i++ {
		r.handle(context.Background(), completed("job-1"))
	}

	assert.Equal(t, 1, st.count())
	assert.Equal(t, 1, src.fetches)
	assert.Equal(t, []string{"job-1"}, src.fetched)
}

func TestRecorder_DuplicateInStoreCountsAsRecorded(t *testing.T) {
	src := newFakeSource()
	src.results = sampleResults()
	st := newMemStore()
	st.createErr = store.ErrDuplicateKey
	r := New(src, st, newMemCache(), 0.6)

	r.handle(context.Background(), completed("job-1"))
	r.handle(context.Background(), completed("job-1"))

	assert.Equal(t, 1, src.fetches)
}

func TestRecorder_FetchFailureRetriesOnNextSnapshot(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("boom")
	st := newMemStore()
	r := New(src, st, newMemCache(), 0.6)

	r.handle(context.Background(), completed("job-1"))
	assert.Equal(t, 0, st.count())

	src.mu.Lock()
	src.err = nil
	src.results = sampleResults()
	src.mu.Unlock()

	r.handle(context.Background(), completed("job-1"))
	assert.Equal(t, 1, st.count())
}

func TestRecorder_IgnoresNonTerminalAndIdle(t *testing.T) {
	src := newFakeSource()
	st, ca := newMemStore(), newMemCache()
	r := New(src, st, ca, 0.6)

	r.handle(context.Background(), models.IdleSnapshot())
	r.handle(context.Background(), models.Snapshot{State: models.JobStateUploading, Filename: "clip.mp4"})
	r.handle(context.Background(), models.Snapshot{JobID: "job-2", State: models.JobStateProcessing, Progress: 40})
	r.handle(context.Background(), models.Snapshot{JobID: "job-2", State: models.JobStateErrored, ErrorKind: models.ErrorKindPoll})

	assert.Equal(t, 0, st.count())
	assert.Equal(t, 0, src.fetches)

	snap, ok, err := cache.GetSnapshot(context.Background(), ca, "job-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.JobStateErrored, snap.State)
}

func TestNewRecord_FlagThreshold(t *testing.T) {
	tests := []struct {
		name      string
		fakePct   float64
		threshold float64
		want      bool
	}{
		{"below", 59.9, 0.6, false},
		{"at threshold", 60, 0.6, true},
		{"above", 99, 0.6, true},
		{"custom threshold", 30, 0.25, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(completed("j"), models.AggregateView{FakePercentage: tt.fakePct}, tt.threshold, time.Now())
			assert.Equal(t, tt.want, rec.Flagged)
			assert.NotEqual(t, uuid.Nil, rec.ID)
		})
	}
}

func TestNewRecord_NoArchiveKey(t *testing.T) {
	snap := completed("j")
	snap.ArchiveKey = ""
	rec := NewRecord(snap, models.AggregateView{}, 0.6, time.Now())
	assert.Nil(t, rec.ArchiveKey)
}

func TestNew_ThresholdFallback(t *testing.T) {
	assert.Equal(t, DefaultFlagThreshold, New(nil, nil, nil, 0).threshold)
	assert.Equal(t, DefaultFlagThreshold, New(nil, nil, nil, 1.5).threshold)
	assert.Equal(t, 0.9, New(nil, nil, nil, 0.9).threshold)
}

func TestRecorder_RunStopsWhenSubscriptionCloses(t *testing.T) {
	src := newFakeSource()
	r := New(src, newMemStore(), newMemCache(), 0.6)

	close(src.ch)
	require.NoError(t, r.Run(context.Background()))

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.True(t, src.unsubbed)
}

func TestRecorder_RunStopsOnCancel(t *testing.T) {
	src := newFakeSource()
	r := New(src, newMemStore(), newMemCache(), 0.6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestRecorder_WithController(t *testing.T) {
	svc := mock.NewScriptedClient("job-e2e", sampleResults(),
		models.StatusReport{Status: models.ServiceStatusProcessing, Progress: 50},
		models.StatusReport{Status: models.ServiceStatusCompleted, Progress: 100},
	)
	ctrl := controller.New(svc, controller.WithPollInterval(5*time.Millisecond))
	t.Cleanup(ctrl.Close)

	st := newMemStore()
	r := New(ctrl, st, newMemCache(), 0.6)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, ctrl.Submit(models.Upload{
		Filename: "clip.mp4",
		Size:     5,
		Checksum: "abc123",
		Body:     strings.NewReader("video"),
	}))

	require.Eventually(t, func() bool {
		return st.get("job-e2e") != nil
	}, 5*time.Second, 10*time.Millisecond)

	rec := st.get("job-e2e")
	assert.Equal(t, models.VerdictFake, rec.OverallPrediction)
	assert.Equal(t, 1, svc.ResultsCalls())

	// A later results request is served from the same fetch.
	_, err := ctrl.FetchResults(context.Background(), "job-e2e")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ResultsCalls())
}

func TestRecorder_SkipsJobReplacedBeforeRecording(t *testing.T) {
	realResults := &models.JobResults{
		OverallPrediction: models.VerdictReal,
		FrameResults:      []models.FrameDetection{{Verdict: models.VerdictReal, Confidence: 0.9}},
	}
	fakeResults := &models.JobResults{
		OverallPrediction: models.VerdictFake,
		FrameResults: []models.FrameDetection{
			{Verdict: models.VerdictFake, Confidence: 0.9},
			{Verdict: models.VerdictFake, Confidence: 0.8},
		},
	}
	ids := []string{"job-a", "job-b"}
	var uploads int
	svc := mock.NewScriptedClient("", nil)
	svc.UploadFunc = func(_ context.Context, _ models.Upload) (string, error) {
		id := ids[uploads]
		uploads++
		return id, nil
	}
	svc.GetResultsFunc = func(_ context.Context, jobID string) (*models.JobResults, error) {
		if jobID == "job-a" {
			return realResults, nil
		}
		return fakeResults, nil
	}
	ctrl := controller.New(svc, controller.WithPollInterval(5*time.Millisecond))
	t.Cleanup(ctrl.Close)

	submit := func(name string) models.Snapshot {
		require.NoError(t, ctrl.Submit(models.Upload{Filename: name, Body: strings.NewReader("video")}))
		snap, err := ctrl.Wait(context.Background())
		require.NoError(t, err)
		return snap
	}

	snapA := submit("a.mp4")
	ctrl.Reset()
	submit("b.mp4")

	st := newMemStore()
	r := New(ctrl, st, newMemCache(), 0.6)
	r.handle(context.Background(), snapA)

	assert.Nil(t, st.get("job-a"))
	assert.Equal(t, 0, svc.ResultsCalls())

	r.handle(context.Background(), ctrl.Snapshot())
	rec := st.get("job-b")
	require.NotNil(t, rec)
	assert.Equal(t, "b.mp4", rec.Filename)
	assert.Equal(t, models.VerdictFake, rec.OverallPrediction)
	assert.Equal(t, 2, rec.TotalFrames)
}
