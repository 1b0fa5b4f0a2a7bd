// Package controller drives one analysis job at a time through upload,
// status polling and results retrieval against the detection service.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/framecheck/internal/observability"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// DefaultPollInterval matches the detection service's expected polling cadence.
const DefaultPollInterval = 2 * time.Second

const defaultSubscriberBuffer = 64

// Service is the part of the detection service the controller depends on.
type Service interface {
	Upload(ctx context.Context, file models.Upload) (string, error)
	GetStatus(ctx context.Context, jobID string) (models.StatusReport, error)
	GetResults(ctx context.Context, jobID string) (*models.JobResults, error)
}

// Controller owns the current job. All state sits behind mu; every write
// made on behalf of a job checks that job's generation first, so responses
// that arrive after a Reset are dropped.
type Controller struct {
	svc       Service
	interval  time.Duration
	logger    *slog.Logger
	subBuffer int
	now       func() time.Time

	mu      sync.Mutex
	job     *models.Job
	gen     uint64
	jobCtx  context.Context
	cancel  context.CancelFunc
	fetch   *fetch
	last    models.JobState
	subs    map[int]chan models.Snapshot
	nextSub int
	closed  bool

	wg sync.WaitGroup
}

// fetch is the memoized results request for one job.
type fetch struct {
	done    chan struct{}
	results *models.JobResults
	err     error
}

// New creates a Controller in the idle state.
func New(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:       svc,
		interval:  DefaultPollInterval,
		logger:    slog.Default(),
		subBuffer: defaultSubscriberBuffer,
		now:       time.Now,
		subs:      make(map[int]chan models.Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts a new job for file. It is rejected with ErrJobInFlight while
// another job is uploading or being polled; a finished job is discarded.
// The Uploading snapshot is published before Submit returns.
func (c *Controller) Submit(file models.Upload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.job != nil && c.job.State.IsActive() {
		return ErrJobInFlight
	}

	c.discardLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.jobCtx, c.cancel = ctx, cancel

	now := c.now().UTC()
	c.job = &models.Job{
		State:       models.JobStateUploading,
		Filename:    file.Filename,
		SizeBytes:   file.Size,
		Checksum:    file.Checksum,
		ArchiveKey:  file.ArchiveKey,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	observability.JobsSubmitted.Inc()
	c.logger.Info("job submitted", "filename", file.Filename, "size_bytes", file.Size)
	c.publishLocked()

	c.wg.Add(1)
	go c.run(ctx, c.gen, file)
	return nil
}

// Reset cancels any in-flight work, discards the job and its results and
// returns the controller to idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.job != nil {
		c.logger.Info("job reset", "job_id", c.job.ID, "state", c.job.State)
	}
	c.discardLocked()
	c.publishLocked()
}

// Snapshot returns the current job view.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Snapshot()
}

// Subscribe returns a channel that receives the current snapshot followed by
// one snapshot per transition, and a function that ends the subscription.
// Sends never block the controller: a subscriber that falls a full buffer
// behind misses snapshots.
func (c *Controller) Subscribe() (<-chan models.Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan models.Snapshot, c.subBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.job.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until the current job finishes and returns its final snapshot.
// The error is nil for a completed job, JobError for an errored one and
// ErrJobReset if the job was discarded (or there was none).
func (c *Controller) Wait(ctx context.Context) (models.Snapshot, error) {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return models.IdleSnapshot(), ErrClosed
			}
			switch {
			case s.State.IsTerminal():
				return s, JobError(s)
			case s.State == models.JobStateIdle:
				return s, ErrJobReset
			}
		}
	}
}

// FetchResults returns the results of job jobID once it has completed. The
// detection service is asked once per job; concurrent and later callers
// share that answer. A failed fetch moves the job to errored. ErrJobReset
// is returned when jobID is no longer the current job.
func (c *Controller) FetchResults(ctx context.Context, jobID string) (*models.JobResults, error) {
	c.mu.Lock()
	if jobID != "" && (c.job == nil || c.job.ID != jobID) {
		c.mu.Unlock()
		return nil, ErrJobReset
	}
	f := c.fetch
	if f == nil {
		if c.job == nil || jobID == "" || c.job.State != models.JobStateCompleted {
			c.mu.Unlock()
			return nil, ErrNotCompleted
		}
		f = &fetch{done: make(chan struct{})}
		c.fetch = f
		c.wg.Add(1)
		go c.runFetch(c.jobCtx, c.gen, c.job.ID, f)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.results, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels any running job, ends all subscriptions and waits for the
// controller's goroutines to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.discardLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// run uploads the file and polls until the job reaches a terminal state or
// its context is cancelled. Polls never overlap: the next one is scheduled
// only after the previous answer has been applied.
func (c *Controller) run(ctx context.Context, gen uint64, file models.Upload) {
	defer c.wg.Done()

	jobID, err := c.svc.Upload(ctx, file)
	if err != nil {
		c.update(gen, func(j *models.Job) bool {
			c.failLocked(j, models.ErrorKindUpload, errorMessage(err, msgUploadFailed))
			c.logger.Warn("upload failed", "filename", j.Filename, "error", err)
			return true
		})
		return
	}

	ok := c.update(gen, func(j *models.Job) bool {
		j.ID = jobID
		j.State = models.JobStateQueued
		c.logger.Info("job queued", "job_id", jobID)
		return true
	})
	if !ok {
		return
	}

	timer := time.NewTimer(c.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		report, err := c.svc.GetStatus(ctx, jobID)
		if !c.applyStatus(gen, report, err) {
			return
		}

		timer.Reset(c.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// applyStatus folds one poll answer into the job. It reports whether
// polling should continue.
func (c *Controller) applyStatus(gen uint64, report models.StatusReport, pollErr error) bool {
	keepPolling := false
	c.update(gen, func(j *models.Job) bool {
		if pollErr != nil {
			observability.StatusPolls.WithLabelValues("error").Inc()
			c.failLocked(j, models.ErrorKindPoll, errorMessage(pollErr, msgStatusFailed))
			c.logger.Warn("status check failed", "job_id", j.ID, "error", pollErr)
			return true
		}

		observability.StatusPolls.WithLabelValues(report.Status).Inc()

		switch report.Status {
		case models.ServiceStatusQueued, models.ServiceStatusProcessing:
			keepPolling = true
			prev := j.Progress
			if !j.ApplyProgress(report.Progress) {
				observability.ProgressRegressions.Inc()
				c.logger.Debug("ignored progress regression", "job_id", j.ID, "progress", j.Progress, "reported", report.Progress)
			}
			if j.State == models.JobStateProcessing && j.Progress == prev {
				return false
			}
			j.State = models.JobStateProcessing
			return true

		case models.ServiceStatusCompleted:
			j.ApplyProgress(100)
			j.State = models.JobStateCompleted
			c.logger.Info("job completed", "job_id", j.ID)
			return true

		case models.ServiceStatusError:
			msg := report.ErrorMessage
			if msg == "" {
				msg = msgProcessingFailed
			}
			c.failLocked(j, models.ErrorKindPoll, msg)
			c.logger.Warn("job failed", "job_id", j.ID, "error", msg)
			return true

		default:
			c.failLocked(j, models.ErrorKindPoll, fmt.Sprintf("Unknown job status %q", report.Status))
			c.logger.Warn("unknown job status", "job_id", j.ID, "status", report.Status)
			return true
		}
	})
	return keepPolling
}

func (c *Controller) runFetch(ctx context.Context, gen uint64, jobID string, f *fetch) {
	defer c.wg.Done()
	defer close(f.done)

	results, err := c.svc.GetResults(ctx, jobID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.job == nil {
		f.err = ErrJobReset
		return
	}
	if err != nil {
		msg := errorMessage(err, msgResultsFailed)
		f.err = fmt.Errorf("%w: %s", ErrResultsFetch, msg)
		c.failLocked(c.job, models.ErrorKindResultsFetch, msg)
		c.logger.Warn("results fetch failed", "job_id", jobID, "error", err)
		c.touchLocked()
		c.publishLocked()
		return
	}
	if results == nil {
		results = &models.JobResults{}
	}
	f.results = results
}

// update applies fn to the job if gen is still current. fn returns whether
// anything changed; changes are timestamped and published. update reports
// whether the generation was current.
func (c *Controller) update(gen uint64, fn func(j *models.Job) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.job == nil {
		return false
	}
	if fn(c.job) {
		c.touchLocked()
		c.publishLocked()
	}
	return true
}

func (c *Controller) failLocked(j *models.Job, kind models.ErrorKind, msg string) {
	j.State = models.JobStateErrored
	j.ErrorKind = kind
	j.ErrorMessage = msg
}

func (c *Controller) touchLocked() {
	c.job.UpdatedAt = c.now().UTC()
}

// discardLocked cancels the current job's context and invalidates its
// generation so nothing started for it can write again.
func (c *Controller) discardLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.jobCtx = nil
	c.gen++
	c.job = nil
	c.fetch = nil
}

func (c *Controller) publishLocked() {
	snap := c.job.Snapshot()

	if snap.State != c.last {
		observability.JobTransitions.WithLabelValues(string(snap.State)).Inc()
		c.last = snap.State
	}
	observability.JobProgress.Set(float64(snap.Progress))

	for id, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			c.logger.Warn("subscriber too slow, snapshot dropped", "subscriber", id, "state", snap.State)
		}
	}
}
