package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/framecheck/internal/detector"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// MockClient satisfies detector.Client for testing. Nil function fields
// fall back to harmless defaults. Calls are counted per method.
type MockClient struct {
	UploadFunc     func(ctx context.Context, file models.Upload) (string, error)
	GetStatusFunc  func(ctx context.Context, jobID string) (models.StatusReport, error)
	GetResultsFunc func(ctx context.Context, jobID string) (*models.JobResults, error)
	ReadyFunc      func(ctx context.Context) error

	mu          sync.Mutex
	uploads     int
	statusCalls int
	resultCalls int
}

func (m *MockClient) Upload(ctx context.Context, file models.Upload) (string, error) {
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, file)
	}
	return "mock-job", nil
}

func (m *MockClient) GetStatus(ctx context.Context, jobID string) (models.StatusReport, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, jobID)
	}
	return models.StatusReport{Status: models.ServiceStatusCompleted, Progress: 100}, nil
}

func (m *MockClient) GetResults(ctx context.Context, jobID string) (*models.JobResults, error) {
	m.mu.Lock()
	m.resultCalls++
	m.mu.Unlock()
	if m.GetResultsFunc != nil {
		return m.GetResultsFunc(ctx, jobID)
	}
	return &models.JobResults{FrameResults: []models.FrameDetection{}}, nil
}

func (m *MockClient) Ready(ctx context.Context) error {
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

// UploadCalls returns how many times Upload was called.
func (m *MockClient) UploadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// StatusCalls returns how many times GetStatus was called.
func (m *MockClient) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// ResultsCalls returns how many times GetResults was called.
func (m *MockClient) ResultsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resultCalls
}

// NewScriptedClient returns a MockClient that assigns jobID on upload,
// answers status polls with reports in order (repeating the last one once
// the script runs out) and returns results for GetResults.
func NewScriptedClient(jobID string, results *models.JobResults, reports ...models.StatusReport) *MockClient {
	var (
		mu   sync.Mutex
		next int
	)
	return &MockClient{
		UploadFunc: func(_ context.Context, _ models.Upload) (string, error) {
			return jobID, nil
		},
		GetStatusFunc: func(_ context.Context, _ string) (models.StatusReport, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(reports) == 0 {
				return models.StatusReport{Status: models.ServiceStatusCompleted, Progress: 100}, nil
			}
			r := reports[min(next, len(reports)-1)]
			next++
			return r, nil
		},
		GetResultsFunc: func(_ context.Context, _ string) (*models.JobResults, error) {
			return results, nil
		},
	}
}

// NewFailingClient returns a MockClient whose every call fails with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		UploadFunc: func(_ context.Context, _ models.Upload) (string, error) {
			return "", err
		},
		GetStatusFunc: func(_ context.Context, _ string) (models.StatusReport, error) {
			return models.StatusReport{}, err
		},
		GetResultsFunc: func(_ context.Context, _ string) (*models.JobResults, error) {
			return nil, err
		},
		ReadyFunc: func(_ context.Context) error {
			return err
		},
	}
}

// NewBlockingClient returns a MockClient whose upload blocks until the
// context is cancelled.
func NewBlockingClient() *MockClient {
	return &MockClient{
		UploadFunc: func(ctx context.Context, _ models.Upload) (string, error) {
			<-ctx.Done()
			return "", detector.ErrServiceTimeout
		},
	}
}

// Compile-time check that MockClient implements detector.Client.
var _ detector.Client = (*MockClient)(nil)
