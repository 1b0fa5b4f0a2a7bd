package controller

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/framecheck/internal/detector"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// Sentinel errors for job lifecycle failures.
var (
	ErrUpload       = errors.New("upload failed")
	ErrPoll         = errors.New("status check failed")
	ErrResultsFetch = errors.New("results fetch failed")
	ErrJobInFlight  = errors.New("a job is already in flight")
	ErrNotCompleted = errors.New("job has not completed")
	ErrJobReset     = errors.New("job was reset")
	ErrClosed       = errors.New("controller closed")
)

// Messages shown when the detection service gives no text of its own.
const (
	msgUploadFailed     = "Upload failed"
	msgStatusFailed     = "Status check failed"
	msgProcessingFailed = "Processing failed"
	msgResultsFailed    = "Failed to fetch results"
)

// JobError returns the error a snapshot represents: nil unless the job is
// errored, in which case the sentinel for its ErrorKind wrapped with the
// job's message.
func JobError(s models.Snapshot) error {
	if s.State != models.JobStateErrored {
		return nil
	}
	switch s.ErrorKind {
	case models.ErrorKindUpload:
		return fmt.Errorf("%w: %s", ErrUpload, s.ErrorMessage)
	case models.ErrorKindResultsFetch:
		return fmt.Errorf("%w: %s", ErrResultsFetch, s.ErrorMessage)
	default:
		return fmt.Errorf("%w: %s", ErrPoll, s.ErrorMessage)
	}
}

func errorMessage(err error, fallback string) string {
	if msg := detector.Message(err); msg != "" {
		return msg
	}
	return fallback
}
