// Package models contains shared data models used across the framecheck codebase.
package models

import (
	"io"
	"time"
)

// JobState is the lifecycle stage of an analysis job as seen by the controller.
type JobState string

const (
	JobStateIdle       JobState = "idle"
	JobStateUploading  JobState = "uploading"
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateErrored    JobState = "errored"
)

// IsTerminal reports whether no further transition can happen without a reset.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateErrored
}

// IsActive reports whether the job still has an upload or poll loop running.
func (s JobState) IsActive() bool {
	return s == JobStateUploading || s == JobStateQueued || s == JobStateProcessing
}

// ErrorKind classifies why a job ended in JobStateErrored.
type ErrorKind string

const (
	ErrorKindUpload       ErrorKind = "upload"
	ErrorKindPoll         ErrorKind = "poll"
	ErrorKindResultsFetch ErrorKind = "results_fetch"
)

// Status values reported by the detection service.
const (
	ServiceStatusQueued     = "queued"
	ServiceStatusProcessing = "processing"
	ServiceStatusCompleted  = "completed"
	ServiceStatusError      = "error"
)

// Job is one end-to-end analysis request. It is owned by the controller;
// everybody else sees it through Snapshot.
type Job struct {
	ID           string
	State        JobState
	Progress     int
	Filename     string
	SizeBytes    int64
	Checksum     string
	ArchiveKey   string
	ErrorKind    ErrorKind
	ErrorMessage string
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// ApplyProgress folds a reported progress value into the job.
// Progress never decreases: the stored value is max(current, observed), with
// observed clamped into [0, 100] first. Returns false if the report was lower
// than what the job had already seen.
func (j *Job) ApplyProgress(observed int) bool {
	if observed < 0 {
		observed = 0
	}
	if observed > 100 {
		observed = 100
	}
	if observed < j.Progress {
		return false
	}
	j.Progress = observed
	return true
}

// Snapshot returns the read-only view published to observers.
func (j *Job) Snapshot() Snapshot {
	if j == nil {
		return IdleSnapshot()
	}
	return Snapshot{
		JobID:        j.ID,
		State:        j.State,
		Progress:     j.Progress,
		Filename:     j.Filename,
		SizeBytes:    j.SizeBytes,
		Checksum:     j.Checksum,
		ArchiveKey:   j.ArchiveKey,
		ErrorKind:    j.ErrorKind,
		ErrorMessage: j.ErrorMessage,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Snapshot is the state published on every controller transition.
type Snapshot struct {
	JobID        string    `json:"job_id,omitempty"`
	State        JobState  `json:"state"`
	Progress     int       `json:"progress"`
	Filename     string    `json:"filename,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// IdleSnapshot is what observers see when there is no job.
func IdleSnapshot() Snapshot {
	return Snapshot{State: JobStateIdle}
}

// Upload is a file that already passed validation and is ready to be sent
// to the detection service. Body is read exactly once.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Checksum    string
	ArchiveKey  string
	Body        io.Reader
}

// StatusReport is one answer from the detection service's status endpoint.
type StatusReport struct {
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error,omitempty"`
}
