package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord is the persisted history entry for a completed job.
type AnalysisRecord struct {
	ID                uuid.UUID     `db:"id"                 json:"id"`
	JobID             string        `db:"job_id"             json:"job_id"`
	Filename          string        `db:"filename"           json:"filename"`
	Checksum          string        `db:"checksum"           json:"checksum"`
	SizeBytes         int64         `db:"size_bytes"         json:"size_bytes"`
	OverallPrediction Verdict       `db:"overall_prediction" json:"overall_prediction"`
	FakePercentage    float64       `db:"fake_percentage"    json:"fake_percentage"`
	TotalFrames       int           `db:"total_frames"       json:"total_frames"`
	FakeFrames        int           `db:"fake_frames"        json:"fake_frames"`
	RealFrames        int           `db:"real_frames"        json:"real_frames"`
	AverageConfidence float64       `db:"average_confidence" json:"average_confidence"`
	ConfidenceLevel   string        `db:"confidence_level"   json:"confidence_level"`
	Flagged           bool          `db:"flagged"            json:"flagged"`
	ArchiveKey        *string       `db:"archive_key"        json:"archive_key,omitempty"`
	View              AggregateView `db:"view"               json:"view"`
	CreatedAt         time.Time     `db:"created_at"         json:"created_at"`
}
