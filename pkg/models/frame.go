package models

import "strings"

// Verdict is the binary classification assigned to a frame or a whole video.
type Verdict string

const (
	VerdictReal Verdict = "Real"
	VerdictFake Verdict = "Fake"
)

// ParseVerdict maps a service-provided label to a Verdict.
// Anything that is not "fake" (case-insensitive) counts as Real.
func ParseVerdict(s string) Verdict {
	if strings.EqualFold(strings.TrimSpace(s), string(VerdictFake)) {
		return VerdictFake
	}
	return VerdictReal
}

// IsFake reports whether v is VerdictFake.
func (v Verdict) IsFake() bool {
	return v == VerdictFake
}

// FrameDetection is one frame's result within a completed job.
// Index may be absent, in which case the sequence position is used.
type FrameDetection struct {
	Index            *int    `json:"frame_number,omitempty"`
	TimestampSeconds float64 `json:"timestamp"`
	Verdict          Verdict `json:"prediction"`
	Confidence       float64 `json:"confidence"`
	Probability      float64 `json:"probability"`
}

// VideoInfo describes the analyzed video as reported by the detection service.
type VideoInfo struct {
	FPS             float64 `json:"fps"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration"`
	FrameCount      int     `json:"frame_count"`
}

// JobResults is the detection service's result payload for a completed job.
// Nil pointer fields mean the service did not supply that value.
type JobResults struct {
	OverallPrediction   Verdict          `json:"overall_prediction"`
	FakePercentage      *float64         `json:"fake_percentage,omitempty"`
	TotalFramesAnalyzed *int             `json:"total_frames_analyzed,omitempty"`
	FakeFramesCount     *int             `json:"fake_frames_count,omitempty"`
	RealFramesCount     *int             `json:"real_frames_count,omitempty"`
	VideoInfo           VideoInfo        `json:"video_info"`
	VideoURL            string           `json:"video_url,omitempty"`
	FrameResults        []FrameDetection `json:"frame_results"`
}

// Frames returns the frame sequence, or nil for a nil payload.
func (r *JobResults) Frames() []FrameDetection {
	if r == nil {
		return nil
	}
	return r.FrameResults
}
