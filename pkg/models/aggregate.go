package models

// AggregateView is everything derived from a job's frame sequence for display.
// It is recomputed on every results fetch and never mutated afterwards.
type AggregateView struct {
	OverallPrediction Verdict                           `json:"overall_prediction"`
	TotalFrames       int                               `json:"total_frames"`
	FakeCount         int                               `json:"fake_count"`
	RealCount         int                               `json:"real_count"`
	FakePercentage    float64                           `json:"fake_percentage"`
	ConfidenceLevel   string                            `json:"confidence_level"`
	AverageConfidence float64                           `json:"average_confidence"`
	MinConfidence     float64                           `json:"min_confidence"`
	MaxConfidence     float64                           `json:"max_confidence"`
	Histogram         [HistogramBuckets]HistogramBucket `json:"histogram"`
	Timeline          []TimelinePoint                   `json:"timeline"`
	Frames            FrameTable                        `json:"frames"`
	Video             VideoSummary                      `json:"video"`
}

// HistogramBuckets is the fixed number of confidence ranges.
const HistogramBuckets = 5

// SummaryStats holds confidence statistics over a frame sequence.
type SummaryStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Split is the real/fake frame classification count.
type Split struct {
	Real int `json:"real"`
	Fake int `json:"fake"`
}

// HistogramBucket is one confidence range and the number of frames in it.
type HistogramBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TimelinePoint is one frame on the confidence/verdict timeline.
// Confidence is a percentage; Verdict is 100 for Fake and 0 for Real so it
// can be drawn as a step function over the confidence line.
type TimelinePoint struct {
	Label            string  `json:"label"`
	TimestampSeconds float64 `json:"timestamp"`
	Confidence       float64 `json:"confidence"`
	Verdict          int     `json:"verdict"`
}

// FrameTable is the display-truncated frame list.
type FrameTable struct {
	Shown         []FrameRow `json:"shown"`
	OverflowCount int        `json:"overflow_count"`
}

// FrameRow is one row of the frame detail table.
type FrameRow struct {
	Number           int     `json:"number"`
	TimestampSeconds float64 `json:"timestamp"`
	Verdict          Verdict `json:"prediction"`
	Confidence       float64 `json:"confidence"`
	Probability      float64 `json:"probability"`
}

// VideoSummary carries the video properties with display-ready duration.
type VideoSummary struct {
	VideoInfo
	DurationLabel string `json:"duration_label"`
	URL           string `json:"url,omitempty"`
}
