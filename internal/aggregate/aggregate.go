// Package aggregate turns a completed job's frame detections into summary
// statistics, a confidence histogram, a timeline series and a display table.
//
// Every function here is pure: inputs are never modified and the same input
// always produces the same output.
package aggregate

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// DefaultDisplayLimit is the number of frames shown in the detail table.
const DefaultDisplayLimit = 20

// Confidence level labels derived from the fake percentage.
const (
	LevelHigh   = "High"
	LevelMedium = "Medium"
	LevelLow    = "Low"
)

var histogramLabels = [models.HistogramBuckets]string{
	"0-20%", "20-40%", "40-60%", "60-80%", "80-100%",
}

// Build computes the full AggregateView for a results payload.
// A nil payload or one without frames yields a zeroed but fully populated view.
func Build(results *models.JobResults) models.AggregateView {
	var payload models.JobResults
	if results != nil {
		payload = *results
	}
	frames := payload.FrameResults

	split := ClassificationSplit(frames, payload.RealFramesCount, payload.FakeFramesCount)

	total := len(frames)
	if payload.TotalFramesAnalyzed != nil && *payload.TotalFramesAnalyzed >= 0 {
		total = *payload.TotalFramesAnalyzed
	}

	fakePct := 0.0
	switch {
	case payload.FakePercentage != nil && isFinite(*payload.FakePercentage):
		fakePct = *payload.FakePercentage
	case total > 0:
		fakePct = float64(split.Fake) / float64(total) * 100
	}

	overall := payload.OverallPrediction
	if overall == "" {
		overall = models.VerdictReal
	}

	stats := SummaryStats(frames)

	return models.AggregateView{
		OverallPrediction: overall,
		TotalFrames:       total,
		FakeCount:         split.Fake,
		RealCount:         split.Real,
		FakePercentage:    fakePct,
		ConfidenceLevel:   ConfidenceLevel(fakePct),
		AverageConfidence: stats.Average,
		MinConfidence:     stats.Min,
		MaxConfidence:     stats.Max,
		Histogram:         Histogram(frames),
		Timeline:          Timeline(frames),
		Frames:            TruncateForDisplay(frames, DefaultDisplayLimit),
		Video: models.VideoSummary{
			VideoInfo:     payload.VideoInfo,
			DurationLabel: FormatDuration(payload.VideoInfo.DurationSeconds),
			URL:           payload.VideoURL,
		},
	}
}

// SummaryStats returns mean, min and max confidence. All are 0 for an empty sequence.
func SummaryStats(frames []models.FrameDetection) models.SummaryStats {
	if len(frames) == 0 {
		return models.SummaryStats{}
	}

	sum := 0.0
	lo, hi := frames[0].Confidence, frames[0].Confidence
	for _, f := range frames {
		sum += f.Confidence
		if f.Confidence < lo {
			lo = f.Confidence
		}
		if f.Confidence > hi {
			hi = f.Confidence
		}
	}

	return models.SummaryStats{
		Average: sum / float64(len(frames)),
		Min:     lo,
		Max:     hi,
	}
}

// Histogram buckets frames by confidence percentage into
// [0,20], (20,40], (40,60], (60,80], (80,100]. A value on a boundary belongs
// to the lower bucket.
func Histogram(frames []models.FrameDetection) [models.HistogramBuckets]models.HistogramBucket {
	var buckets [models.HistogramBuckets]models.HistogramBucket
	for i := range buckets {
		buckets[i].Label = histogramLabels[i]
	}
	for _, f := range frames {
		buckets[bucketIndex(f.Confidence*100)].Count++
	}
	return buckets
}

func bucketIndex(pct float64) int {
	switch {
	case pct <= 20:
		return 0
	case pct <= 40:
		return 1
	case pct <= 60:
		return 2
	case pct <= 80:
		return 3
	default:
		return 4
	}
}

// Timeline returns one point per frame, in input order.
func Timeline(frames []models.FrameDetection) []models.TimelinePoint {
	points := make([]models.TimelinePoint, 0, len(frames))
	for _, f := range frames {
		signal := 0
		if f.Verdict.IsFake() {
			signal = 100
		}
		points = append(points, models.TimelinePoint{
			Label:            fmt.Sprintf("%.1fs", f.TimestampSeconds),
			TimestampSeconds: f.TimestampSeconds,
			Confidence:       f.Confidence * 100,
			Verdict:          signal,
		})
	}
	return points
}

// ClassificationSplit prefers the counts supplied by the detection service.
// A count the service left out is derived from the frame verdicts.
func ClassificationSplit(frames []models.FrameDetection, fallbackReal, fallbackFake *int) models.Split {
	var derived models.Split
	if fallbackReal == nil || fallbackFake == nil {
		for _, f := range frames {
			if f.Verdict.IsFake() {
				derived.Fake++
			} else {
				derived.Real++
			}
		}
	}

	split := derived
	if fallbackReal != nil {
		split.Real = *fallbackReal
	}
	if fallbackFake != nil {
		split.Fake = *fallbackFake
	}
	return split
}

// TruncateForDisplay returns the first limit frames as table rows plus the
// number of frames left out. A non-positive limit means DefaultDisplayLimit.
func TruncateForDisplay(frames []models.FrameDetection, limit int) models.FrameTable {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	shown := min(len(frames), limit)
	rows := make([]models.FrameRow, 0, shown)
	for i, f := range frames[:shown] {
		number := i + 1
		if f.Index != nil {
			number = *f.Index + 1
		}
		rows = append(rows, models.FrameRow{
			Number:           number,
			TimestampSeconds: f.TimestampSeconds,
			Verdict:          f.Verdict,
			Confidence:       f.Confidence * 100,
			Probability:      f.Probability * 100,
		})
	}

	return models.FrameTable{
		Shown:         rows,
		OverflowCount: len(frames) - shown,
	}
}

// ConfidenceLevel labels how decisive a fake percentage is. Both extremes are
// decisive: a video that is 10% fake is as clear-cut as one that is 90% fake.
func ConfidenceLevel(fakePercentage float64) string {
	switch {
	case fakePercentage >= 80 || fakePercentage <= 20:
		return LevelHigh
	case fakePercentage >= 60 || fakePercentage <= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds float64) string {
	if !isFinite(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
