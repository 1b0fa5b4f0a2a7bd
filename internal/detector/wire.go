package detector

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// The detection service is loose about numeric types: the same field may
// arrive as a JSON number, a numeric string, null, or not at all. These types
// accept all of those and never fail decoding; anything unparseable is
// treated as absent.

type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if data[0] == '"' {
		if json.Unmarshal(data, &s) != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	} else {
		s = string(data)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.value, f.set = v, true
	return nil
}

func (f flexFloat) float() float64 {
	return f.value
}

// int rounds to the nearest integer, saturating at the int32 range so that
// absurd values keep their sign.
func (f flexFloat) int() int {
	v := math.Round(f.value)
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func (f flexFloat) floatPtr() *float64 {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

func (f flexFloat) intPtr() *int {
	if !f.set {
		return nil
	}
	v := f.int()
	return &v
}

// flexString accepts a string or a bare number (job ids are sometimes numeric).
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	*s = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var v string
		if json.Unmarshal(data, &v) == nil {
			*s = flexString(strings.TrimSpace(v))
		}
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil {
		*s = flexString(data)
	}
	return nil
}

// --- Detection service response types ---

type uploadResponse struct {
	JobID flexString `json:"job_id"`
}

type statusResponse struct {
	Status   flexString `json:"status"`
	Progress flexFloat  `json:"progress"`
	Error    flexString `json:"error"`
	Message  flexString `json:"message"`
}

type resultsEnvelope struct {
	Results *wireResults `json:"results"`
}

type wireResults struct {
	OverallPrediction   flexString    `json:"overall_prediction"`
	FakePercentage      flexFloat     `json:"fake_percentage"`
	TotalFramesAnalyzed flexFloat     `json:"total_frames_analyzed"`
	FakeFramesCount     flexFloat     `json:"fake_frames_count"`
	RealFramesCount     flexFloat     `json:"real_frames_count"`
	VideoInfo           wireVideoInfo `json:"video_info"`
	VideoURL            flexString    `json:"video_url"`
	FrameResults        []wireFrame   `json:"frame_results"`
}

type wireVideoInfo struct {
	FPS        flexFloat `json:"fps"`
	Width      flexFloat `json:"width"`
	Height     flexFloat `json:"height"`
	Duration   flexFloat `json:"duration"`
	FrameCount flexFloat `json:"frame_count"`
}

type wireFrame struct {
	FrameNumber flexFloat  `json:"frame_number"`
	Timestamp   flexFloat  `json:"timestamp"`
	Prediction  flexString `json:"prediction"`
	Confidence  flexFloat  `json:"confidence"`
	Probability flexFloat  `json:"probability"`
}

func (s statusResponse) report() models.StatusReport {
	msg := string(s.Error)
	if msg == "" {
		msg = string(s.Message)
	}
	return models.StatusReport{
		Status:       strings.ToLower(string(s.Status)),
		Progress:     s.Progress.int(),
		ErrorMessage: msg,
	}
}

func (r *wireResults) toModel() *models.JobResults {
	frames := make([]models.FrameDetection, 0, len(r.FrameResults))
	for _, f := range r.FrameResults {
		frames = append(frames, models.FrameDetection{
			Index:            f.FrameNumber.intPtr(),
			TimestampSeconds: f.Timestamp.float(),
			Verdict:          models.ParseVerdict(string(f.Prediction)),
			Confidence:       f.Confidence.float(),
			Probability:      f.Probability.float(),
		})
	}

	var overall models.Verdict
	if r.OverallPrediction != "" {
		overall = models.ParseVerdict(string(r.OverallPrediction))
	}

	return &models.JobResults{
		OverallPrediction:   overall,
		FakePercentage:      r.FakePercentage.floatPtr(),
		TotalFramesAnalyzed: r.TotalFramesAnalyzed.intPtr(),
		FakeFramesCount:     r.FakeFramesCount.intPtr(),
		RealFramesCount:     r.RealFramesCount.intPtr(),
		VideoInfo: models.VideoInfo{
			FPS:             r.VideoInfo.FPS.float(),
			Width:           r.VideoInfo.Width.int(),
			Height:          r.VideoInfo.Height.int(),
			DurationSeconds: r.VideoInfo.Duration.float(),
			FrameCount:      r.VideoInfo.FrameCount.int(),
		},
		VideoURL:     string(r.VideoURL),
		FrameResults: frames,
	}
}
