package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/framecheck/internal/aggregate"
	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/archive"
	"github.com/kiranshivaraju/framecheck/internal/controller"
	"github.com/kiranshivaraju/framecheck/internal/validate"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// multipartOverhead is the slack allowed on top of the file size for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// maxMemory is how much of a multipart body is kept in memory before
// spilling to a temporary file.
const maxMemory = 32 << 20

// JobController is the part of the controller the analysis handlers use.
type JobController interface {
	Submit(file models.Upload) error
	Snapshot() models.Snapshot
	Reset()
	FetchResults(ctx context.Context, jobID string) (*models.JobResults, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/analysis.
// The upload is validated, checksummed and optionally archived before the
// controller sees it. arch may be nil.
func NewSubmitHandler(ctrl JobController, v *validate.Validator, arch archive.Archiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, v.MaxBytes+multipartOverhead)

		if err := r.ParseMultipartForm(maxMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				invalidFile(w, v.TooLarge())
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request must be multipart/form-data with a file field", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			invalidFile(w, v.Check("", 0))
			return
		}
		defer file.Close()

		if err := v.Check(header.Filename, header.Size); err != nil {
			invalidFile(w, err)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read uploaded file", nil)
			return
		}

		sum := sha256.Sum256(data)
		upload := models.Upload{
			Filename:    header.Filename,
			Size:        int64(len(data)),
			ContentType: header.Header.Get("Content-Type"),
			Checksum:    hex.EncodeToString(sum[:]),
			Body:        bytes.NewReader(data),
		}

		if arch != nil {
			upload.ArchiveKey = archiveUpload(r.Context(), arch, upload, data)
		}

		if err := ctrl.Submit(upload); err != nil {
			switch {
			case errors.Is(err, controller.ErrJobInFlight):
				response.Error(w, http.StatusConflict, "JOB_IN_FLIGHT",
					"An analysis is already running; reset it or wait for it to finish", ctrl.Snapshot())
			case errors.Is(err, controller.ErrClosed):
				response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
					"The server is shutting down", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, ctrl.Snapshot())
	}
}

func invalidFile(w http.ResponseWriter, err error) {
	var vErr *validate.ValidationError
	if errors.As(err, &vErr) {
		response.Error(w, http.StatusBadRequest, "INVALID_FILE", vErr.Message, map[string]string{
			"field": vErr.Field,
		})
		return
	}
	response.Error(w, http.StatusBadRequest, "INVALID_FILE", "Invalid file", nil)
}

// NewGetAnalysisStateHandler returns an http.HandlerFunc for GET /api/v1/analysis.
func NewGetAnalysisStateHandler(ctrl JobController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, ctrl.Snapshot())
	}
}

// NewResetHandler returns an http.HandlerFunc for DELETE /api/v1/analysis.
func NewResetHandler(ctrl JobController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl.Reset()
		response.JSON(w, ctrl.Snapshot())
	}
}

// NewResultsHandler returns an http.HandlerFunc for GET /api/v1/analysis/results.
// The results are tied to the job current when the request arrived.
func NewResultsHandler(ctrl JobController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := ctrl.Snapshot()
		results, err := ctrl.FetchResults(r.Context(), snap.JobID)
		if err != nil {
			switch {
			case errors.Is(err, controller.ErrNotCompleted):
				response.Error(w, http.StatusConflict, "NOT_COMPLETED",
					"Results are only available once the analysis has completed", snap)
			case errors.Is(err, controller.ErrJobReset):
				response.Error(w, http.StatusConflict, "JOB_RESET",
					"The analysis was reset while its results were being fetched", nil)
			case errors.Is(err, controller.ErrResultsFetch):
				msg := ctrl.Snapshot().ErrorMessage
				if msg == "" {
					msg = "Failed to fetch results"
				}
				response.Error(w, http.StatusBadGateway, "RESULTS_UNAVAILABLE", msg, nil)
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				response.Error(w, http.StatusGatewayTimeout, "RESULTS_TIMEOUT",
					"Timed out waiting for results", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, resultsResponse{
			JobID:   snap.JobID,
			Summary: newResultSummary(results),
			View:    aggregate.Build(results),
		})
	}
}

type resultsResponse struct {
	JobID   string               `json:"job_id"`
	Summary resultSummary        `json:"summary"`
	View    models.AggregateView `json:"view"`
}

// resultSummary is the service payload without its frame list, which the
// view already carries in display form.
type resultSummary struct {
	OverallPrediction   models.Verdict   `json:"overall_prediction"`
	FakePercentage      *float64         `json:"fake_percentage,omitempty"`
	TotalFramesAnalyzed *int             `json:"total_frames_analyzed,omitempty"`
	FakeFramesCount     *int             `json:"fake_frames_count,omitempty"`
	RealFramesCount     *int             `json:"real_frames_count,omitempty"`
	VideoInfo           models.VideoInfo `json:"video_info"`
	VideoURL            string           `json:"video_url,omitempty"`
}

func newResultSummary(r *models.JobResults) resultSummary {
	return resultSummary{
		OverallPrediction:   r.OverallPrediction,
		FakePercentage:      r.FakePercentage,
		TotalFramesAnalyzed: r.TotalFramesAnalyzed,
		FakeFramesCount:     r.FakeFramesCount,
		RealFramesCount:     r.RealFramesCount,
		VideoInfo:           r.VideoInfo,
		VideoURL:            r.VideoURL,
	}
}

// archiveUpload stores data under its content-addressed key and returns the
// key, or "" when archiving failed. Content already in the archive is not
// uploaded again. Failures never block the analysis.
func archiveUpload(ctx context.Context, arch archive.Archiver, upload models.Upload, data []byte) string {
	key := archive.Key(upload.Checksum, upload.Filename)
	if ok, err := arch.Exists(ctx, key); err == nil && ok {
		return key
	}
	if err := arch.Put(ctx, key, data, archive.ContentType(upload.Filename)); err != nil {
		slog.Warn("failed to archive upload", "key", key, "error", err)
		return ""
	}
	return key
}
