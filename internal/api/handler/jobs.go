package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/cache"
)

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// It serves the last snapshot mirrored for a job, which outlives the job in
// the controller.
func NewJobStatusHandler(c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Job ID is required", nil)
			return
		}

		snap, ok, err := cache.GetSnapshot(r.Context(), c, jobID)
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE",
				"Job status is temporarily unavailable", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}
		response.JSON(w, snap)
	}
}
