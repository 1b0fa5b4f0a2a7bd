package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/cache"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// analysisCacheTTL bounds how long a history entry stays in the read-through cache.
const analysisCacheTTL = time.Hour

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses.
// Supported query parameters: prediction (real|fake), flagged (bool),
// since (RFC3339), page, limit.
func NewListAnalysesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseAnalysisFilter(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		filter = filter.Normalize()

		records, total, err := st.ListAnalyses(r.Context(), filter)
		if err != nil {
			slog.Error("list analyses failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list analyses", nil)
			return
		}

		response.Collection(w, records, response.Page(filter.Page, filter.Limit, total))
	}
}

func parseAnalysisFilter(r *http.Request) (store.AnalysisFilter, error) {
	q := r.URL.Query()
	var f store.AnalysisFilter

	if p := q.Get("prediction"); p != "" {
		switch strings.ToLower(p) {
		case "fake":
			f.Prediction = models.VerdictFake
		case "real":
			f.Prediction = models.VerdictReal
		default:
			return f, errors.New("prediction must be real or fake")
		}
	}

	if v := q.Get("flagged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("flagged must be true or false")
		}
		f.Flagged = &b
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be a valid RFC3339 timestamp")
		}
		f.Since = t
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}
		f.Page = n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = n
	}

	return f, nil
}

// NewGetAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{analysisID}. Reads go through the cache first.
func NewGetAnalysisHandler(st store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "analysisID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_ANALYSIS_ID", "Invalid analysis ID", nil)
			return
		}

		if rec, ok, err := cache.GetAnalysis(r.Context(), c, id); err == nil && ok {
			response.JSON(w, rec)
			return
		}

		rec, err := st.GetAnalysis(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ANALYSIS_NOT_FOUND", "Analysis not found", nil)
				return
			}
			slog.Error("get analysis failed", "analysis_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load analysis", nil)
			return
		}

		if err := cache.PutAnalysis(r.Context(), c, rec, analysisCacheTTL); err != nil {
			slog.Warn("failed to cache analysis", "analysis_id", id, "error", err)
		}
		response.JSON(w, rec)
	}
}
