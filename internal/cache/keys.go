package cache

import (
	"github.com/google/uuid"
)

// Every key lives under one namespace so the server can share a Redis.
const namespace = "framecheck:"

// JobStatusKey holds the last snapshot published for a detection job.
func JobStatusKey(jobID string) string {
	return namespace + "job:" + jobID
}

// AnalysisKey holds a recorded analysis, view included.
func AnalysisKey(analysisID uuid.UUID) string {
	return namespace + "analysis:" + analysisID.String()
}

// RateLimitKey counts requests made with one API key in the current window.
func RateLimitKey(keyPrefix string) string {
	return namespace + "ratelimit:" + keyPrefix
}
