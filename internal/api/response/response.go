// Package response writes the JSON envelopes shared by every endpoint.
// Successful bodies carry a "data" member, listings add "meta", and
// failures carry only an "error" object.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// PaginationMeta describes one page of a listing.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// Page builds pagination metadata for one page of a listing.
func Page(page, limit, total int) PaginationMeta {
	return PaginationMeta{Page: page, Limit: limit, Total: total, HasNext: total > page*limit}
}

// ErrorBody is the payload of a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type success struct {
	Data any             `json:"data"`
	Meta *PaginationMeta `json:"meta,omitempty"`
}

type failure struct {
	Error ErrorBody `json:"error"`
}

// JSON writes data with 200 OK.
func JSON(w http.ResponseWriter, data any) { write(w, http.StatusOK, success{Data: data}) }

// Created writes data with 201 Created.
func Created(w http.ResponseWriter, data any) { write(w, http.StatusCreated, success{Data: data}) }

// Accepted writes data with 202 Accepted.
func Accepted(w http.ResponseWriter, data any) { write(w, http.StatusAccepted, success{Data: data}) }

// Collection writes one page of a listing.
func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	write(w, http.StatusOK, success{Data: data, Meta: &meta})
}

// NoContent writes 204 with an empty body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error envelope. details is omitted when nil.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, failure{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response body", "status", status, "error", err)
	}
}
