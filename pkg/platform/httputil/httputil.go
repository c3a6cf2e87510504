// Package httputil holds the JSON helpers shared by every HTTP handler:
// one response envelope, one error envelope, one decode path.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxBodySize bounds request bodies; the API carries control-plane payloads,
// never documents.
const maxBodySize = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope. Descriptions are client-facing;
// internal errors keep theirs out of the response.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	body := map[string]string{"error": code}
	if description != "" && status < http.StatusInternalServerError {
		body["error_description"] = description
	}
	WriteJSON(w, status, body)
}

// Decode parses the JSON body into T. On failure it writes the bad-request
// envelope and returns false; the handler just returns.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		logger.Warn("request body rejected", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return v, false
	}
	return v, true
}
