// Package api provides HTTP handlers for the campaign dashboard API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/containerd/errdefs"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success": false, "error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// OK writes a successful JSON response with a success flag merged in.
func OK(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// Error writes a JSON error response. Every failure carries a success
// flag and a human-readable message; stage is attached when known.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// ErrorAtStage writes a JSON error response annotated with the stage at
// which the failure occurred.
func ErrorAtStage(w http.ResponseWriter, status int, message, stage string) {
	JSON(w, status, map[string]interface{}{"success": false, "error": message, "stage": stage})
}

// StatusFromError maps the error taxonomy to HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsFailedPrecondition(err), errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
