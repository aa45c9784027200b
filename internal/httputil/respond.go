// Package httputil writes the JSON envelopes shared by all API handlers.
//
// Every failure response goes through Fail so that errors are always
// logged with request context and always reach the client as
// {"success": false, "message": "..."} — the shape the dashboard and
// log-viewer UIs expect.
package httputil

import (
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"
)

// JSON writes an arbitrary payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 response with the given payload.
func OK(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Fail logs the failure with request context and writes the standard
// error envelope. The message is user-facing; internal detail belongs
// in the caller's own log fields, never in the response body.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, message string) {
	logger.Warn(message,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
	)
	JSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
