package common

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the "error" member of every failed JSON response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Status types.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Status is the transient message the page shows after an action. The page
// clears it after ClearAfterMs.
type Status struct {
	Text         string `json:"text"`
	Type         string `json:"type"`
	ClearAfterMs int64  `json:"clearAfterMs"`
}

// NewStatus builds a Status that clears after clearAfter.
func NewStatus(text, kind string, clearAfter time.Duration) Status {
	return Status{Text: text, Type: kind, ClearAfterMs: clearAfter.Milliseconds()}
}

// JSON encodes v before touching w, so an unencodable value becomes a 500
// rather than a truncated body under the intended status.
func JSON(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL","message":"response encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(buf, '\n'))
}

// JSONError writes {"error": ...} for middleware that has no page status to report.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{Code: code, Message: message, Details: details},
	})
}

// JSONFailure writes {"error": ..., "status": ...} where the status repeats
// the error message for the page to display.
func JSONFailure(w http.ResponseWriter, status int, body ErrorBody, clearAfter time.Duration) {
	JSON(w, status, map[string]any{
		"error":  body,
		"status": NewStatus(body.Message, StatusError, clearAfter),
	})
}
