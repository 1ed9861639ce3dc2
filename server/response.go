package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teranos/savesync/db"
	"github.com/teranos/savesync/errors"
)

// ErrorResponse is the body of every failed /api request
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return errors.Wrap(json.NewEncoder(w).Encode(data), "failed to encode response")
}

// writeError answers err with the status its sentinel maps to. Client errors
// carry their own message; server faults answer with fallback and stay in the log.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	resp := ErrorResponse{Error: fallback, Hint: errors.FlattenHints(err)}
	if status < http.StatusInternalServerError {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the shared sentinels onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case db.IsDatabaseClosed(err), errors.IsAny(err, errors.ErrServiceUnavailable, errors.ErrTimeout):
		// the bridge is shutting down or the store is unreachable
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var errMethodNotAllowed = errors.New("method not allowed")

// readSave decodes and checks a POST /api/save body
func readSave(w http.ResponseWriter, r *http.Request) (SaveRequest, error) {
	var req SaveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.NewInvalidRequestError("invalid save body: %v", err)
	}
	if err := checkBlob(req.Blob); err != nil {
		return req, err
	}
	return req, nil
}

// checkBlob rejects saves that would leave nothing to publish on the next session
func checkBlob(blob string) error {
	if strings.TrimSpace(blob) == "" {
		return errors.WithHint(
			errors.NewInvalidRequestError("save blob is empty"),
			"send the full serialized save as \"blob\"",
		)
	}
	return nil
}

// requireMethod answers 405 unless the request uses method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, errors.Wrapf(errMethodNotAllowed, "%s %s", r.Method, r.URL.Path), "")
		return false
	}
	return true
}

// shortID truncates a client ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
