package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// deviceErrors maps device and midi sentinels to responses, checked in order.
var deviceErrors = []struct {
	target error
	status int
	code   string
}{
	{device.ErrEndpointUnavailable, http.StatusConflict, ErrCodeConflict},
	{device.ErrInvalidState, http.StatusConflict, ErrCodeConflict},
	{device.ErrResourceUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{midi.ErrInvalidData, http.StatusBadRequest, ErrCodeBadRequest},
}

// writeJSON encodes v before touching w, so an unencodable value becomes a
// 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Error{Status: status, Code: ErrCodeInternal, Message: "response encoding failed"}) //nolint:errcheck // Error always encodes
	}
	w.WriteHeader(status)
	w.Write(append(body, '\n')) //nolint:errcheck // Client may be gone
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeDeviceError answers with the status of the first sentinel err wraps.
// Anything else is reported as 503 since the port itself refused.
func writeDeviceError(w http.ResponseWriter, err error) {
	for _, e := range deviceErrors {
		if errors.Is(err, e.target) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
