package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/techscire/scirecount-core/internal/ingest"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeStorageFailure = "storage_failure"
)

// storageFailureResponse is returned when a reading could not be persisted.
// Partial is true when the device row was updated but the history append
// failed.
type storageFailureResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Partial  bool   `json:"partial"`
	DeviceID string `json:"deviceId,omitempty"`
	Message  string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeValidationError writes a 400 error response for rejected input.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeIngestError writes the response for a failed ingestion. A
// *ingest.StorageFailure carries its stage; anything else is a plain 500.
func writeIngestError(w http.ResponseWriter, deviceID string, err error) {
	var sf *ingest.StorageFailure
	if !errors.As(err, &sf) {
		writeInternalError(w, "failed to process reading")
		return
	}
	writeJSON(w, http.StatusInternalServerError, storageFailureResponse{
		Status:   ingest.AckError,
		Code:     ErrCodeStorageFailure,
		Stage:    string(sf.Stage),
		Partial:  sf.Partial(),
		DeviceID: deviceID,
		Message:  "failed to store reading",
	})
}
