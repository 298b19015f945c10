package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/smukkama/tourist-safety/internal/sos"
	"github.com/smukkama/tourist-safety/internal/tracking"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Success is the envelope for every successful response
type Success struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Failure is the envelope for every error response
type Failure struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeMissingCoords    = "MISSING_COORDINATES"
	CodeInvalidCoords    = "INVALID_COORDINATES"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeNoLocation       = "NO_LOCATION_DATA"
	CodeSOSNotFound      = "SOS_NOT_FOUND"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeInvalidSeverity  = "INVALID_SEVERITY"
	CodeTerminalState    = "SOS_ALREADY_CLOSED"
	CodeNotOwner         = "FORBIDDEN"
	CodeConflict         = "SOS_CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
	CodeServiceUnhealthy = "SERVICE_UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Success{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

func writeFailure(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, Failure{Success: false, Error: message, Code: code, Timestamp: time.Now().UTC()})
}

// errorResponse maps a domain error to its HTTP status, message and code
func errorResponse(err error) (int, string, string) {
	switch {
	case errors.Is(err, tracking.ErrMissingIdentity):
		return http.StatusUnauthorized, "Authentication required", CodeUnauthorized
	case errors.Is(err, tracking.ErrInvalidCoordinates):
		return http.StatusBadRequest, "Valid latitude and longitude are required", CodeInvalidCoords
	case errors.Is(err, sos.ErrUserNotFound):
		return http.StatusNotFound, "User not found", CodeUserNotFound
	case errors.Is(err, sos.ErrNotFound):
		return http.StatusNotFound, "SOS alert not found", CodeSOSNotFound
	case errors.Is(err, sos.ErrTerminalState):
		return http.StatusConflict, "SOS alert is already closed", CodeTerminalState
	case errors.Is(err, sos.ErrInvalidTransition):
		return http.StatusConflict, err.Error(), CodeInvalidStatus
	case errors.Is(err, sos.ErrVersionConflict):
		return http.StatusConflict, "SOS alert was modified concurrently, retry", CodeConflict
	case errors.Is(err, sos.ErrNotOwner):
		return http.StatusForbidden, "Not allowed to modify this SOS alert", CodeNotOwner
	case errors.Is(err, sos.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error(), CodeValidation
	}
	return http.StatusInternalServerError, "Something went wrong", CodeInternal
}

// decodeBody reads a JSON body into out. An empty body leaves out untouched.
func decodeBody(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
