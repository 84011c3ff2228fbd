package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"structd/internal/engine"
	"structd/internal/manager"
	"structd/pkg/types"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// (here: a stop signal) abandoned.
const StatusClientClosedRequest = 499

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// kindStatus maps engine error kinds to HTTP status codes.
var kindStatus = map[engine.Kind]int{
	engine.KindInputTooLong:           http.StatusRequestEntityTooLarge,
	engine.KindEmptyOrInvalidInput:    http.StatusBadRequest,
	engine.KindSchemaValidationFailed: http.StatusUnprocessableEntity,
	engine.KindInterrupted:            StatusClientClosedRequest,
	engine.KindOutOfMemory:            http.StatusInsufficientStorage,
	engine.KindBackendUnavailable:     http.StatusServiceUnavailable,
	engine.KindModelLoadFailed:        http.StatusServiceUnavailable,
	engine.KindContextInitFailed:      http.StatusServiceUnavailable,
	engine.KindDecodeFailed:           http.StatusInternalServerError,
}

// statusFor returns the HTTP status and machine-readable kind for err.
func statusFor(err error) (int, string) {
	switch {
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests, "too_busy"
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	}
	if k := engine.KindOf(err); k != engine.KindUnknown {
		if code, ok := kindStatus[k]; ok {
			return code, k.String()
		}
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, engine.KindUnknown.String()
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Kind: kind, Code: status})
}

// writeError maps err and writes it as JSON.
func writeError(w http.ResponseWriter, err error) int {
	status, kind := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	writeJSONError(w, status, kind, err.Error())
	return status
}
