package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"qacc/internal/core"
	"qacc/internal/donations"
	"qacc/internal/graphql"
	applog "qacc/internal/log"
	"qacc/internal/middleware/trace"
	"qacc/internal/qacc"
	"qacc/internal/round"
	"qacc/internal/uploads"
)

// errBadRequest marks request parsing failures.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes. Anything unknown is an
// upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graphql.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidProjectID),
		errors.Is(err, donations.ErrInvalidQuery),
		errors.Is(err, uploads.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, uploads.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, uploads.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, uploads.ErrNotFound),
		errors.Is(err, round.ErrRoundNotFound),
		errors.Is(err, qacc.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeError answers with {"error": ...}. Client errors echo the message,
// server errors are logged and answered with a generic text.
func writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusUnauthorized:
		msg = graphql.ErrAuthRequired.Error()
	case status >= 500:
		applog.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
		msg = http.StatusText(status)
	}

	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}
