package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so that every error
// has the same shape:
//
//	{"error": "rate_limited", "message": "GitHub rate limit exceeded, resets at ..."}

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/commit-streak/internal/apperror"
)

// ErrorResponse is the standard error body returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "invalid_date"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input, for validation errors
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set after the first body byte is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping translates an error kind into HTTP. Order matters: the first
// sentinel found in the chain wins.
var errorMapping = []struct {
	target error
	status int
	kind   string
}{
	{apperror.ErrInvalidDate, http.StatusBadRequest, "invalid_date"},
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrCredentialInvalid, http.StatusUnauthorized, "credential_invalid"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrCredentialMissing, http.StatusPreconditionFailed, "credential_missing"},
	{apperror.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limited"},
	{apperror.ErrMalformedResponse, http.StatusBadGateway, "upstream_malformed"},
	{apperror.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The service layer knows nothing about HTTP; this is the one place where
// apperror kinds become status codes. Unknown errors are a 500 with a
// generic message: raw error text may contain SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMapping {
			if !errors.Is(err, m.target) {
				continue
			}
			if !appErr.RetryAt.IsZero() {
				secs := int(time.Until(appErr.RetryAt).Seconds()) + 1
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			writeJSON(w, m.status, ErrorResponse{Error: m.kind, Message: appErr.Message, Field: appErr.Field})
			return
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
			Error:   "timeout",
			Message: "the request took too long",
		})
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
