package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/service"
)

// ActivityService is what ActivityHandler needs from the service layer.
// *service.ActivityService satisfies it; tests substitute a fake.
type ActivityService interface {
	GetStreak(ctx context.Context, userID string) (*service.StreakResult, error)
	Refresh(ctx context.Context, userID string) (*service.StreakResult, error)
	GetCommitsForDay(ctx context.Context, userID, date string) (*service.DayResult, error)
	SetTimezone(ctx context.Context, userID string, offsetMinutes int) (*model.User, error)
}

// maxBodyBytes caps JSON request bodies. The only body we accept is a
// one-field settings object.
const maxBodyBytes = 4 << 10

// ActivityHandler serves the streak and commit endpoints. Every route sits
// behind auth.RequireAuth, so the user always comes from the request context.
//
//   - HandleGetStreak      → GET  /api/streak
//   - HandleRefresh        → POST /api/streak/refresh
//   - HandleCommitsForDay  → GET  /api/commits/{date}
//   - HandleSetTimezone    → PUT  /api/me/timezone
//
// Stale and partial answers are still 200s: the flags in the body tell the
// client the data may lag behind GitHub.
type ActivityHandler struct {
	activity ActivityService
	logger   *slog.Logger
}

func NewActivityHandler(activity ActivityService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{activity: activity, logger: logger}
}

// HandleGetStreak serves the stored streak, refreshing it from GitHub first
// when it is older than the configured refresh interval.
func (h *ActivityHandler) HandleGetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.activity.GetStreak(r.Context(), userID)
	if err != nil {
		h.logger.Warn("get streak failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRefresh pulls new commits from GitHub and advances the streak.
func (h *ActivityHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.activity.Refresh(r.Context(), userID)
	if err != nil {
		h.logger.Warn("streak refresh failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCommitsForDay returns one day's commits.
//
// HTTP: GET /api/commits/2024-01-05
//
// The date is validated by the service so the CLI gets the same error.
func (h *ActivityHandler) HandleCommitsForDay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	date := chi.URLParam(r, "date")

	res, err := h.activity.GetCommitsForDay(r.Context(), userID, date)
	if err != nil {
		h.logger.Warn("day query failed",
			slog.String("userID", userID),
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type timezoneRequest struct {
	UTCOffsetMinutes *int `json:"utcOffsetMinutes"`
}

// HandleSetTimezone changes the user's UTC offset.
//
// HTTP: PUT /api/me/timezone
//
//	{"utcOffsetMinutes": -300}
func (h *ActivityHandler) HandleSetTimezone(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req timezoneRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("invalid timezone request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "request body must be a JSON object",
		})
		return
	}
	if req.UTCOffsetMinutes == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "utcOffsetMinutes is required",
			Field:   "utcOffsetMinutes",
		})
		return
	}

	user, err := h.activity.SetTimezone(r.Context(), userID, *req.UTCOffsetMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// requireUser reads the authenticated user, answering 401 when the route was
// mounted without RequireAuth.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "authentication required",
		})
		return "", false
	}
	return userID, true
}
