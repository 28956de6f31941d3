package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// TrackerHandler serves log entries and their aggregates under /trackers/:tracker.
type TrackerHandler struct {
	trackerService core.TrackerService
	logger         *zap.Logger
}

// NewTrackerHandler creates a new TrackerHandler.
func NewTrackerHandler(ts core.TrackerService, logger *zap.Logger) *TrackerHandler {
	return &TrackerHandler{trackerService: ts, logger: logger.Named("tracker_handler")}
}

// mapTrackerErrorToStatus maps errors from core.TrackerService to HTTP status codes and ErrorResponse.
func mapTrackerErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrTrackerNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: core.ErrTrackerNotFound.Error(), Details: err.Error()}
	case errors.Is(err, core.ErrEntryNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: core.ErrEntryNotFound.Error(), Details: err.Error()}
	case errors.Is(err, core.ErrPremiumRequired):
		statusCode = http.StatusForbidden
		errResponse = ErrorResponse{Error: core.ErrPremiumRequired.Error(), Redirect: core.RedirectPayment}
	case errors.Is(err, core.ErrInvalidMetric), errors.Is(err, core.ErrFutureEntry), errors.Is(err, core.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Invalid entry", Details: err.Error()}
	default:
		logger.Error("Internal Server Error in TrackerHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// parseDateParam accepts RFC 3339 timestamps or YYYY-MM-DD dates in loc. Empty values are open bounds.
func parseDateParam(c *gin.Context, name string, loc *time.Location) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameter '" + name + "'", Details: "expected RFC 3339 or YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}

// dateRange reads from/to; a date-only "to" is inclusive of that whole day.
func dateRange(c *gin.Context, loc *time.Location) (time.Time, time.Time, bool) {
	from, ok := parseDateParam(c, "from", loc)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := parseDateParam(c, "to", loc)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if !to.IsZero() && len(c.Query("to")) == len("2006-01-02") {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "'from' must be before 'to'"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// CreateEntry handles POST /trackers/:tracker/entries.
func (h *TrackerHandler) CreateEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	entry, err := h.trackerService.CreateEntry(c.Request.Context(), user, c.Param("tracker"), req)
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListEntries handles GET /trackers/:tracker/entries?from&to&limit&startAfter.
func (h *TrackerHandler) ListEntries(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c, user.Location())
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	entries, err := h.trackerService.ListEntries(c.Request.Context(), user, c.Param("tracker"), models.EntryQuery{
		From:       from,
		To:         to,
		Limit:      limit,
		StartAfter: c.Query("startAfter"),
	})
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetEntry handles GET /trackers/:tracker/entries/:entryId.
func (h *TrackerHandler) GetEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entry, err := h.trackerService.GetEntry(c.Request.Context(), user, c.Param("tracker"), c.Param("entryId"))
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// UpdateEntry handles PATCH /trackers/:tracker/entries/:entryId.
func (h *TrackerHandler) UpdateEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	entry, err := h.trackerService.UpdateEntry(c.Request.Context(), user, c.Param("tracker"), c.Param("entryId"), req)
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeleteEntry handles DELETE /trackers/:tracker/entries/:entryId.
func (h *TrackerHandler) DeleteEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.trackerService.DeleteEntry(c.Request.Context(), user, c.Param("tracker"), c.Param("entryId")); err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStreak handles GET /trackers/:tracker/streak.
func (h *TrackerHandler) GetStreak(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.trackerService.Streak(c.Request.Context(), user, c.Param("tracker"))
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSummary handles GET /trackers/:tracker/summary?days=N.
func (h *TrackerHandler) GetSummary(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	summary, err := h.trackerService.Summary(c.Request.Context(), user, c.Param("tracker"), days)
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetDailyTotals handles GET /trackers/:tracker/daily?days=N.
func (h *TrackerHandler) GetDailyTotals(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	totals, err := h.trackerService.DailyTotals(c.Request.Context(), user, c.Param("tracker"), days)
	if err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}
