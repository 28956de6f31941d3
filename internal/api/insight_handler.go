package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/report"
)

// InsightHandler serves AI insights for a tracker.
type InsightHandler struct {
	insightService core.InsightService
	exportService  core.ExportService
	logger         *zap.Logger
}

// NewInsightHandler creates a new InsightHandler.
func NewInsightHandler(is core.InsightService, es core.ExportService, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{insightService: is, exportService: es, logger: logger.Named("insight_handler")}
}

// mapInsightErrorToStatus maps InsightService errors. Upstream model failures become a 502 whose
// details carry only the client-safe provider message for the error banner.
func mapInsightErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrInsightNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: core.ErrInsightNotFound.Error()}
	case errors.Is(err, core.ErrInsightQuotaExceeded):
		statusCode = http.StatusTooManyRequests
		errResponse = ErrorResponse{Error: core.ErrInsightQuotaExceeded.Error(), Redirect: core.RedirectPayment}
	case errors.Is(err, core.ErrInsightUnavailable):
		statusCode = http.StatusBadGateway
		errResponse = ErrorResponse{Error: core.ErrInsightUnavailable.Error()}
		var insightErr *core.InsightError
		if errors.As(err, &insightErr) {
			errResponse.Details = insightErr.Message
		}
	case errors.Is(err, core.ErrTrackerNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: core.ErrTrackerNotFound.Error(), Details: err.Error()}
	case errors.Is(err, core.ErrPremiumRequired):
		statusCode = http.StatusForbidden
		errResponse = ErrorResponse{Error: core.ErrPremiumRequired.Error(), Redirect: core.RedirectPayment}
	default:
		logger.Error("Internal Server Error in InsightHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// GenerateInsight handles POST /trackers/:tracker/insights.
func (h *InsightHandler) GenerateInsight(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.GenerateInsightRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
			return
		}
	}
	resp, err := h.insightService.Generate(c.Request.Context(), user, c.Param("tracker"), req.Days)
	if err != nil {
		mapInsightErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListInsights handles GET /trackers/:tracker/insights?limit&startAfter.
func (h *InsightHandler) ListInsights(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.insightService.List(c.Request.Context(), user.ID, c.Param("tracker"), paginationParams(c))
	if err != nil {
		mapInsightErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// load fetches an insight and checks it belongs to the route's tracker.
func (h *InsightHandler) load(c *gin.Context, userID string) (*models.AIResponse, bool) {
	insightID := c.Param("insightId")
	resp, err := h.insightService.Get(c.Request.Context(), userID, insightID)
	if err == nil && resp.Tracker != c.Param("tracker") {
		err = fmt.Errorf("%w: '%s'", core.ErrInsightNotFound, insightID)
	}
	if err != nil {
		mapInsightErrorToStatus(c, h.logger, err)
		return nil, false
	}
	return resp, true
}

// GetInsight handles GET /trackers/:tracker/insights/:insightId.
func (h *InsightHandler) GetInsight(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	resp, ok := h.load(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteInsight handles DELETE /trackers/:tracker/insights/:insightId.
func (h *InsightHandler) DeleteInsight(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if _, ok := h.load(c, user.ID); !ok {
		return
	}
	if err := h.insightService.Delete(c.Request.Context(), user.ID, c.Param("insightId")); err != nil {
		mapInsightErrorToStatus(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetInsightReport handles GET /trackers/:tracker/insights/:insightId/report and returns the parsed Markdown.
func (h *InsightHandler) GetInsightReport(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	resp, ok := h.load(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, InsightReportResponse{Insight: resp, Document: report.Parse(resp.Response)})
}

// GetInsightPDF handles GET /trackers/:tracker/insights/:insightId/pdf.
func (h *InsightHandler) GetInsightPDF(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	resp, ok := h.load(c, user.ID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exportService.InsightPDF(c.Request.Context(), &buf, user, resp.ID); err != nil {
		mapInsightErrorToStatus(c, h.logger, err)
		return
	}
	sendAttachment(c, fmt.Sprintf("%s-insight-%s.pdf", resp.Tracker, resp.ID), pdfContentType, buf.Bytes())
}
