package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
)

const (
	csvContentType = "text/csv; charset=utf-8"
	pdfContentType = "application/pdf"
)

// ExportHandler serves CSV and PDF downloads of tracker data.
type ExportHandler struct {
	exportService core.ExportService
	logger        *zap.Logger
	now           func() time.Time
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(es core.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{exportService: es, logger: logger.Named("export_handler"), now: time.Now}
}

func sendAttachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}

// ExportCSV handles GET /trackers/:tracker/export.csv?from&to.
// The file is buffered so failures can still be reported as JSON.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c, user.Location())
	if !ok {
		return
	}
	var buf bytes.Buffer
	tracker := c.Param("tracker")
	if err := h.exportService.EntriesCSV(c.Request.Context(), &buf, user, tracker, from, to); err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.csv", tracker, h.now().In(user.Location()).Format("2006-01-02"))
	sendAttachment(c, filename, csvContentType, buf.Bytes())
}

// ExportPDF handles GET /trackers/:tracker/export.pdf?days=N.
func (h *ExportHandler) ExportPDF(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	var buf bytes.Buffer
	tracker := c.Param("tracker")
	if err := h.exportService.TrackerPDF(c.Request.Context(), &buf, user, tracker, days); err != nil {
		mapTrackerErrorToStatus(c, h.logger, err)
		return
	}
	filename := fmt.Sprintf("%s-report-%s.pdf", tracker, h.now().In(user.Location()).Format("2006-01-02"))
	sendAttachment(c, filename, pdfContentType, buf.Bytes())
}
