package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"trackflow-backend/internal/models"
	"trackflow-backend/internal/report"
)

const pdfContentType = "application/pdf"

// exportService implements the ExportService interface.
type exportService struct {
	trackers TrackerService
	insights InsightService
	archiver Archiver // nil disables archiving
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService creates a new ExportService instance. archiver may be nil.
func NewExportService(trackers TrackerService, insights InsightService, archiver Archiver, logger *zap.Logger) ExportService {
	return &exportService{
		trackers: trackers,
		insights: insights,
		archiver: archiver,
		logger:   logger.Named("export_service"),
		now:      time.Now,
	}
}

// EntriesCSV writes every entry in [from, to) as CSV. Zero bounds are open.
func (s *exportService) EntriesCSV(ctx context.Context, w io.Writer, user *models.User, trackerKey string, from, to time.Time) error {
	tracker, err := s.trackers.Resolve(user, trackerKey)
	if err != nil {
		return err
	}
	entries, err := s.trackers.AllEntries(ctx, user, trackerKey, from, to)
	if err != nil {
		return err
	}
	return report.WriteEntriesCSV(w, entries, report.MetricColumns(tracker.Metrics, entries), user.Location())
}

// TrackerPDF renders the tracker report with the latest stored insight, if any.
func (s *exportService) TrackerPDF(ctx context.Context, w io.Writer, user *models.User, trackerKey string, days int) error {
	summary, err := s.trackers.Summary(ctx, user, trackerKey, days)
	if err != nil {
		return err
	}
	rep := report.TrackerReport{
		Owner:       displayName(user),
		GeneratedAt: s.now(),
		Location:    user.Location(),
		Summary:     *summary,
	}
	if s.insights != nil {
		latest, err := s.insights.List(ctx, user.ID, summary.Tracker, map[string]string{"limit": "1"})
		if err != nil {
			s.logger.Warn("Failed to load latest insight for report", zap.String("userID", user.ID), zap.Error(err))
		} else if len(latest) > 0 {
			doc := report.Parse(latest[0].Response)
			rep.Insight = &doc
		}
	}

	var buf bytes.Buffer
	if err := report.RenderTrackerReportPDF(&buf, rep); err != nil {
		return err
	}
	s.archive(ctx, fmt.Sprintf("exports/%s/%s-%s.pdf", user.ID, summary.Tracker, s.now().UTC().Format("20060102-150405")), buf.Bytes())
	_, err = w.Write(buf.Bytes())
	return err
}

// InsightPDF renders one stored insight.
func (s *exportService) InsightPDF(ctx context.Context, w io.Writer, user *models.User, insightID string) error {
	resp, err := s.insights.Get(ctx, user.ID, insightID)
	if err != nil {
		return err
	}
	title := "AI Insight"
	if tracker, err := s.trackers.Resolve(user, resp.Tracker); err == nil {
		title = tracker.Name + " AI Insight"
	}
	subtitle := fmt.Sprintf("Last %d days, generated %s", resp.RangeDays, resp.CreatedAt.In(user.Location()).Format("2006-01-02 15:04"))

	var buf bytes.Buffer
	if err := report.RenderDocumentPDF(&buf, title, subtitle, report.Parse(resp.Response)); err != nil {
		return err
	}
	s.archive(ctx, fmt.Sprintf("exports/%s/insight-%s.pdf", user.ID, insightID), buf.Bytes())
	_, err = w.Write(buf.Bytes())
	return err
}

func (s *exportService) archive(ctx context.Context, path string, data []byte) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Put(ctx, path, pdfContentType, data); err != nil {
		s.logger.Warn("Failed to archive export", zap.String("path", path), zap.Error(err))
	}
}

func displayName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Email
}
