package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"trackflow-backend/internal/models"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 6.0
	cellHeight = 7.0
	cellPad    = 2.0
)

// TrackerReport is the input for a tracker PDF export.
type TrackerReport struct {
	Title       string
	Owner       string
	GeneratedAt time.Time
	Location    *time.Location
	Summary     models.TrackerSummary
	Insight     *Document // optional AI insight appended after the stats
}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newPDFWriter(title string) *pdfWriter {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("TrackFlow", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (w *pdfWriter) contentWidth() float64 {
	pageW, _ := w.pdf.GetPageSize()
	left, _, right, _ := w.pdf.GetMargins()
	return pageW - left - right
}

func (w *pdfWriter) heading(text string, size float64) {
	w.pdf.SetFont(fontFamily, "B", size)
	w.pdf.SetTextColor(33, 37, 41)
	w.pdf.MultiCell(0, size*0.5, w.tr(text), "", "L", false)
	w.pdf.Ln(2)
}

func (w *pdfWriter) paragraph(text string) {
	w.pdf.SetFont(fontFamily, "", 10)
	w.pdf.SetTextColor(33, 37, 41)
	w.pdf.MultiCell(0, lineHeight, w.tr(text), "", "L", false)
	w.pdf.Ln(2)
}

func (w *pdfWriter) list(l *List) {
	w.pdf.SetFont(fontFamily, "", 10)
	for i, item := range l.Items {
		marker := "-"
		if l.Ordered {
			marker = fmt.Sprintf("%d.", i+1)
		}
		w.pdf.CellFormat(8, lineHeight, marker, "", 0, "R", false, 0, "")
		w.pdf.MultiCell(0, lineHeight, w.tr(" "+item), "", "L", false)
	}
	w.pdf.Ln(2)
}

// table draws a grid with equal column widths; cell text is truncated to fit.
func (w *pdfWriter) table(t *Table) {
	if len(t.Headers) == 0 {
		return
	}
	colW := w.contentWidth() / float64(len(t.Headers))

	w.pdf.SetFont(fontFamily, "B", 9)
	w.pdf.SetFillColor(230, 236, 245)
	for _, h := range t.Headers {
		w.pdf.CellFormat(colW, cellHeight, w.fit(h, colW), "1", 0, "L", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.pdf.SetFont(fontFamily, "", 9)
	for _, row := range t.Rows {
		for _, cell := range row {
			w.pdf.CellFormat(colW, cellHeight, w.fit(cell, colW), "1", 0, "L", false, 0, "")
		}
		w.pdf.Ln(-1)
	}
	w.pdf.Ln(3)
}

// fit translates s and shortens it with an ellipsis until it fits width.
func (w *pdfWriter) fit(s string, width float64) string {
	text := w.tr(s)
	limit := width - cellPad
	if w.pdf.GetStringWidth(text) <= limit {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if w.pdf.GetStringWidth(candidate) <= limit {
			return candidate
		}
	}
	return ""
}

func (w *pdfWriter) document(doc Document) {
	for _, s := range doc.Sections {
		if s.Title != "" {
			size := 13.0
			if s.Level == 1 {
				size = 15
			}
			w.heading(s.Title, size)
		}
		for _, b := range s.Blocks {
			switch b.Kind {
			case BlockParagraph:
				w.paragraph(b.Text)
			case BlockList:
				w.list(b.List)
			case BlockTable:
				w.table(b.Table)
			}
		}
	}
}

func (w *pdfWriter) output(out io.Writer) error {
	if err := w.pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := w.pdf.Output(out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// RenderDocumentPDF renders a parsed AI response as a PDF.
func RenderDocumentPDF(out io.Writer, title, subtitle string, doc Document) error {
	w := newPDFWriter(title)
	w.heading(title, 18)
	if subtitle != "" {
		w.pdf.SetFont(fontFamily, "I", 10)
		w.pdf.SetTextColor(100, 100, 100)
		w.pdf.MultiCell(0, lineHeight, w.tr(subtitle), "", "L", false)
		w.pdf.Ln(4)
	}
	w.document(doc)
	return w.output(out)
}

// RenderTrackerReportPDF renders tracker statistics, the daily breakdown and an optional insight.
func RenderTrackerReportPDF(out io.Writer, r TrackerReport) error {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	s := r.Summary

	title := r.Title
	if title == "" {
		title = s.TrackerName + " Report"
	}
	w := newPDFWriter(title)
	w.heading(title, 18)

	w.pdf.SetFont(fontFamily, "I", 10)
	w.pdf.SetTextColor(100, 100, 100)
	meta := fmt.Sprintf("Last %d days, generated %s", s.Days, r.GeneratedAt.In(loc).Format("2006-01-02 15:04 MST"))
	if r.Owner != "" {
		meta = r.Owner + " | " + meta
	}
	w.pdf.MultiCell(0, lineHeight, w.tr(meta), "", "L", false)
	w.pdf.Ln(4)

	w.heading("Overview", 13)
	overview := &Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Entries", fmt.Sprintf("%d", s.EntryCount)},
			{"Total minutes", formatNumber(s.TotalMinutes)},
			{"Goal", goalLabel(s)},
			{"Current streak", fmt.Sprintf("%d days", s.Streak.CurrentStreak)},
			{"Longest streak", fmt.Sprintf("%d days", s.Streak.LongestStreak)},
			{"Active days", fmt.Sprintf("%d", s.Streak.ActiveDays)},
		},
	}
	if len(s.TopCategories) > 0 {
		overview.Rows = append(overview.Rows, []string{"Top categories", strings.Join(s.TopCategories, ", ")})
	}
	keys := make([]string, 0, len(s.MetricTotals))
	for k := range s.MetricTotals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		overview.Rows = append(overview.Rows, []string{"Total " + k, formatNumber(s.MetricTotals[k])})
	}
	w.table(overview)

	if len(s.Daily) > 0 {
		w.heading("Daily breakdown", 13)
		daily := &Table{Headers: []string{"Date", "Entries", "Total", "Goal met"}}
		for _, d := range s.Daily {
			met := "no"
			if d.GoalMet {
				met = "yes"
			}
			daily.Rows = append(daily.Rows, []string{d.Date, fmt.Sprintf("%d", d.Entries), formatNumber(d.Total), met})
		}
		w.table(daily)
	}

	if r.Insight != nil && len(r.Insight.Sections) > 0 {
		w.heading("AI insight", 13)
		w.document(*r.Insight)
	}
	return w.output(out)
}

func goalLabel(s models.TrackerSummary) string {
	if s.Streak.Goal <= 0 {
		return "any activity"
	}
	unit := s.Unit
	if unit == "" {
		unit = s.Streak.GoalMetric
	}
	return fmt.Sprintf("%s %s per day", formatNumber(s.Streak.Goal), unit)
}
