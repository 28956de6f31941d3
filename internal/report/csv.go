package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"trackflow-backend/internal/models"
)

// MetricColumns returns the metric columns for an export: the tracker's declared metrics in order,
// followed by any extra keys found on entries, sorted.
func MetricColumns(declared []string, entries []*models.TrackerEntry) []string {
	seen := make(map[string]bool, len(declared))
	cols := make([]string, 0, len(declared))
	for _, m := range declared {
		if !seen[m] {
			seen[m] = true
			cols = append(cols, m)
		}
	}
	var extra []string
	for _, e := range entries {
		for k := range e.Metrics {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// WriteEntriesCSV writes entries as CSV with a header row. Dates and times are rendered in loc.
func WriteEntriesCSV(w io.Writer, entries []*models.TrackerEntry, metricCols []string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)

	header := []string{"date", "time", "tracker", "category", "minutes"}
	header = append(header, metricCols...)
	header = append(header, "notes")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		local := e.LoggedAt.In(loc)
		record := []string{
			local.Format("2006-01-02"),
			local.Format("15:04"),
			sanitizeCell(e.Tracker),
			sanitizeCell(e.Category),
			formatNumber(e.Minutes),
		}
		for _, col := range metricCols {
			if v, ok := e.Metrics[col]; ok {
				record = append(record, formatNumber(v))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, sanitizeCell(e.Notes))
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sanitizeCell prefixes values that spreadsheets would evaluate as formulas.
func sanitizeCell(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}
