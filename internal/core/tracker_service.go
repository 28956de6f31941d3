package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
)

// Custom errors for the TrackerService.
var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrInvalidMetric = errors.New("metric not recorded by this tracker")
	ErrFutureEntry   = errors.New("entry time is too far in the future")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultWindow    = 7
	maxWindow        = 365
	// streakLookback bounds how far back streaks are computed.
	streakLookback = 366
	futureSlack    = 24 * time.Hour
	topCategories  = 3
)

// trackerService implements the TrackerService interface.
type trackerService struct {
	trackerRepo  db.TrackerRepository
	catalog      *configs.Catalog
	cipher       NoteCipher
	auditService AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewTrackerService creates a new TrackerService instance.
func NewTrackerService(trackerRepo db.TrackerRepository, catalog *configs.Catalog, cipher NoteCipher, as AuditService, logger *zap.Logger) TrackerService {
	return &trackerService{
		trackerRepo:  trackerRepo,
		catalog:      catalog,
		cipher:       cipher,
		auditService: as,
		logger:       logger.Named("tracker_service"),
		now:          time.Now,
	}
}

// Resolve returns the tracker for key if the user may use it.
func (s *trackerService) Resolve(user *models.User, key string) (configs.Tracker, error) {
	tracker, err := resolveTracker(s.catalog, user, key)
	if err != nil {
		return configs.Tracker{}, err
	}
	if !CanAccessTracker(user, tracker, s.now()) {
		return configs.Tracker{}, fmt.Errorf("%w: tracker '%s'", ErrPremiumRequired, key)
	}
	return tracker, nil
}

// filterFor returns the tracker field filter; only the shared custom collection needs one.
func filterFor(tracker configs.Tracker) string {
	if tracker.Custom {
		return tracker.Key
	}
	return ""
}

func (s *trackerService) validateMetrics(tracker configs.Tracker, metrics map[string]float64) error {
	for name, v := range metrics {
		if !tracker.AllowsMetric(name) {
			return fmt.Errorf("%w: '%s' on tracker '%s'", ErrInvalidMetric, name, tracker.Key)
		}
		if v < 0 {
			return fmt.Errorf("%w: metric '%s' cannot be negative", ErrInvalidInput, name)
		}
	}
	return nil
}

func (s *trackerService) checkLoggedAt(t time.Time) error {
	if t.After(s.now().Add(futureSlack)) {
		return ErrFutureEntry
	}
	return nil
}

// sealNotes encrypts notes in place for trackers that keep notes encrypted.
func (s *trackerService) sealNotes(tracker configs.Tracker, entry *models.TrackerEntry) error {
	if !tracker.EncryptNotes || entry.Notes == "" || s.cipher == nil {
		entry.Encrypted = false
		return nil
	}
	sealed, err := s.cipher.Seal(entry.Notes)
	if err != nil {
		return fmt.Errorf("failed to encrypt notes: %w", err)
	}
	entry.Notes = sealed
	entry.Encrypted = true
	return nil
}

// openNotes returns a copy of entry with plaintext notes. Undecryptable notes are blanked.
func (s *trackerService) openNotes(entry *models.TrackerEntry) *models.TrackerEntry {
	out := *entry
	if !entry.Encrypted || s.cipher == nil {
		return &out
	}
	plain, err := s.cipher.Open(entry.Notes)
	if err != nil {
		s.logger.Warn("Failed to decrypt entry notes", zap.String("entryID", entry.ID), zap.Error(err))
		out.Notes = ""
	} else {
		out.Notes = plain
	}
	out.Encrypted = false
	return &out
}

// CreateEntry logs an activity on a tracker.
func (s *trackerService) CreateEntry(ctx context.Context, user *models.User, trackerKey string, req models.CreateEntryRequest) (*models.TrackerEntry, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	if err := s.validateMetrics(tracker, req.Metrics); err != nil {
		return nil, err
	}
	loggedAt := s.now().UTC()
	if req.LoggedAt != nil {
		loggedAt = req.LoggedAt.UTC()
	}
	if err := s.checkLoggedAt(loggedAt); err != nil {
		return nil, err
	}

	entry := &models.TrackerEntry{
		UserID:   user.ID,
		Tracker:  tracker.Key,
		LoggedAt: loggedAt,
		Minutes:  req.Minutes,
		Category: strings.TrimSpace(req.Category),
		Metrics:  req.Metrics,
		Notes:    strings.TrimSpace(req.Notes),
	}
	plainNotes := entry.Notes
	if err := s.sealNotes(tracker, entry); err != nil {
		return nil, err
	}
	if _, err := s.trackerRepo.Create(ctx, user.ID, tracker.Collection, entry); err != nil {
		return nil, fmt.Errorf("failed to create %s entry: %w", tracker.Key, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.ActionEntryCreate,
		TargetType: "ENTRY",
		TargetID:   entry.ID,
		Details:    map[string]interface{}{"tracker": tracker.Key},
	})

	out := *entry
	out.Notes = plainNotes
	out.Encrypted = false
	return &out, nil
}

func (s *trackerService) getEntry(ctx context.Context, user *models.User, tracker configs.Tracker, entryID string) (*models.TrackerEntry, error) {
	entry, err := s.trackerRepo.GetByID(ctx, user.ID, tracker.Collection, entryID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrEntryNotFound, entryID)
		}
		return nil, err
	}
	if entry.Tracker != "" && entry.Tracker != tracker.Key {
		return nil, fmt.Errorf("%w: '%s'", ErrEntryNotFound, entryID)
	}
	return entry, nil
}

// GetEntry returns one entry with notes decrypted.
func (s *trackerService) GetEntry(ctx context.Context, user *models.User, trackerKey, entryID string) (*models.TrackerEntry, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	entry, err := s.getEntry(ctx, user, tracker, entryID)
	if err != nil {
		return nil, err
	}
	return s.openNotes(entry), nil
}

// ListEntries returns entries newest first. The limit defaults to 50 and is capped at 500.
func (s *trackerService) ListEntries(ctx context.Context, user *models.User, trackerKey string, query models.EntryQuery) ([]*models.TrackerEntry, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	switch {
	case query.Limit <= 0:
		query.Limit = defaultListLimit
	case query.Limit > maxListLimit:
		query.Limit = maxListLimit
	}
	entries, err := s.trackerRepo.List(ctx, user.ID, tracker.Collection, filterFor(tracker), query)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: startAfter '%s'", ErrEntryNotFound, query.StartAfter)
		}
		return nil, err
	}
	out := make([]*models.TrackerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.openNotes(e))
	}
	return out, nil
}

// AllEntries returns every entry in the range with notes decrypted.
func (s *trackerService) AllEntries(ctx context.Context, user *models.User, trackerKey string, from, to time.Time) ([]*models.TrackerEntry, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	entries, err := s.trackerRepo.List(ctx, user.ID, tracker.Collection, filterFor(tracker), models.EntryQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s entries: %w", tracker.Key, err)
	}
	out := make([]*models.TrackerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.openNotes(e))
	}
	return out, nil
}

// UpdateEntry applies the non-nil fields of req.
func (s *trackerService) UpdateEntry(ctx context.Context, user *models.User, trackerKey, entryID string, req models.UpdateEntryRequest) (*models.TrackerEntry, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	stored, err := s.getEntry(ctx, user, tracker, entryID)
	if err != nil {
		return nil, err
	}
	entry := s.openNotes(stored)

	if req.LoggedAt != nil {
		if err := s.checkLoggedAt(req.LoggedAt.UTC()); err != nil {
			return nil, err
		}
		entry.LoggedAt = req.LoggedAt.UTC()
	}
	if req.Minutes != nil {
		entry.Minutes = *req.Minutes
	}
	if req.Category != nil {
		entry.Category = strings.TrimSpace(*req.Category)
	}
	if req.Metrics != nil {
		if err := s.validateMetrics(tracker, req.Metrics); err != nil {
			return nil, err
		}
		entry.Metrics = req.Metrics
	}
	if req.Notes != nil {
		entry.Notes = strings.TrimSpace(*req.Notes)
	}
	entry.Tracker = tracker.Key
	entry.UserID = user.ID

	plainNotes := entry.Notes
	if err := s.sealNotes(tracker, entry); err != nil {
		return nil, err
	}
	if err := s.trackerRepo.Update(ctx, user.ID, tracker.Collection, entry); err != nil {
		return nil, fmt.Errorf("failed to update %s entry '%s': %w", tracker.Key, entryID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.ActionEntryUpdate,
		TargetType: "ENTRY",
		TargetID:   entryID,
		Details:    map[string]interface{}{"tracker": tracker.Key},
	})
	entry.Notes = plainNotes
	entry.Encrypted = false
	return entry, nil
}

// DeleteEntry removes an entry after checking it exists.
func (s *trackerService) DeleteEntry(ctx context.Context, user *models.User, trackerKey, entryID string) error {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return err
	}
	if _, err := s.getEntry(ctx, user, tracker, entryID); err != nil {
		return err
	}
	if err := s.trackerRepo.Delete(ctx, user.ID, tracker.Collection, entryID); err != nil {
		return fmt.Errorf("failed to delete %s entry '%s': %w", tracker.Key, entryID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.ActionEntryDelete,
		TargetType: "ENTRY",
		TargetID:   entryID,
		Details:    map[string]interface{}{"tracker": tracker.Key},
	})
	return nil
}

// window loads every entry logged in the last n local days.
func (s *trackerService) window(ctx context.Context, user *models.User, tracker configs.Tracker, n int, now time.Time) ([]*models.TrackerEntry, error) {
	from := WindowStart(n, now, user.Location())
	entries, err := s.trackerRepo.List(ctx, user.ID, tracker.Collection, filterFor(tracker), models.EntryQuery{From: from})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s entries: %w", tracker.Key, err)
	}
	return entries, nil
}

// Streak computes goal streaks over the last year.
func (s *trackerService) Streak(ctx context.Context, user *models.User, trackerKey string) (*models.StreakStats, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entries, err := s.window(ctx, user, tracker, streakLookback, now)
	if err != nil {
		return nil, err
	}
	stats := CalculateStreak(entries, tracker.GoalMetric, ResolveGoal(user, tracker), now, user.Location())
	stats.Tracker = tracker.Key
	return &stats, nil
}

func clampDays(days int) int {
	switch {
	case days <= 0:
		return defaultWindow
	case days > maxWindow:
		return maxWindow
	}
	return days
}

// DailyTotals returns per-day goal-metric totals for the last n days.
func (s *trackerService) DailyTotals(ctx context.Context, user *models.User, trackerKey string, days int) ([]models.DailyTotal, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	days = clampDays(days)
	now := s.now()
	entries, err := s.window(ctx, user, tracker, days, now)
	if err != nil {
		return nil, err
	}
	return DailyTotals(entries, tracker.GoalMetric, ResolveGoal(user, tracker), days, now, user.Location()), nil
}

// Summary aggregates a tracker over the last n days, with streaks computed over the longer lookback.
func (s *trackerService) Summary(ctx context.Context, user *models.User, trackerKey string, days int) (*models.TrackerSummary, error) {
	tracker, err := s.Resolve(user, trackerKey)
	if err != nil {
		return nil, err
	}
	days = clampDays(days)
	now := s.now()
	loc := user.Location()
	lookback := streakLookback
	if days > lookback {
		lookback = days
	}
	all, err := s.window(ctx, user, tracker, lookback, now)
	if err != nil {
		return nil, err
	}
	return summarize(tracker, all, ResolveGoal(user, tracker), days, now, loc), nil
}

// summarize builds a TrackerSummary; entries may extend past the summary window.
func summarize(tracker configs.Tracker, entries []*models.TrackerEntry, goal float64, days int, now time.Time, loc *time.Location) *models.TrackerSummary {
	from := WindowStart(days, now, loc)
	summary := &models.TrackerSummary{
		Tracker:      tracker.Key,
		TrackerName:  tracker.Name,
		Unit:         tracker.Unit,
		Days:         days,
		MetricTotals: map[string]float64{},
	}

	var inWindow []*models.TrackerEntry
	categoryCounts := map[string]int{}
	for _, e := range entries {
		if e.LoggedAt.Before(from) {
			continue
		}
		inWindow = append(inWindow, e)
		summary.EntryCount++
		summary.TotalMinutes += e.Minutes
		for k, v := range e.Metrics {
			summary.MetricTotals[k] += v
		}
		if e.Category != "" {
			categoryCounts[e.Category]++
		}
	}

	categories := make([]string, 0, len(categoryCounts))
	for c := range categoryCounts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categoryCounts[categories[i]] != categoryCounts[categories[j]] {
			return categoryCounts[categories[i]] > categoryCounts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > topCategories {
		categories = categories[:topCategories]
	}
	summary.TopCategories = categories

	summary.Daily = DailyTotals(inWindow, tracker.GoalMetric, goal, days, now, loc)
	summary.Streak = CalculateStreak(entries, tracker.GoalMetric, goal, now, loc)
	summary.Streak.Tracker = tracker.Key
	return summary
}
