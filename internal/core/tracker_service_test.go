package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
)

var trackerNow = time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)

func newTrackerFixture() (*trackerService, *memTrackerRepo, *stubAudit) {
	repo := newMemTrackerRepo()
	audit := &stubAudit{}
	svc := NewTrackerService(repo, configs.DefaultCatalog(), prefixCipher{}, audit, zap.NewNop()).(*trackerService)
	svc.now = fixedClock(trackerNow)
	return svc, repo, audit
}

func premiumUser() *models.User {
	return &models.User{ID: "u1", IsPremium: true, PremiumEndDate: timePtr(trackerNow.AddDate(0, 0, 10)), DailyGoal: 30}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func TestCreateEntry(t *testing.T) {
	svc, repo, audit := newTrackerFixture()
	user := &models.User{ID: "u1", DailyGoal: 30}
	loggedAt := trackerNow.Add(-time.Hour)

	entry, err := svc.CreateEntry(context.Background(), user, "coding", models.CreateEntryRequest{
		LoggedAt: &loggedAt,
		Minutes:  45,
		Category: " Go ",
		Metrics:  map[string]float64{"commits": 3},
		Notes:    "refactored the parser",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "coding", entry.Tracker)
	assert.Equal(t, "Go", entry.Category)
	assert.Equal(t, "refactored the parser", entry.Notes)

	stored := repo.stored("u1", "coding_sessions", entry.ID)
	require.NotNil(t, stored)
	assert.False(t, stored.Encrypted, "coding notes are stored as-is")
	assert.Equal(t, []string{models.ActionEntryCreate}, audit.actions())
}

func TestCreateEntryEncryptsMentalHealthNotes(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := premiumUser()

	entry, err := svc.CreateEntry(context.Background(), user, "mentalHealth", models.CreateEntryRequest{
		Minutes: 10,
		Metrics: map[string]float64{"mood": 7},
		Notes:   "felt calmer today",
	})
	require.NoError(t, err)
	assert.Equal(t, "felt calmer today", entry.Notes)

	stored := repo.stored("u1", "mentalHealth", entry.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.Encrypted)
	assert.Equal(t, sealedPrefix+"felt calmer today", stored.Notes)

	got, err := svc.GetEntry(context.Background(), user, "mentalHealth", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "felt calmer today", got.Notes)
}

func TestCreateEntryValidation(t *testing.T) {
	svc, _, _ := newTrackerFixture()
	free := &models.User{ID: "u1"}
	future := trackerNow.Add(48 * time.Hour)

	_, err := svc.CreateEntry(context.Background(), free, "workout", models.CreateEntryRequest{Minutes: 10})
	assert.ErrorIs(t, err, ErrPremiumRequired)

	_, err = svc.CreateEntry(context.Background(), free, "knitting", models.CreateEntryRequest{Minutes: 10})
	assert.ErrorIs(t, err, ErrTrackerNotFound)

	_, err = svc.CreateEntry(context.Background(), free, "coding", models.CreateEntryRequest{Metrics: map[string]float64{"calories": 100}})
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = svc.CreateEntry(context.Background(), free, "coding", models.CreateEntryRequest{Metrics: map[string]float64{"commits": -1}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateEntry(context.Background(), free, "coding", models.CreateEntryRequest{LoggedAt: &future})
	assert.ErrorIs(t, err, ErrFutureEntry)
}

func TestPremiumTrackerLockedAfterTrialEnds(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	lapsed := &models.User{ID: "u1", IsPremium: true, PremiumEndDate: timePtr(trackerNow.Add(-time.Minute))}
	repo.seed("u1", "workouts", &models.TrackerEntry{Tracker: "workout", LoggedAt: trackerNow.AddDate(0, 0, -3), Minutes: 30})

	_, err := svc.ListEntries(context.Background(), lapsed, "workout", models.EntryQuery{})
	assert.ErrorIs(t, err, ErrPremiumRequired)
}

func TestCustomTrackerEntriesShareCollection(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := &models.User{ID: "u1", CustomTrackers: []models.CustomTracker{
		{ID: "custom-a", Name: "Reading", Unit: "pages", DailyGoal: 20},
		{ID: "custom-b", Name: "Piano", Unit: "minutes", DailyGoal: 15},
	}}

	_, err := svc.CreateEntry(context.Background(), user, "custom-a", models.CreateEntryRequest{Minutes: 20, Metrics: map[string]float64{"pages": 12}})
	require.NoError(t, err)
	_, err = svc.CreateEntry(context.Background(), user, "custom-b", models.CreateEntryRequest{Minutes: 15})
	require.NoError(t, err)

	reading, err := svc.ListEntries(context.Background(), user, "custom-a", models.EntryQuery{})
	require.NoError(t, err)
	require.Len(t, reading, 1)
	assert.Equal(t, "custom-a", reading[0].Tracker)
	assert.Len(t, repo.entries["u1/customEntries"], 2)
}

func TestListEntriesClampsLimit(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := &models.User{ID: "u1"}

	_, err := svc.ListEntries(context.Background(), user, "coding", models.EntryQuery{})
	require.NoError(t, err)
	_, err = svc.ListEntries(context.Background(), user, "coding", models.EntryQuery{Limit: 10000})
	require.NoError(t, err)

	require.Len(t, repo.lists, 2)
	assert.Equal(t, defaultListLimit, repo.lists[0].Limit)
	assert.Equal(t, maxListLimit, repo.lists[1].Limit)
}

func TestUpdateEntry(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := premiumUser()
	created, err := svc.CreateEntry(context.Background(), user, "mentalHealth", models.CreateEntryRequest{Minutes: 5, Notes: "first"})
	require.NoError(t, err)

	updated, err := svc.UpdateEntry(context.Background(), user, "mentalHealth", created.ID, models.UpdateEntryRequest{
		Minutes: floatPtr(20),
		Notes:   strPtr("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Minutes)
	assert.Equal(t, "second", updated.Notes)
	assert.Equal(t, sealedPrefix+"second", repo.stored("u1", "mentalHealth", created.ID).Notes)

	_, err = svc.UpdateEntry(context.Background(), user, "mentalHealth", "missing", models.UpdateEntryRequest{})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGetEntryFromOtherCustomTracker(t *testing.T) {
	svc, _, _ := newTrackerFixture()
	user := &models.User{ID: "u1", CustomTrackers: []models.CustomTracker{{ID: "custom-a", Name: "A"}, {ID: "custom-b", Name: "B"}}}
	created, err := svc.CreateEntry(context.Background(), user, "custom-a", models.CreateEntryRequest{Minutes: 5})
	require.NoError(t, err)

	_, err = svc.GetEntry(context.Background(), user, "custom-b", created.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntry(t *testing.T) {
	svc, repo, audit := newTrackerFixture()
	user := &models.User{ID: "u1"}
	created, err := svc.CreateEntry(context.Background(), user, "prayer", models.CreateEntryRequest{Metrics: map[string]float64{"prayers": 5}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEntry(context.Background(), user, "prayer", created.ID))
	assert.Nil(t, repo.stored("u1", "prayerData", created.ID))
	assert.ErrorIs(t, svc.DeleteEntry(context.Background(), user, "prayer", created.ID), ErrEntryNotFound)
	assert.Equal(t, []string{models.ActionEntryCreate, models.ActionEntryDelete}, audit.actions())
}

func TestStreakUsesUserGoal(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := &models.User{ID: "u1", DailyGoal: 20}
	for i := 1; i <= 3; i++ {
		repo.seed("u1", "coding_sessions", &models.TrackerEntry{Tracker: "coding", LoggedAt: trackerNow.AddDate(0, 0, -i), Minutes: 25})
	}

	stats, err := svc.Streak(context.Background(), user, "coding")
	require.NoError(t, err)
	assert.Equal(t, "coding", stats.Tracker)
	assert.Equal(t, 20.0, stats.Goal)
	assert.Equal(t, 3, stats.CurrentStreak)
	assert.False(t, stats.GoalMetToday)

	user.DailyGoal = 60
	stats, err = svc.Streak(context.Background(), user, "coding")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentStreak)
}

func TestSummary(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := premiumUser()
	repo.seed("u1", "workouts",
		&models.TrackerEntry{Tracker: "workout", LoggedAt: trackerNow.Add(-time.Hour), Minutes: 40, Category: "Running", Metrics: map[string]float64{"calories": 300}},
		&models.TrackerEntry{Tracker: "workout", LoggedAt: trackerNow.AddDate(0, 0, -1), Minutes: 30, Category: "Running", Metrics: map[string]float64{"calories": 250}},
		&models.TrackerEntry{Tracker: "workout", LoggedAt: trackerNow.AddDate(0, 0, -2), Minutes: 50, Category: "Cycling"},
		&models.TrackerEntry{Tracker: "workout", LoggedAt: trackerNow.AddDate(0, 0, -20), Minutes: 60, Category: "Swimming"},
	)

	summary, err := svc.Summary(context.Background(), user, "workout", 7)
	require.NoError(t, err)
	assert.Equal(t, "Workout", summary.TrackerName)
	assert.Equal(t, 7, summary.Days)
	assert.Equal(t, 3, summary.EntryCount)
	assert.Equal(t, 120.0, summary.TotalMinutes)
	assert.Equal(t, 550.0, summary.MetricTotals["calories"])
	assert.Equal(t, []string{"Running", "Cycling"}, summary.TopCategories)
	require.Len(t, summary.Daily, 7)
	assert.Equal(t, "2025-06-10", summary.Daily[6].Date)
	assert.True(t, summary.Daily[6].GoalMet)
	assert.Equal(t, 3, summary.Streak.CurrentStreak)
	assert.Equal(t, 4, summary.Streak.ActiveDays, "streak stats use the longer lookback")
}

func TestDailyTotalsClampsDays(t *testing.T) {
	svc, _, _ := newTrackerFixture()
	user := &models.User{ID: "u1"}

	days, err := svc.DailyTotals(context.Background(), user, "coding", 0)
	require.NoError(t, err)
	assert.Len(t, days, defaultWindow)

	days, err = svc.DailyTotals(context.Background(), user, "coding", 5000)
	require.NoError(t, err)
	assert.Len(t, days, maxWindow)
}

func TestAllEntriesDecryptsAndSkipsPaging(t *testing.T) {
	svc, repo, _ := newTrackerFixture()
	user := premiumUser()
	for i := 0; i < 3; i++ {
		repo.seed("u1", "mentalHealth", &models.TrackerEntry{
			Tracker: "mentalHealth", LoggedAt: trackerNow.AddDate(0, 0, -i), Notes: sealedPrefix + "n", Encrypted: true,
		})
	}
	repo.seed("u1", "mentalHealth", &models.TrackerEntry{Tracker: "mentalHealth", LoggedAt: trackerNow, Notes: "garbled", Encrypted: true})

	entries, err := svc.AllEntries(context.Background(), user, "mentalHealth", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	var notes []string
	for _, e := range entries {
		notes = append(notes, e.Notes)
		assert.False(t, e.Encrypted)
	}
	assert.Equal(t, 3, strings.Count(strings.Join(notes, ","), "n"), "undecryptable notes are blanked")
	assert.Equal(t, 0, repo.lists[len(repo.lists)-1].Limit)
}
