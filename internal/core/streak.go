package core

import (
	"sort"
	"time"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
)

const dayLayout = "2006-01-02"

// DayKey formats t as a local calendar day.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// GoalValue is the amount an entry contributes toward a daily goal.
func GoalValue(entry *models.TrackerEntry, metric string) float64 {
	switch metric {
	case configs.GoalMinutes, "":
		return entry.Minutes
	case configs.GoalCount:
		return 1
	default:
		return entry.Metrics[metric]
	}
}

// goalMet treats a non-positive goal as "any logged activity counts".
func goalMet(day models.DailyTotal, goal float64) bool {
	if goal <= 0 {
		return day.Entries > 0
	}
	return day.Total >= goal
}

// bucketByDay sums the goal metric per local day.
func bucketByDay(entries []*models.TrackerEntry, metric string, loc *time.Location) map[string]models.DailyTotal {
	days := make(map[string]models.DailyTotal)
	for _, e := range entries {
		key := DayKey(e.LoggedAt, loc)
		d := days[key]
		d.Date = key
		d.Total += GoalValue(e, metric)
		d.Entries++
		days[key] = d
	}
	return days
}

// localNoon anchors day stepping away from DST transitions.
func localNoon(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 12, 0, 0, 0, loc)
}

// CalculateStreak walks backward day by day from today, counting consecutive days whose total
// meets goal. A today that has not met the goal yet does not break the streak; the walk starts
// at yesterday instead.
func CalculateStreak(entries []*models.TrackerEntry, metric string, goal float64, now time.Time, loc *time.Location) models.StreakStats {
	if loc == nil {
		loc = time.UTC
	}
	days := bucketByDay(entries, metric, loc)

	stats := models.StreakStats{Goal: goal, GoalMetric: metric}
	cursor := localNoon(now, loc)
	today := days[DayKey(cursor, loc)]
	stats.TodayTotal = today.Total
	stats.GoalMetToday = goalMet(today, goal)

	if !stats.GoalMetToday {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for {
		d, ok := days[DayKey(cursor, loc)]
		if !ok || !goalMet(d, goal) {
			break
		}
		stats.CurrentStreak++
		cursor = cursor.AddDate(0, 0, -1)
	}

	var metDays []string
	for key, d := range days {
		if d.Entries > 0 {
			stats.ActiveDays++
			if key > stats.LastActiveDay {
				stats.LastActiveDay = key
			}
		}
		if goalMet(d, goal) {
			metDays = append(metDays, key)
		}
	}
	stats.LongestStreak = longestRun(metDays)
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	return stats
}

// longestRun returns the longest run of consecutive calendar days in keys.
func longestRun(keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	sort.Strings(keys)
	longest, run := 1, 1
	prev, _ := time.Parse(dayLayout, keys[0])
	for _, k := range keys[1:] {
		day, err := time.Parse(dayLayout, k)
		if err != nil {
			continue
		}
		if day.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}
	return longest
}

// DailyTotals returns one total per local day for the last n days, oldest first, today included.
func DailyTotals(entries []*models.TrackerEntry, metric string, goal float64, n int, now time.Time, loc *time.Location) []models.DailyTotal {
	if loc == nil {
		loc = time.UTC
	}
	if n <= 0 {
		return nil
	}
	days := bucketByDay(entries, metric, loc)
	out := make([]models.DailyTotal, 0, n)
	cursor := localNoon(now, loc).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		key := DayKey(cursor, loc)
		d := days[key]
		d.Date = key
		d.GoalMet = goalMet(d, goal)
		out = append(out, d)
		cursor = cursor.AddDate(0, 0, 1)
	}
	return out
}

// WindowStart is local midnight n-1 days before now, the lower bound for an n-day window.
func WindowStart(n int, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(n - 1))
}

// ResolveGoal picks the daily goal for a tracker: a per-tracker override, then the user's minute goal
// for minute-based built-in trackers, then the tracker default.
func ResolveGoal(user *models.User, tracker configs.Tracker) float64 {
	if user != nil {
		if v, ok := user.TrackerGoals[tracker.Key]; ok {
			return v
		}
		if !tracker.Custom && tracker.GoalMetric == configs.GoalMinutes && user.DailyGoal > 0 {
			return float64(user.DailyGoal)
		}
	}
	return tracker.DefaultGoal
}
