package models

import "time"

// TrackerEntry is one logged activity in a tracker subcollection (users/{uid}/{collection}/{id}).
type TrackerEntry struct {
	ID        string             `json:"id" firestore:"-"`
	UserID    string             `json:"userId" firestore:"userId"`
	Tracker   string             `json:"tracker" firestore:"tracker"`
	LoggedAt  time.Time          `json:"loggedAt" firestore:"loggedAt"`
	Minutes   float64            `json:"minutes" firestore:"minutes"`
	Category  string             `json:"category,omitempty" firestore:"category,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty" firestore:"metrics,omitempty"`
	Notes     string             `json:"notes,omitempty" firestore:"notes,omitempty"`
	Encrypted bool               `json:"-" firestore:"encrypted,omitempty"`
	CreatedAt time.Time          `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time          `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// EntryQuery narrows a tracker listing. Zero times are open bounds.
type EntryQuery struct {
	From       time.Time
	To         time.Time
	Limit      int
	StartAfter string
}

// StreakStats summarizes goal streaks for one tracker.
type StreakStats struct {
	Tracker       string  `json:"tracker"`
	Goal          float64 `json:"goal"`
	GoalMetric    string  `json:"goalMetric"`
	CurrentStreak int     `json:"currentStreak"`
	LongestStreak int     `json:"longestStreak"`
	ActiveDays    int     `json:"activeDays"`
	TodayTotal    float64 `json:"todayTotal"`
	GoalMetToday  bool    `json:"goalMetToday"`
	LastActiveDay string  `json:"lastActiveDay,omitempty"` // YYYY-MM-DD in the user's zone
}

// DailyTotal is the goal-metric total for one local day.
type DailyTotal struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Total   float64 `json:"total"`
	Entries int     `json:"entries"`
	GoalMet bool    `json:"goalMet"`
}

// TrackerSummary aggregates a tracker over a window; it feeds AI prompts and PDF reports.
type TrackerSummary struct {
	Tracker       string             `json:"tracker"`
	TrackerName   string             `json:"trackerName"`
	Unit          string             `json:"unit"`
	Days          int                `json:"days"`
	EntryCount    int                `json:"entryCount"`
	TotalMinutes  float64            `json:"totalMinutes"`
	MetricTotals  map[string]float64 `json:"metricTotals"`
	TopCategories []string           `json:"topCategories,omitempty"`
	Daily         []DailyTotal       `json:"daily"`
	Streak        StreakStats        `json:"streak"`
}
