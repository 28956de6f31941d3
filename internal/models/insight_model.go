package models

import "time"

// AIResponse is a stored generative AI insight at users/{uid}/aiResponses/{id}.
type AIResponse struct {
	ID        string    `json:"id" firestore:"-"`
	UserID    string    `json:"userId" firestore:"userId"`
	Tracker   string    `json:"tracker" firestore:"tracker"`
	Prompt    string    `json:"prompt,omitempty" firestore:"prompt"`
	Response  string    `json:"response" firestore:"response"`
	Model     string    `json:"model" firestore:"model"`
	RangeDays int       `json:"rangeDays" firestore:"rangeDays"`
	Cached    bool      `json:"cached" firestore:"cached"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}
