package db

import (
	"context"
	"time"

	"trackflow-backend/internal/models"
)

// UserRepository defines the interface for user profile storage.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	// UpdateInTransaction reads the user, applies mutate and writes the result atomically.
	// An error from mutate aborts without writing and is returned unchanged. mutate may run
	// more than once when the transaction is retried.
	UpdateInTransaction(ctx context.Context, userID string, mutate func(user *models.User) error) (*models.User, error)
	List(ctx context.Context, paginationParams map[string]string) ([]*models.User, error)
	// ListLapsedPremium returns premium users whose premiumEndDate is at or before now.
	ListLapsedPremium(ctx context.Context, now time.Time) ([]*models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	// Count counts users; an empty field counts every user, otherwise users where field == value.
	Count(ctx context.Context, field string, value interface{}) (int64, error)
}

// TrackerRepository stores tracker log entries in per-user subcollections.
type TrackerRepository interface {
	Create(ctx context.Context, userID, collection string, entry *models.TrackerEntry) (string, error)
	GetByID(ctx context.Context, userID, collection, entryID string) (*models.TrackerEntry, error)
	// List returns entries newest first. tracker filters shared collections; pass "" to skip the filter.
	List(ctx context.Context, userID, collection, tracker string, query models.EntryQuery) ([]*models.TrackerEntry, error)
	Update(ctx context.Context, userID, collection string, entry *models.TrackerEntry) error
	Delete(ctx context.Context, userID, collection, entryID string) error
}

// InsightRepository stores AI responses at users/{uid}/aiResponses.
type InsightRepository interface {
	Create(ctx context.Context, userID string, resp *models.AIResponse) (string, error)
	GetByID(ctx context.Context, userID, insightID string) (*models.AIResponse, error)
	List(ctx context.Context, userID, tracker string, paginationParams map[string]string) ([]*models.AIResponse, error)
	Delete(ctx context.Context, userID, insightID string) error
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// AuditRepository defines the interface for audit log storage.
type AuditRepository interface {
	Create(ctx context.Context, logEntry models.AuditLog) error
}
