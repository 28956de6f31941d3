package core

import (
	"context"
	"io"
	"time"

	"firebase.google.com/go/v4/auth"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

// Identity is the subset of verified ID token claims used to initialize a profile.
type Identity struct {
	UserID        string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
}

// UserService defines the interface for user profile operations.
type UserService interface {
	// GetOrCreate retrieves a user by ID. If the user doesn't exist, it creates a new one with default values.
	GetOrCreate(ctx context.Context, identity Identity) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error)
	SetActiveTrackers(ctx context.Context, userID string, keys []string) (*models.User, error)
	AddCustomTracker(ctx context.Context, userID string, req models.CreateCustomTrackerRequest) (*models.CustomTracker, error)
	RemoveCustomTracker(ctx context.Context, userID, trackerID string) error
}

// SubscriptionService handles the coupon-gated trial and premium entitlements.
type SubscriptionService interface {
	Quote(code string) (*Quote, error)
	RedeemCoupon(ctx context.Context, userID, code string) (*Entitlement, error)
	Status(ctx context.Context, userID string) (*Entitlement, error)
	Cancel(ctx context.Context, userID string) (*Entitlement, error)
	// ExpireLapsed clears premium for users whose period ended at or before now and returns how many were expired.
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

// BillingService is the Stripe paid path.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, userID, couponCode string) (string, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// TrackerService manages log entries and their aggregates. Callers pass the loaded user so
// premium state, time zone and goals are resolved once per request.
type TrackerService interface {
	Resolve(user *models.User, key string) (configs.Tracker, error)
	CreateEntry(ctx context.Context, user *models.User, trackerKey string, req models.CreateEntryRequest) (*models.TrackerEntry, error)
	GetEntry(ctx context.Context, user *models.User, trackerKey, entryID string) (*models.TrackerEntry, error)
	ListEntries(ctx context.Context, user *models.User, trackerKey string, query models.EntryQuery) ([]*models.TrackerEntry, error)
	// AllEntries returns every entry in [from, to) without paging; zero bounds are open.
	AllEntries(ctx context.Context, user *models.User, trackerKey string, from, to time.Time) ([]*models.TrackerEntry, error)
	UpdateEntry(ctx context.Context, user *models.User, trackerKey, entryID string, req models.UpdateEntryRequest) (*models.TrackerEntry, error)
	DeleteEntry(ctx context.Context, user *models.User, trackerKey, entryID string) error
	Streak(ctx context.Context, user *models.User, trackerKey string) (*models.StreakStats, error)
	DailyTotals(ctx context.Context, user *models.User, trackerKey string, days int) ([]models.DailyTotal, error)
	Summary(ctx context.Context, user *models.User, trackerKey string, days int) (*models.TrackerSummary, error)
}

// InsightService generates and stores AI insights.
type InsightService interface {
	Generate(ctx context.Context, user *models.User, trackerKey string, days int) (*models.AIResponse, error)
	List(ctx context.Context, userID, trackerKey string, paginationParams map[string]string) ([]*models.AIResponse, error)
	Get(ctx context.Context, userID, insightID string) (*models.AIResponse, error)
	Delete(ctx context.Context, userID, insightID string) error
}

// ExportService writes CSV and PDF exports.
type ExportService interface {
	EntriesCSV(ctx context.Context, w io.Writer, user *models.User, trackerKey string, from, to time.Time) error
	TrackerPDF(ctx context.Context, w io.Writer, user *models.User, trackerKey string, days int) error
	InsightPDF(ctx context.Context, w io.Writer, user *models.User, insightID string) error
}

// AuthService wraps Firebase Admin SDK account operations.
type AuthService interface {
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error)
	SendVerificationEmail(ctx context.Context, userID string) error
	SendPasswordReset(ctx context.Context, email string) error
}

// AdminService backs the admin console.
type AdminService interface {
	ListUsers(ctx context.Context, paginationParams map[string]string) ([]*models.User, error)
	SetPremium(ctx context.Context, adminID, userID string, req models.SetPremiumRequest) (*models.User, error)
	SetAdmin(ctx context.Context, adminID, userID string, isAdmin bool) (*models.User, error)
	Stats(ctx context.Context) (*AdminStats, error)
}

// AuditService defines the interface for audit logging operations.
type AuditService interface {
	CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error
}

// Notifier enqueues outbound notifications.
type Notifier interface {
	Enqueue(ctx context.Context, msg notify.Message) error
}

// TextGenerator produces model text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Archiver stores generated export files.
type Archiver interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
}

// IdentityProvider is the part of the Firebase Auth client the services use; *auth.Client satisfies it.
type IdentityProvider interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	EmailVerificationLinkWithSettings(ctx context.Context, email string, settings *auth.ActionCodeSettings) (string, error)
	PasswordResetLinkWithSettings(ctx context.Context, email string, settings *auth.ActionCodeSettings) (string, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

// NoteCipher seals and opens free-text notes stored at rest.
type NoteCipher interface {
	Seal(plainText string) (string, error)
	Open(sealed string) (string, error)
}
