package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/pkg/cache"
)

// Custom errors for the InsightService.
var (
	ErrInsightNotFound      = errors.New("insight not found")
	ErrInsightQuotaExceeded = errors.New("daily AI insight limit reached for the current plan")
	ErrInsightUnavailable   = errors.New("AI insights are temporarily unavailable")
)

const (
	defaultInsightDays = 7
	insightFallbackMsg = "The AI provider did not answer. Please try again later."
)

// InsightError reports a failed model call. Message is safe to show to the client; the
// underlying cause stays server side.
type InsightError struct {
	Message string
	cause   error
}

func (e *InsightError) Error() string {
	return ErrInsightUnavailable.Error() + ": " + e.Message
}

func (e *InsightError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInsightUnavailable}
	}
	return []error{ErrInsightUnavailable, e.cause}
}

// newInsightError keeps the provider message only when the generator marks it public.
func newInsightError(cause error) *InsightError {
	msg := insightFallbackMsg
	var pub interface{ PublicMessage() string }
	if errors.As(cause, &pub) && pub.PublicMessage() != "" {
		msg = pub.PublicMessage()
	}
	return &InsightError{Message: msg, cause: cause}
}

// insightService implements the InsightService interface.
type insightService struct {
	insightRepo  db.InsightRepository
	trackers     TrackerService
	generator    TextGenerator
	cache        cache.Cache
	cacheTTL     time.Duration
	catalog      *configs.Catalog
	auditService AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewInsightService creates a new InsightService instance. A nil cache disables caching.
func NewInsightService(
	insightRepo db.InsightRepository,
	trackers TrackerService,
	generator TextGenerator,
	c cache.Cache,
	cacheTTL time.Duration,
	catalog *configs.Catalog,
	as AuditService,
	logger *zap.Logger,
) InsightService {
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &insightService{
		insightRepo:  insightRepo,
		trackers:     trackers,
		generator:    generator,
		cache:        c,
		cacheTTL:     cacheTTL,
		catalog:      catalog,
		auditService: as,
		logger:       logger.Named("insight_service"),
		now:          time.Now,
	}
}

// Generate builds a prompt from the tracker summary, asks the model and stores the answer.
// Identical prompts are served from the cache; model failures are not retried.
func (s *insightService) Generate(ctx context.Context, user *models.User, trackerKey string, days int) (*models.AIResponse, error) {
	if days <= 0 {
		days = defaultInsightDays
	}
	now := s.now()

	limit := s.catalog.Limits(PlanFor(user, now)).InsightsPerDay
	used, err := s.insightRepo.CountSince(ctx, user.ID, WindowStart(1, now, user.Location()))
	if err != nil {
		return nil, fmt.Errorf("failed to count today's insights: %w", err)
	}
	if used >= limit {
		return nil, fmt.Errorf("%w: %d of %d used today", ErrInsightQuotaExceeded, used, limit)
	}

	summary, err := s.trackers.Summary(ctx, user, trackerKey, days)
	if err != nil {
		return nil, err
	}
	prompt := BuildInsightPrompt(summary)
	key := s.cacheKey(prompt)

	text, cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Insight cache read failed", zap.Error(err))
		cached = false
	}
	if !cached {
		text, err = s.generator.GenerateText(ctx, prompt)
		if err != nil {
			s.logger.Error("AI insight generation failed",
				zap.String("userID", user.ID),
				zap.String("tracker", summary.Tracker),
				zap.Error(err))
			return nil, newInsightError(err)
		}
		if err := s.cache.Set(ctx, key, text, s.cacheTTL); err != nil {
			s.logger.Warn("Insight cache write failed", zap.Error(err))
		}
	}

	resp := &models.AIResponse{
		UserID:    user.ID,
		Tracker:   summary.Tracker,
		Prompt:    prompt,
		Response:  text,
		Model:     s.generator.Model(),
		RangeDays: summary.Days,
		Cached:    cached,
	}
	if _, err := s.insightRepo.Create(ctx, user.ID, resp); err != nil {
		return nil, fmt.Errorf("failed to store AI response: %w", err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.ActionInsightGenerate,
		TargetType: "INSIGHT",
		TargetID:   resp.ID,
		Details:    map[string]interface{}{"tracker": resp.Tracker, "cached": cached},
	})
	return resp, nil
}

func (s *insightService) cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(s.generator.Model() + "\n" + prompt))
	return "insight:" + hex.EncodeToString(sum[:])
}

// List returns stored insights newest first.
func (s *insightService) List(ctx context.Context, userID, trackerKey string, paginationParams map[string]string) ([]*models.AIResponse, error) {
	out, err := s.insightRepo.List(ctx, userID, trackerKey, paginationParams)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: startAfter '%s'", ErrInsightNotFound, paginationParams["startAfter"])
		}
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	return out, nil
}

// Get returns one stored insight.
func (s *insightService) Get(ctx context.Context, userID, insightID string) (*models.AIResponse, error) {
	resp, err := s.insightRepo.GetByID(ctx, userID, insightID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrInsightNotFound, insightID)
		}
		return nil, err
	}
	return resp, nil
}

// Delete removes a stored insight.
func (s *insightService) Delete(ctx context.Context, userID, insightID string) error {
	if _, err := s.Get(ctx, userID, insightID); err != nil {
		return err
	}
	if err := s.insightRepo.Delete(ctx, userID, insightID); err != nil {
		return fmt.Errorf("failed to delete insight '%s': %w", insightID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionInsightDelete,
		TargetType: "INSIGHT",
		TargetID:   insightID,
	})
	return nil
}

// BuildInsightPrompt renders a tracker summary as a prompt that asks for Markdown sections and tables.
// Notes are never included.
func BuildInsightPrompt(summary *models.TrackerSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a supportive habit coach. Analyze my %s tracking data for the last %d days.\n\n", summary.TrackerName, summary.Days)

	b.WriteString("Overview:\n")
	fmt.Fprintf(&b, "- Entries logged: %d\n", summary.EntryCount)
	fmt.Fprintf(&b, "- Total minutes: %s\n", trimFloat(summary.TotalMinutes))
	if summary.Days > 0 {
		fmt.Fprintf(&b, "- Average minutes per day: %s\n", trimFloat(summary.TotalMinutes/float64(summary.Days)))
	}
	if summary.Streak.Goal > 0 {
		fmt.Fprintf(&b, "- Daily goal: %s %s\n", trimFloat(summary.Streak.Goal), summary.Unit)
	}
	fmt.Fprintf(&b, "- Current streak: %d days, longest streak: %d days\n", summary.Streak.CurrentStreak, summary.Streak.LongestStreak)
	if len(summary.TopCategories) > 0 {
		fmt.Fprintf(&b, "- Most frequent categories: %s\n", strings.Join(summary.TopCategories, ", "))
	}
	keys := make([]string, 0, len(summary.MetricTotals))
	for k := range summary.MetricTotals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- Total %s: %s\n", k, trimFloat(summary.MetricTotals[k]))
	}

	b.WriteString("\nDaily totals:\n| Date | Entries | Total | Goal met |\n|---|---|---|---|\n")
	for _, d := range summary.Daily {
		met := "no"
		if d.GoalMet {
			met = "yes"
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", d.Date, d.Entries, trimFloat(d.Total), met)
	}

	b.WriteString("\nRespond in Markdown with exactly these sections:\n")
	b.WriteString("## Summary\nTwo or three sentences on how the period went.\n")
	b.WriteString("## Trends\nA Markdown table with columns | Observation | Detail |.\n")
	b.WriteString("## Recommendations\nA bulleted list of three to five specific, encouraging suggestions.\n")
	b.WriteString("Do not give medical diagnoses.\n")
	return b.String()
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
