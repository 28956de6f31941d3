package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

// Custom errors for the SubscriptionService.
var (
	ErrInvalidCoupon      = errors.New("invalid coupon code")
	ErrCouponAlreadyUsed  = errors.New("coupon trial already used")
	ErrAlreadyPremium     = errors.New("user already has premium access")
	ErrPaymentRequired    = errors.New("coupon does not cover the full price; use checkout")
	ErrNotPremium         = errors.New("user does not have premium access")
	ErrSubscriptionUpdate = errors.New("failed to update subscription")
)

const cancelAtPeriodEndState = "cancel_at_period_end"

// Stripe statuses that keep premium past premiumEndDate until the webhook reports otherwise.
var stripeActiveStatuses = map[string]bool{"active": true, "trialing": true, "past_due": true}

// statuses of Stripe subscriptions that no longer bill
var stripeEndedStatuses = map[string]bool{"canceled": true, "incomplete_expired": true, cancelAtPeriodEndState: true}

// Quote is the price of the premium plan after an optional coupon.
type Quote struct {
	Plan          string `json:"plan"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	CouponCode    string `json:"couponCode,omitempty"`
	PercentOff    int    `json:"percentOff"`
	TrialDays     int    `json:"trialDays,omitempty"`
	SubtotalCents int64  `json:"subtotalCents"`
	DiscountCents int64  `json:"discountCents"`
	TotalCents    int64  `json:"totalCents"`
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	Total         string `json:"total"`
}

// Entitlement is a snapshot of a user's premium state.
type Entitlement struct {
	IsPremium          bool               `json:"isPremium"`
	Active             bool               `json:"active"`
	Plan               string             `json:"plan"`
	Source             string             `json:"source,omitempty"`
	StartDate          *time.Time         `json:"startDate,omitempty"`
	EndDate            *time.Time         `json:"endDate,omitempty"`
	DaysRemaining      int                `json:"daysRemaining"`
	SubscriptionStatus string             `json:"subscriptionStatus,omitempty"`
	HasUsedCoupon      bool               `json:"hasUsedCoupon"`
	Limits             configs.PlanLimits `json:"limits"`
}

// FormatCents renders integer cents as "$X.YY".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// PlanFor returns the plan a user is effectively on at now.
func PlanFor(user *models.User, now time.Time) string {
	if IsPremiumActive(user, now) {
		return configs.PlanPro
	}
	return configs.PlanFree
}

// subscriptionService implements the SubscriptionService interface.
type subscriptionService struct {
	userRepo     db.UserRepository
	catalog      *configs.Catalog
	auditService AuditService
	notifier     Notifier
	billing      BillingService // nil when Stripe is not configured
	logger       *zap.Logger
	now          func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService instance. billing may be nil.
func NewSubscriptionService(
	userRepo db.UserRepository,
	catalog *configs.Catalog,
	as AuditService,
	notifier Notifier,
	billing BillingService,
	logger *zap.Logger,
) SubscriptionService {
	return &subscriptionService{
		userRepo:     userRepo,
		catalog:      catalog,
		auditService: as,
		notifier:     notifier,
		billing:      billing,
		logger:       logger.Named("subscription_service"),
		now:          time.Now,
	}
}

// Quote prices the PRO plan with an optional coupon. An empty code means no discount.
func (s *subscriptionService) Quote(code string) (*Quote, error) {
	plan, _ := s.catalog.Plan(configs.PlanPro)
	q := &Quote{
		Plan:          plan.ID,
		Currency:      plan.Currency,
		Interval:      plan.Interval,
		SubtotalCents: plan.PriceCents,
	}
	if strings.TrimSpace(code) != "" {
		coupon, ok := s.catalog.Coupon(code)
		if !ok || !strings.EqualFold(coupon.Plan, plan.ID) {
			return nil, fmt.Errorf("%w: '%s'", ErrInvalidCoupon, strings.TrimSpace(code))
		}
		q.CouponCode = strings.ToUpper(coupon.Code)
		q.PercentOff = coupon.PercentOff
		q.TrialDays = coupon.TrialDays
		q.DiscountCents = int64(math.Round(float64(plan.PriceCents) * float64(coupon.PercentOff) / 100))
	}
	q.TotalCents = q.SubtotalCents - q.DiscountCents
	q.Subtotal = FormatCents(q.SubtotalCents)
	q.Discount = FormatCents(q.DiscountCents)
	q.Total = FormatCents(q.TotalCents)
	return q, nil
}

// RedeemCoupon activates a free trial for a coupon that covers the full price.
func (s *subscriptionService) RedeemCoupon(ctx context.Context, userID, code string) (*Entitlement, error) {
	quote, err := s.Quote(code)
	if err != nil {
		return nil, err
	}
	if quote.CouponCode == "" {
		return nil, fmt.Errorf("%w: coupon code is required", ErrInvalidCoupon)
	}
	if quote.TotalCents > 0 {
		return nil, fmt.Errorf("%w: total is %s", ErrPaymentRequired, quote.Total)
	}

	now := s.now().UTC()
	trialDays := quote.TrialDays
	if trialDays <= 0 {
		plan, _ := s.catalog.Plan(configs.PlanPro)
		trialDays = plan.PeriodDays
	}
	end := now.AddDate(0, 0, trialDays)

	// The single-use check and the grant commit together so concurrent redemptions cannot both pass.
	user, err := s.userRepo.UpdateInTransaction(ctx, userID, func(user *models.User) error {
		if user.HasUsedCoupon {
			return ErrCouponAlreadyUsed
		}
		if IsPremiumActive(user, now) {
			return ErrAlreadyPremium
		}
		user.IsPremium = true
		user.PremiumStartDate = &now
		user.PremiumEndDate = &end
		user.PremiumSource = models.PremiumSourceCoupon
		user.HasUsedCoupon = true
		user.CouponCode = quote.CouponCode
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCouponAlreadyUsed), errors.Is(err, ErrAlreadyPremium):
			return nil, err
		case errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		default:
			return nil, fmt.Errorf("%w for user '%s': %v", ErrSubscriptionUpdate, userID, err)
		}
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionCouponRedeem,
		TargetType: "USER",
		TargetID:   userID,
		Details: map[string]interface{}{
			"couponCode": quote.CouponCode,
			"trialDays":  trialDays,
			"total":      quote.Total,
		},
	})
	enqueue(ctx, s.notifier, s.logger, notify.Message{
		Type: notify.TypePremiumActivated,
		To:   user.Email,
		Name: user.DisplayName,
		Data: map[string]string{"endDate": end.Format("January 2, 2006")},
	})
	s.logger.Info("Coupon redeemed", zap.String("userID", userID), zap.String("coupon", quote.CouponCode))
	return s.entitlement(user, now), nil
}

// Status returns the user's entitlement snapshot.
func (s *subscriptionService) Status(ctx context.Context, userID string) (*Entitlement, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.entitlement(user, s.now()), nil
}

// Cancel ends premium. Stripe subscriptions are cancelled at period end and downgrade through the
// webhook; coupon and admin grants end immediately.
func (s *subscriptionService) Cancel(ctx context.Context, userID string) (*Entitlement, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !user.IsPremium {
		return nil, ErrNotPremium
	}

	// A live Stripe subscription is cancelled even when an admin grant replaced it as the source.
	stripeSource := user.PremiumSource == models.PremiumSourceStripe
	switch {
	case user.StripeSubscriptionID != "" && !stripeEndedStatuses[user.SubscriptionStatus] && s.billing != nil:
		if err := s.billing.CancelAtPeriodEnd(ctx, user.StripeSubscriptionID); err != nil {
			return nil, err
		}
		user.SubscriptionStatus = cancelAtPeriodEndState
		if !stripeSource {
			clearPremium(user, now)
		}
	case stripeSource && user.SubscriptionStatus == cancelAtPeriodEndState:
		// already scheduled; the paid period runs out
	default:
		clearPremium(user, now)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("%w for user '%s': %v", ErrSubscriptionUpdate, userID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionPremiumCancel,
		TargetType: "USER",
		TargetID:   userID,
		Details:    map[string]interface{}{"source": user.PremiumSource},
	})
	return s.entitlement(user, now), nil
}

// ExpireLapsed clears premium for users whose period has ended. Stripe subscriptions still
// in good standing are left for the webhook to extend.
func (s *subscriptionService) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	users, err := s.userRepo.ListLapsedPremium(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed premium users: %w", err)
	}
	expired := 0
	for _, user := range users {
		if user.PremiumSource == models.PremiumSourceStripe && stripeActiveStatuses[user.SubscriptionStatus] {
			continue
		}
		endDate := ""
		if user.PremiumEndDate != nil {
			endDate = user.PremiumEndDate.Format("January 2, 2006")
		}
		clearPremium(user, now)
		if err := s.userRepo.Update(ctx, user); err != nil {
			s.logger.Error("Failed to expire premium", zap.String("userID", user.ID), zap.Error(err))
			continue
		}
		expired++
		recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
			UserID:     "system",
			Action:     models.ActionPremiumExpire,
			TargetType: "USER",
			TargetID:   user.ID,
		})
		enqueue(ctx, s.notifier, s.logger, notify.Message{
			Type: notify.TypePremiumExpired,
			To:   user.Email,
			Name: user.DisplayName,
			Data: map[string]string{"endDate": endDate},
		})
	}
	return expired, nil
}

func (s *subscriptionService) entitlement(user *models.User, now time.Time) *Entitlement {
	active := IsPremiumActive(user, now)
	plan := PlanFor(user, now)
	e := &Entitlement{
		IsPremium:          user.IsPremium,
		Active:             active,
		Plan:               plan,
		Source:             user.PremiumSource,
		StartDate:          user.PremiumStartDate,
		EndDate:            user.PremiumEndDate,
		SubscriptionStatus: user.SubscriptionStatus,
		HasUsedCoupon:      user.HasUsedCoupon,
		Limits:             s.catalog.Limits(plan),
	}
	if active && user.PremiumEndDate != nil {
		e.DaysRemaining = int(math.Ceil(user.PremiumEndDate.Sub(now).Hours() / 24))
	}
	return e
}

// clearPremium removes the entitlement and closes the period at now.
func clearPremium(user *models.User, now time.Time) {
	user.IsPremium = false
	if user.PremiumEndDate == nil || user.PremiumEndDate.After(now) {
		end := now
		user.PremiumEndDate = &end
	}
}
