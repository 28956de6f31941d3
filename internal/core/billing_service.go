package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

// Custom errors for the BillingService.
var (
	ErrBillingNotConfigured = errors.New("billing is not configured")
	ErrUseCouponRedemption  = errors.New("coupon covers the full price; redeem it instead of checking out")
	ErrStripeClient         = errors.New("stripe client operation failed")
	ErrWebhookSignature     = errors.New("stripe webhook signature verification failed")
	ErrWebhookProcessing    = errors.New("stripe webhook processing failed")
)

// BillingConfig holds Stripe settings.
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	ClientURL     string
}

// stripeAPI is the slice of the Stripe SDK the service calls.
type stripeAPI struct {
	newCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// billingService implements BillingService on Stripe Checkout and webhooks.
type billingService struct {
	userRepo     db.UserRepository
	catalog      *configs.Catalog
	auditService AuditService
	notifier     Notifier
	cfg          BillingConfig
	api          stripeAPI
	logger       *zap.Logger
	now          func() time.Time
}

// NewBillingService creates a Stripe-backed BillingService and sets the SDK key.
func NewBillingService(
	userRepo db.UserRepository,
	catalog *configs.Catalog,
	as AuditService,
	notifier Notifier,
	cfg BillingConfig,
	logger *zap.Logger,
) BillingService {
	stripe.Key = cfg.SecretKey
	return &billingService{
		userRepo:     userRepo,
		catalog:      catalog,
		auditService: as,
		notifier:     notifier,
		cfg:          cfg,
		api: stripeAPI{
			newCheckoutSession: checkoutsession.New,
			getSubscription:    subscriptionpkg.Get,
			updateSubscription: subscriptionpkg.Update,
		},
		logger: logger.Named("billing_service"),
		now:    time.Now,
	}
}

// CreateCheckoutSession returns a Stripe Checkout URL for the PRO subscription.
func (s *billingService) CreateCheckoutSession(ctx context.Context, userID, couponCode string) (string, error) {
	if s.cfg.SecretKey == "" {
		return "", ErrBillingNotConfigured
	}
	plan, _ := s.catalog.Plan(configs.PlanPro)
	if plan.StripePriceID == "" {
		return "", fmt.Errorf("%w: PRO plan has no Stripe price", ErrBillingNotConfigured)
	}
	var coupon configs.Coupon
	if couponCode != "" {
		var ok bool
		coupon, ok = s.catalog.Coupon(couponCode)
		if !ok {
			return "", fmt.Errorf("%w: '%s'", ErrInvalidCoupon, couponCode)
		}
		if coupon.PercentOff >= 100 {
			return "", ErrUseCouponRedemption
		}
		if coupon.PercentOff > 0 && coupon.StripeCouponID == "" {
			return "", fmt.Errorf("%w: coupon '%s' has no Stripe coupon", ErrBillingNotConfigured, coupon.Code)
		}
	}

	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return "", err
	}
	if IsPremiumActive(user, s.now()) {
		return "", ErrAlreadyPremium
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(plan.StripePriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:          stripe.String(s.cfg.ClientURL + "/dashboard?checkout=success"),
		CancelURL:           stripe.String(s.cfg.ClientURL + "/payment?checkout=cancel"),
		ClientReferenceID:   stripe.String(userID),
		Metadata:            map[string]string{"user_id": userID},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
	}
	// Stripe rejects sessions that set both discounts and allow_promotion_codes.
	if coupon.StripeCouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(coupon.StripeCouponID)}}
		params.Metadata["coupon_code"] = coupon.Code
	} else {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	if user.StripeCustomerID != "" {
		params.Customer = stripe.String(user.StripeCustomerID)
	} else if user.Email != "" {
		params.CustomerEmail = stripe.String(user.Email)
	}
	params.Context = ctx

	sess, err := s.api.newCheckoutSession(params)
	if err != nil {
		s.logger.Error("Failed to create Stripe checkout session", zap.String("userID", userID), zap.Error(err))
		return "", fmt.Errorf("%w: create checkout session: %v", ErrStripeClient, err)
	}
	return sess.URL, nil
}

// CancelAtPeriodEnd schedules the subscription to end with the current period.
func (s *billingService) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if s.cfg.SecretKey == "" {
		return ErrBillingNotConfigured
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := s.api.updateSubscription(subscriptionID, params); err != nil {
		return fmt.Errorf("%w: cancel subscription '%s': %v", ErrStripeClient, subscriptionID, err)
	}
	return nil
}

// HandleStripeWebhook verifies and applies a Stripe event.
func (s *billingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return ErrBillingNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}
	s.logger.Info("Stripe webhook received", zap.String("eventType", string(event.Type)), zap.String("eventID", event.ID))

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("%w: invalid checkout.session data: %v", ErrWebhookProcessing, err)
		}
		return s.handleCheckoutCompleted(ctx, &cs)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: invalid subscription data: %v", ErrWebhookProcessing, err)
		}
		return s.handleSubscriptionUpdated(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: invalid subscription data: %v", ErrWebhookProcessing, err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)
	default:
		s.logger.Debug("Unhandled Stripe webhook event", zap.String("eventType", string(event.Type)))
		return nil
	}
}

func (s *billingService) handleCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	userID := cs.Metadata["user_id"]
	if userID == "" {
		userID = cs.ClientReferenceID
	}
	if userID == "" {
		return fmt.Errorf("%w: checkout session '%s' has no user", ErrWebhookProcessing, cs.ID)
	}
	if cs.Subscription == nil || cs.Subscription.ID == "" {
		return fmt.Errorf("%w: checkout session '%s' has no subscription", ErrWebhookProcessing, cs.ID)
	}

	sub, err := s.api.getSubscription(cs.Subscription.ID, nil)
	if err != nil {
		return fmt.Errorf("%w: fetch subscription '%s': %v", ErrStripeClient, cs.Subscription.ID, err)
	}
	start, end, ok := subscriptionPeriod(sub)
	if !ok {
		return fmt.Errorf("%w: subscription '%s' has no items", ErrWebhookProcessing, sub.ID)
	}

	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return err
	}
	user.IsPremium = true
	user.PremiumStartDate = &start
	user.PremiumEndDate = &end
	user.PremiumSource = models.PremiumSourceStripe
	user.StripeSubscriptionID = sub.ID
	user.SubscriptionStatus = string(sub.Status)
	if cs.Customer != nil && cs.Customer.ID != "" {
		user.StripeCustomerID = cs.Customer.ID
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("%w: activate user '%s': %v", ErrWebhookProcessing, userID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionPremiumActivate,
		TargetType: "USER",
		TargetID:   userID,
		Details:    map[string]interface{}{"source": models.PremiumSourceStripe, "subscriptionId": sub.ID},
	})
	enqueue(ctx, s.notifier, s.logger, notify.Message{
		Type: notify.TypePremiumActivated,
		To:   user.Email,
		Name: user.DisplayName,
		Data: map[string]string{"endDate": end.Format("January 2, 2006")},
	})
	return nil
}

func (s *billingService) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userForSubscription(ctx, sub)
	if err != nil {
		return err
	}
	if start, end, ok := subscriptionPeriod(sub); ok {
		user.PremiumStartDate = &start
		user.PremiumEndDate = &end
	}
	status := string(sub.Status)
	if sub.CancelAtPeriodEnd {
		status = cancelAtPeriodEndState
	}
	user.SubscriptionStatus = status
	user.StripeSubscriptionID = sub.ID
	user.PremiumSource = models.PremiumSourceStripe
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		user.IsPremium = true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		clearPremium(user, s.now().UTC())
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("%w: update user '%s': %v", ErrWebhookProcessing, user.ID, err)
	}
	return nil
}

func (s *billingService) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userForSubscription(ctx, sub)
	if err != nil {
		return err
	}
	clearPremium(user, s.now().UTC())
	user.SubscriptionStatus = string(stripe.SubscriptionStatusCanceled)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("%w: downgrade user '%s': %v", ErrWebhookProcessing, user.ID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     "stripe",
		Action:     models.ActionPremiumExpire,
		TargetType: "USER",
		TargetID:   user.ID,
		Details:    map[string]interface{}{"subscriptionId": sub.ID},
	})
	enqueue(ctx, s.notifier, s.logger, notify.Message{
		Type: notify.TypePremiumExpired,
		To:   user.Email,
		Name: user.DisplayName,
	})
	return nil
}

// userForSubscription resolves the user from subscription metadata, falling back to the Stripe customer.
func (s *billingService) userForSubscription(ctx context.Context, sub *stripe.Subscription) (*models.User, error) {
	if userID := sub.Metadata["user_id"]; userID != "" {
		return loadUser(ctx, s.userRepo, userID)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, fmt.Errorf("%w: subscription '%s' has no user metadata or customer", ErrWebhookProcessing, sub.ID)
	}
	s.logger.Warn("Missing user_id metadata; looking up user by customer ID", zap.String("customerID", sub.Customer.ID))
	user, err := s.userRepo.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: no user for customer '%s'", ErrUserNotFound, sub.Customer.ID)
		}
		return nil, fmt.Errorf("lookup user by Stripe customer: %w", err)
	}
	return user, nil
}

// subscriptionPeriod reads the current period from the first subscription item.
func subscriptionPeriod(sub *stripe.Subscription) (time.Time, time.Time, bool) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return time.Time{}, time.Time{}, false
	}
	item := sub.Items.Data[0]
	return time.Unix(item.CurrentPeriodStart, 0).UTC(), time.Unix(item.CurrentPeriodEnd, 0).UTC(), true
}
