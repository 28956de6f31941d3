package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

type stubBilling struct {
	cancelled []string
	err       error
}

func (b *stubBilling) CreateCheckoutSession(ctx context.Context, userID, couponCode string) (string, error) {
	return "", nil
}

func (b *stubBilling) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	return nil
}

func (b *stubBilling) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	b.cancelled = append(b.cancelled, subscriptionID)
	return b.err
}

type subscriptionFixture struct {
	svc      *subscriptionService
	users    *memUserRepo
	audit    *stubAudit
	notifier *stubNotifier
	billing  *stubBilling
	now      time.Time
}

func newSubscriptionFixture(users ...*models.User) *subscriptionFixture {
	f := &subscriptionFixture{
		users:    newMemUserRepo(users...),
		audit:    &stubAudit{},
		notifier: &stubNotifier{},
		billing:  &stubBilling{},
		now:      time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	svc := NewSubscriptionService(f.users, configs.DefaultCatalog(), f.audit, f.notifier, f.billing, zap.NewNop()).(*subscriptionService)
	svc.now = fixedClock(f.now)
	f.svc = svc
	return f
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$0.00", FormatCents(0))
	assert.Equal(t, "$9.99", FormatCents(999))
	assert.Equal(t, "$10.05", FormatCents(1005))
	assert.Equal(t, "-$9.99", FormatCents(-999))
}

func TestQuote(t *testing.T) {
	f := newSubscriptionFixture()

	q, err := f.svc.Quote("")
	require.NoError(t, err)
	assert.Equal(t, "$9.99", q.Total)
	assert.Equal(t, int64(999), q.TotalCents)
	assert.Empty(t, q.CouponCode)

	q, err = f.svc.Quote(" amipro ")
	require.NoError(t, err)
	assert.Equal(t, "AMIPRO", q.CouponCode)
	assert.Equal(t, 100, q.PercentOff)
	assert.Equal(t, 30, q.TrialDays)
	assert.Equal(t, "$9.99", q.Subtotal)
	assert.Equal(t, "$9.99", q.Discount)
	assert.Equal(t, "$0.00", q.Total)
	assert.Equal(t, int64(0), q.TotalCents)

	_, err = f.svc.Quote("FREEBIE")
	assert.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestRedeemCouponActivatesTrial(t *testing.T) {
	f := newSubscriptionFixture(&models.User{ID: "u1", Email: "a@example.com", DisplayName: "Ada"})

	ent, err := f.svc.RedeemCoupon(context.Background(), "u1", "AMIPRO")
	require.NoError(t, err)
	assert.True(t, ent.Active)
	assert.Equal(t, configs.PlanPro, ent.Plan)
	assert.Equal(t, 30, ent.DaysRemaining)
	assert.Equal(t, models.PremiumSourceCoupon, ent.Source)

	stored := f.users.get("u1")
	require.NotNil(t, stored.PremiumStartDate)
	require.NotNil(t, stored.PremiumEndDate)
	assert.True(t, stored.IsPremium)
	assert.True(t, stored.HasUsedCoupon)
	assert.Equal(t, "AMIPRO", stored.CouponCode)
	assert.Equal(t, f.now, *stored.PremiumStartDate)
	assert.Equal(t, f.now.AddDate(0, 0, 30), *stored.PremiumEndDate)

	assert.Equal(t, []string{models.ActionCouponRedeem}, f.audit.actions())
	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, notify.TypePremiumActivated, f.notifier.messages[0].Type)
	assert.Equal(t, "July 10, 2025", f.notifier.messages[0].Data["endDate"])
}

func TestRedeemCouponRejections(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		user    *models.User
		code    string
		wantErr error
	}{
		{"unknown coupon", &models.User{ID: "u1"}, "NOPE", ErrInvalidCoupon},
		{"empty coupon", &models.User{ID: "u1"}, "", ErrInvalidCoupon},
		{"already used", &models.User{ID: "u1", HasUsedCoupon: true}, "AMIPRO", ErrCouponAlreadyUsed},
		{"already premium", &models.User{ID: "u1", IsPremium: true, PremiumEndDate: timePtr(now.AddDate(0, 0, 2))}, "AMIPRO", ErrAlreadyPremium},
		{"missing user", &models.User{ID: "other"}, "AMIPRO", ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubscriptionFixture(tt.user)
			_, err := f.svc.RedeemCoupon(context.Background(), "u1", tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.notifier.messages)
		})
	}
}

func TestRedeemCouponConcurrentRequestsGrantOnce(t *testing.T) {
	f := newSubscriptionFixture(&models.User{ID: "u1", Email: "a@example.com"})

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RedeemCoupon(context.Background(), "u1", "AMIPRO")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrCouponAlreadyUsed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.users.writeCount())
	assert.Len(t, f.notifier.messages, 1)
}

func TestRedeemCouponStoreFailure(t *testing.T) {
	f := newSubscriptionFixture(&models.User{ID: "u1"})
	f.users.updateErr = errors.New("deadline exceeded")

	_, err := f.svc.RedeemCoupon(context.Background(), "u1", "AMIPRO")
	assert.ErrorIs(t, err, ErrSubscriptionUpdate)
	assert.False(t, f.users.get("u1").HasUsedCoupon)
}

func TestRedeemCouponPartialDiscountNeedsPayment(t *testing.T) {
	catalog, err := configs.ParseCatalog([]byte(`
trackers:
  - {key: coding, name: Coding, path: /coding, collection: coding_sessions, goal_metric: minutes}
plans:
  - {id: FREE, name: Free, limits: {max_custom_trackers: 1, insights_per_day: 3}}
  - {id: PRO, name: Pro, price_cents: 999, currency: USD, interval: month, period_days: 30}
coupons:
  - {code: HALF, plan: PRO, percent_off: 50}
`))
	require.NoError(t, err)
	f := newSubscriptionFixture(&models.User{ID: "u1"})
	f.svc.catalog = catalog

	q, err := f.svc.Quote("half")
	require.NoError(t, err)
	assert.Equal(t, "$5.00", q.Discount)
	assert.Equal(t, "$4.99", q.Total)

	_, err = f.svc.RedeemCoupon(context.Background(), "u1", "HALF")
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestStatusAfterTrialEnds(t *testing.T) {
	f := newSubscriptionFixture(&models.User{
		ID:             "u1",
		IsPremium:      true,
		PremiumEndDate: timePtr(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		HasUsedCoupon:  true,
	})
	ent, err := f.svc.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ent.IsPremium)
	assert.False(t, ent.Active)
	assert.Equal(t, configs.PlanFree, ent.Plan)
	assert.Equal(t, 0, ent.DaysRemaining)
	assert.Equal(t, 1, ent.Limits.MaxCustomTrackers)
}

func TestCancel(t *testing.T) {
	t.Run("coupon trial ends now", func(t *testing.T) {
		f := newSubscriptionFixture(&models.User{
			ID: "u1", IsPremium: true, PremiumSource: models.PremiumSourceCoupon,
			PremiumEndDate: timePtr(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
		})
		ent, err := f.svc.Cancel(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, ent.Active)
		stored := f.users.get("u1")
		assert.False(t, stored.IsPremium)
		assert.Equal(t, f.now, *stored.PremiumEndDate)
		assert.Empty(t, f.billing.cancelled)
	})

	t.Run("stripe cancels at period end", func(t *testing.T) {
		end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
		f := newSubscriptionFixture(&models.User{
			ID: "u1", IsPremium: true, PremiumSource: models.PremiumSourceStripe,
			StripeSubscriptionID: "sub_123", SubscriptionStatus: "active", PremiumEndDate: &end,
		})
		ent, err := f.svc.Cancel(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.Active)
		assert.Equal(t, []string{"sub_123"}, f.billing.cancelled)
		stored := f.users.get("u1")
		assert.True(t, stored.IsPremium)
		assert.Equal(t, "cancel_at_period_end", stored.SubscriptionStatus)
	})

	t.Run("stripe failure leaves premium untouched", func(t *testing.T) {
		f := newSubscriptionFixture(&models.User{
			ID: "u1", IsPremium: true, PremiumSource: models.PremiumSourceStripe, StripeSubscriptionID: "sub_123",
		})
		f.billing.err = errors.New("stripe down")
		_, err := f.svc.Cancel(context.Background(), "u1")
		assert.Error(t, err)
		assert.True(t, f.users.get("u1").IsPremium)
	})

	t.Run("admin grant over stripe still cancels billing", func(t *testing.T) {
		f := newSubscriptionFixture(&models.User{
			ID: "u1", IsPremium: true, PremiumSource: models.PremiumSourceAdmin,
			StripeSubscriptionID: "sub_123", SubscriptionStatus: "active",
			PremiumEndDate: timePtr(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)),
		})
		ent, err := f.svc.Cancel(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, ent.Active)
		assert.Equal(t, []string{"sub_123"}, f.billing.cancelled)
		stored := f.users.get("u1")
		assert.False(t, stored.IsPremium)
		assert.Equal(t, "cancel_at_period_end", stored.SubscriptionStatus)
	})

	t.Run("already scheduled stripe cancel keeps paid period", func(t *testing.T) {
		f := newSubscriptionFixture(&models.User{
			ID: "u1", IsPremium: true, PremiumSource: models.PremiumSourceStripe,
			StripeSubscriptionID: "sub_123", SubscriptionStatus: "cancel_at_period_end",
			PremiumEndDate: timePtr(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
		})
		ent, err := f.svc.Cancel(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.Active)
		assert.Empty(t, f.billing.cancelled)
	})

	t.Run("not premium", func(t *testing.T) {
		f := newSubscriptionFixture(&models.User{ID: "u1"})
		_, err := f.svc.Cancel(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrNotPremium)
	})
}

func TestExpireLapsed(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	past := timePtr(now.AddDate(0, 0, -1))
	f := newSubscriptionFixture(
		&models.User{ID: "coupon", Email: "c@example.com", IsPremium: true, PremiumSource: models.PremiumSourceCoupon, PremiumEndDate: past},
		&models.User{ID: "stripe-active", IsPremium: true, PremiumSource: models.PremiumSourceStripe, SubscriptionStatus: "active", PremiumEndDate: past},
		&models.User{ID: "stripe-cancelled", Email: "s@example.com", IsPremium: true, PremiumSource: models.PremiumSourceStripe, SubscriptionStatus: "cancel_at_period_end", PremiumEndDate: past},
		&models.User{ID: "current", IsPremium: true, PremiumEndDate: timePtr(now.AddDate(0, 0, 3))},
	)

	n, err := f.svc.ExpireLapsed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, f.users.get("coupon").IsPremium)
	assert.False(t, f.users.get("stripe-cancelled").IsPremium)
	assert.True(t, f.users.get("stripe-active").IsPremium)
	assert.True(t, f.users.get("current").IsPremium)

	require.Len(t, f.notifier.messages, 2)
	for _, m := range f.notifier.messages {
		assert.Equal(t, notify.TypePremiumExpired, m.Type)
		assert.Equal(t, "June 9, 2025", m.Data["endDate"])
	}
	assert.Equal(t, []string{models.ActionPremiumExpire, models.ActionPremiumExpire}, f.audit.actions())
}
