package core

import (
	"strings"
	"time"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
)

// Redirect targets used by the route guard.
const (
	RedirectLogin       = "/login"
	RedirectVerifyEmail = "/verify-email"
	RedirectPayment     = "/payment"
	RedirectDashboard   = "/dashboard"
)

// Reasons reported with a denied route decision.
const (
	ReasonUnauthenticated  = "unauthenticated"
	ReasonEmailNotVerified = "email_not_verified"
	ReasonPremiumRequired  = "premium_required"
	ReasonAdminRequired    = "admin_required"
)

// Claims carries the token claims the guard needs.
type Claims struct {
	UserID        string
	EmailVerified bool
	Admin         bool
}

// RouteDecision is the outcome of a route guard check.
type RouteDecision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// paths reachable without a verified email
var verificationExempt = []string{RedirectVerifyEmail, RedirectPayment, "/profile"}

// StripeRenewalGrace extends a Stripe period while the subscription is still in good standing,
// covering the gap before the renewal webhook moves premiumEndDate.
const StripeRenewalGrace = 72 * time.Hour

// IsPremiumActive reports whether the user holds premium at now. A nil end date is open ended.
func IsPremiumActive(user *models.User, now time.Time) bool {
	if user == nil || !user.IsPremium {
		return false
	}
	if user.PremiumEndDate == nil {
		return true
	}
	end := *user.PremiumEndDate
	if user.PremiumSource == models.PremiumSourceStripe && stripeActiveStatuses[user.SubscriptionStatus] {
		end = end.Add(StripeRenewalGrace)
	}
	return now.Before(end)
}

// IsAdmin reports admin access from either the custom claim or the profile flag.
func IsAdmin(user *models.User, claims *Claims) bool {
	return (claims != nil && claims.Admin) || (user != nil && user.IsAdmin)
}

// DecideRoute applies the ProtectedRoute and AdminRoute rules to a client path.
func DecideRoute(catalog *configs.Catalog, user *models.User, claims *Claims, path string, now time.Time) RouteDecision {
	if claims == nil || claims.UserID == "" {
		return RouteDecision{Redirect: RedirectLogin, Reason: ReasonUnauthenticated}
	}

	verified := claims.EmailVerified || (user != nil && user.EmailVerified)
	if !verified && !matchesAny(path, verificationExempt) {
		return RouteDecision{Redirect: RedirectVerifyEmail, Reason: ReasonEmailNotVerified}
	}

	if tracker, ok := catalog.TrackerByPath(path); ok && tracker.Premium && !IsPremiumActive(user, now) {
		return RouteDecision{Redirect: RedirectPayment, Reason: ReasonPremiumRequired}
	}

	if matchesAny(path, []string{"/admin"}) && !IsAdmin(user, claims) {
		return RouteDecision{Redirect: RedirectDashboard, Reason: ReasonAdminRequired}
	}

	return RouteDecision{Allowed: true}
}

// CanAccessTracker reports whether the user may use tracker at now.
func CanAccessTracker(user *models.User, tracker configs.Tracker, now time.Time) bool {
	return !tracker.Premium || IsPremiumActive(user, now)
}

func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
