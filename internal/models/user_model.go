package models

import "time"

// Premium sources recorded on the user document.
const (
	PremiumSourceCoupon = "coupon"
	PremiumSourceStripe = "stripe"
	PremiumSourceAdmin  = "admin"
)

// CustomTracker is a user-defined tracker stored on the user document.
type CustomTracker struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name"`
	Unit      string    `json:"unit" firestore:"unit"`
	DailyGoal float64   `json:"dailyGoal" firestore:"dailyGoal"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

// User is the profile document at users/{uid}.
type User struct {
	ID                   string             `json:"id" firestore:"-"` // Firebase Auth UID, also the document ID
	Email                string             `json:"email" firestore:"email"`
	DisplayName          string             `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	PhotoURL             string             `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`
	EmailVerified        bool               `json:"emailVerified" firestore:"emailVerified"`
	IsAdmin              bool               `json:"isAdmin" firestore:"isAdmin"`
	IsPremium            bool               `json:"isPremium" firestore:"isPremium"`
	PremiumStartDate     *time.Time         `json:"premiumStartDate,omitempty" firestore:"premiumStartDate"`
	PremiumEndDate       *time.Time         `json:"premiumEndDate,omitempty" firestore:"premiumEndDate"`
	PremiumSource        string             `json:"premiumSource,omitempty" firestore:"premiumSource,omitempty"`
	ActiveTrackers       []string           `json:"activeTrackers" firestore:"activeTrackers"`
	CustomTrackers       []CustomTracker    `json:"customTrackers" firestore:"customTrackers"`
	DailyGoal            int                `json:"dailyGoal" firestore:"dailyGoal"` // minutes
	TrackerGoals         map[string]float64 `json:"trackerGoals,omitempty" firestore:"trackerGoals,omitempty"`
	Timezone             string             `json:"timezone,omitempty" firestore:"timezone,omitempty"`
	HasUsedCoupon        bool               `json:"hasUsedCoupon" firestore:"hasUsedCoupon"`
	CouponCode           string             `json:"couponCode,omitempty" firestore:"couponCode,omitempty"`
	StripeCustomerID     string             `json:"stripeCustomerId,omitempty" firestore:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId,omitempty" firestore:"stripeSubscriptionId,omitempty"`
	SubscriptionStatus   string             `json:"subscriptionStatus,omitempty" firestore:"subscriptionStatus,omitempty"`
	CreatedAt            time.Time          `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt            time.Time          `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// CustomTracker returns the user's custom tracker with the given ID.
func (u *User) CustomTracker(id string) (CustomTracker, bool) {
	for _, ct := range u.CustomTrackers {
		if ct.ID == id {
			return ct, true
		}
	}
	return CustomTracker{}, false
}

// Location resolves the user's time zone, defaulting to UTC.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
