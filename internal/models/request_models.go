package models

import "time"

// UpdateProfileRequest patches profile fields; nil pointers are left unchanged.
type UpdateProfileRequest struct {
	DisplayName  *string            `json:"displayName" binding:"omitempty,max=80"`
	DailyGoal    *int               `json:"dailyGoal" binding:"omitempty,min=1,max=1440"`
	Timezone     *string            `json:"timezone" binding:"omitempty,timezone"`
	TrackerGoals map[string]float64 `json:"trackerGoals" binding:"omitempty,dive,keys,tracker_key,endkeys,gte=0"`
}

// SetActiveTrackersRequest replaces the dashboard tracker list.
type SetActiveTrackersRequest struct {
	ActiveTrackers []string `json:"activeTrackers" binding:"required,dive,required"`
}

// CreateCustomTrackerRequest defines a user tracker.
type CreateCustomTrackerRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=40"`
	Unit      string  `json:"unit" binding:"omitempty,max=20"`
	DailyGoal float64 `json:"dailyGoal" binding:"gte=0"`
}

// CreateEntryRequest logs an activity.
type CreateEntryRequest struct {
	LoggedAt *time.Time         `json:"loggedAt"`
	Minutes  float64            `json:"minutes" binding:"gte=0,lte=1440"`
	Category string             `json:"category" binding:"omitempty,max=60"`
	Metrics  map[string]float64 `json:"metrics"`
	Notes    string             `json:"notes" binding:"omitempty,max=5000"`
}

// UpdateEntryRequest patches an entry; nil pointers are left unchanged.
type UpdateEntryRequest struct {
	LoggedAt *time.Time         `json:"loggedAt"`
	Minutes  *float64           `json:"minutes" binding:"omitempty,gte=0,lte=1440"`
	Category *string            `json:"category" binding:"omitempty,max=60"`
	Metrics  map[string]float64 `json:"metrics"`
	Notes    *string            `json:"notes" binding:"omitempty,max=5000"`
}

// CouponRequest carries a coupon code for quote and redemption.
type CouponRequest struct {
	CouponCode string `json:"couponCode" binding:"omitempty,coupon_code"`
}

// GenerateInsightRequest asks for an AI insight over the last N days.
type GenerateInsightRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=90"`
}

// SignUpRequest creates an email/password account through the Admin SDK.
type SignUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName" binding:"omitempty,max=80"`
}

// PasswordResetRequest asks for a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SetPremiumRequest is the admin toggle for premium access.
type SetPremiumRequest struct {
	IsPremium bool `json:"isPremium"`
	Days      int  `json:"days" binding:"omitempty,min=1,max=3650"`
}

// SetAdminRequest is the admin toggle for admin access.
type SetAdminRequest struct {
	IsAdmin bool `json:"isAdmin"`
}
