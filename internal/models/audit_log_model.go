package models

import "time"

// Audit actions.
const (
	ActionUserInitialize   = "USER_INITIALIZE"
	ActionUserSignUp       = "USER_SIGNUP"
	ActionProfileUpdate    = "PROFILE_UPDATE"
	ActionCouponRedeem     = "COUPON_REDEEM"
	ActionPremiumActivate  = "PREMIUM_ACTIVATE"
	ActionPremiumCancel    = "PREMIUM_CANCEL"
	ActionPremiumExpire    = "PREMIUM_EXPIRE"
	ActionAdminSetPremium  = "ADMIN_SET_PREMIUM"
	ActionAdminSetAdmin    = "ADMIN_SET_ADMIN"
	ActionEntryCreate      = "ENTRY_CREATE"
	ActionEntryUpdate      = "ENTRY_UPDATE"
	ActionEntryDelete      = "ENTRY_DELETE"
	ActionInsightGenerate  = "INSIGHT_GENERATE"
	ActionInsightDelete    = "INSIGHT_DELETE"
	ActionCustomTrackerAdd = "CUSTOM_TRACKER_ADD"
	ActionCustomTrackerDel = "CUSTOM_TRACKER_DELETE"
)

// AuditLog represents an audit trail event.
type AuditLog struct {
	ID         string                 `json:"id" firestore:"-"`
	Timestamp  time.Time              `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	UserID     string                 `json:"userId" firestore:"userId"` // who performed the action
	Action     string                 `json:"action" firestore:"action"`
	TargetType string                 `json:"targetType,omitempty" firestore:"targetType,omitempty"` // USER, ENTRY, INSIGHT
	TargetID   string                 `json:"targetId,omitempty" firestore:"targetId,omitempty"`
	IPAddress  string                 `json:"ipAddress,omitempty" firestore:"ipAddress,omitempty"`
	UserAgent  string                 `json:"userAgent,omitempty" firestore:"userAgent,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" firestore:"details,omitempty"`
}
