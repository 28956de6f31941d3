package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// ContextUser holds the loaded *models.User.
const ContextUser = "user"

// ContextTracker holds the resolved configs.Tracker for /trackers/:tracker routes.
const ContextTracker = "tracker"

// ProfileLoader loads or initializes the caller's profile; core.UserService satisfies it.
type ProfileLoader interface {
	GetOrCreate(ctx context.Context, identity core.Identity) (*models.User, bool, error)
}

// TrackerResolver resolves tracker keys for a user; core.TrackerService satisfies it.
type TrackerResolver interface {
	Resolve(user *models.User, key string) (configs.Tracker, error)
}

// AccessMiddleware enforces the ProtectedRoute and AdminRoute rules on API routes.
type AccessMiddleware struct {
	profiles ProfileLoader
	trackers TrackerResolver
	logger   *zap.Logger
}

// NewAccessMiddleware creates a new AccessMiddleware instance.
func NewAccessMiddleware(profiles ProfileLoader, trackers TrackerResolver, logger *zap.Logger) *AccessMiddleware {
	return &AccessMiddleware{
		profiles: profiles,
		trackers: trackers,
		logger:   logger.Named("access_middleware"),
	}
}

// LoadUser loads the caller's profile into the context once per request.
func (m *AccessMiddleware) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.ensureUser(c); !ok {
			return
		}
		c.Next()
	}
}

// ensureUser loads the profile unless an earlier handler did. It aborts the request on failure.
func (m *AccessMiddleware) ensureUser(c *gin.Context) (*models.User, bool) {
	if user, ok := UserFromContext(c); ok {
		return user, true
	}
	identity := IdentityFromContext(c)
	if identity.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "User not authenticated", Redirect: core.RedirectLogin})
		return nil, false
	}
	user, _, err := m.profiles.GetOrCreate(c.Request.Context(), identity)
	if err != nil {
		m.logger.Error("Failed to load user profile", zap.String("userID", identity.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load user profile"})
		return nil, false
	}
	c.Set(ContextUser, user)
	return user, true
}

// RequireVerifiedEmail rejects callers whose email is not verified with a /verify-email redirect.
func (m *AccessMiddleware) RequireVerifiedEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := m.ensureUser(c)
		if !ok {
			return
		}
		if !c.GetBool(ContextUserEmailVerified) && !user.EmailVerified {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:    "Email address is not verified",
				Redirect: core.RedirectVerifyEmail,
			})
			return
		}
		c.Next()
	}
}

// RequireTrackerAccess resolves :tracker and rejects premium trackers for users without
// active premium with a /payment redirect.
func (m *AccessMiddleware) RequireTrackerAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := m.ensureUser(c)
		if !ok {
			return
		}
		key := c.Param("tracker")
		tracker, err := m.trackers.Resolve(user, key)
		switch {
		case err == nil:
			c.Set(ContextTracker, tracker)
			c.Next()
		case errors.Is(err, core.ErrTrackerNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "Tracker not found", Details: err.Error()})
		case errors.Is(err, core.ErrPremiumRequired):
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:    "Premium subscription required",
				Details:  err.Error(),
				Redirect: core.RedirectPayment,
			})
		default:
			m.logger.Error("Failed to resolve tracker", zap.String("tracker", key), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to resolve tracker"})
		}
	}
}

// RequireAdmin allows callers with the admin claim or the profile flag.
func (m *AccessMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := m.ensureUser(c)
		if !ok {
			return
		}
		if !core.IsAdmin(user, ClaimsFromContext(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:    "Admin access required",
				Redirect: core.RedirectDashboard,
			})
			return
		}
		c.Next()
	}
}

// UserFromContext returns the profile loaded by LoadUser.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
