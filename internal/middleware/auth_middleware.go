package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
)

// Context keys set by VerifyToken.
const (
	ContextUserID            = "userID"
	ContextUserEmail         = "userEmail"
	ContextUserDisplayName   = "userDisplayName"
	ContextUserPhotoURL      = "userPhotoURL"
	ContextUserEmailVerified = "userEmailVerified"
	ContextUserAdminClaim    = "userAdminClaim"
)

// ErrorResponse mirrors api.ErrorResponse; it is redeclared here to avoid an import cycle.
type ErrorResponse struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// TokenVerifier verifies Firebase ID tokens; *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthMiddleware provides Gin middleware for Firebase token authentication.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
// It panics if verifier is nil, as this is a critical setup dependency.
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("Firebase Auth client is not initialized for AuthMiddleware")
	}
	return &AuthMiddleware{verifier: verifier, logger: logger.Named("auth_middleware")}
}

// VerifyToken verifies the Bearer ID token and stores its claims in the Gin context.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header is required", Redirect: core.RedirectLogin})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
			return
		}

		token, err := m.verifier.VerifyIDToken(c.Request.Context(), parts[1])
		if err != nil {
			m.logger.Info("Error verifying Firebase ID token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token", Redirect: core.RedirectLogin})
			return
		}

		c.Set(ContextUserID, token.UID)
		if email, ok := token.Claims["email"].(string); ok {
			c.Set(ContextUserEmail, email)
		}
		if name, ok := token.Claims["name"].(string); ok {
			c.Set(ContextUserDisplayName, name)
		}
		if picture, ok := token.Claims["picture"].(string); ok {
			c.Set(ContextUserPhotoURL, picture)
		}
		verified, _ := token.Claims["email_verified"].(bool)
		c.Set(ContextUserEmailVerified, verified)
		admin, _ := token.Claims[core.AdminClaim].(bool)
		c.Set(ContextUserAdminClaim, admin)

		c.Next()
	}
}

// IdentityFromContext builds the profile identity from the verified token claims.
func IdentityFromContext(c *gin.Context) core.Identity {
	return core.Identity{
		UserID:        c.GetString(ContextUserID),
		Email:         c.GetString(ContextUserEmail),
		DisplayName:   c.GetString(ContextUserDisplayName),
		PhotoURL:      c.GetString(ContextUserPhotoURL),
		EmailVerified: c.GetBool(ContextUserEmailVerified),
	}
}

// ClaimsFromContext returns the guard claims, or nil when the request is unauthenticated.
func ClaimsFromContext(c *gin.Context) *core.Claims {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return nil
	}
	return &core.Claims{
		UserID:        userID,
		EmailVerified: c.GetBool(ContextUserEmailVerified),
		Admin:         c.GetBool(ContextUserAdminClaim),
	}
}
