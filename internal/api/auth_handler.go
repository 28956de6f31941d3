package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/authmsg"
	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// AuthHandler handles account creation and Firebase action emails.
type AuthHandler struct {
	authService core.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(as core.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: as, logger: logger.Named("auth_handler")}
}

// mapAuthErrorToStatus maps AuthService errors, including Firebase auth codes, to HTTP responses.
func mapAuthErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var authErr *authmsg.Error
	switch {
	case errors.As(err, &authErr):
		if authErr.Status() >= http.StatusInternalServerError {
			logger.Error("Firebase auth operation failed", zap.Error(err))
		}
		c.JSON(authErr.Status(), ErrorResponse{Error: authErr.Error(), Details: authErr.Code})
	case errors.Is(err, core.ErrEmailAlreadyVerified):
		c.JSON(http.StatusConflict, ErrorResponse{Error: core.ErrEmailAlreadyVerified.Error()})
	case errors.Is(err, core.ErrNotifierUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: core.ErrNotifierUnavailable.Error()})
	case errors.Is(err, core.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found", Details: err.Error()})
	default:
		logger.Error("Internal Server Error in AuthHandler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: authmsg.DefaultMessage})
	}
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	user, err := h.authService.SignUp(c.Request.Context(), req)
	if err != nil {
		mapAuthErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// SendPasswordReset handles POST /auth/password-reset.
func (h *AuthHandler) SendPasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.authService.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		mapAuthErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Password reset email sent"})
}

// SendVerificationEmail handles POST /auth/verification-email.
func (h *AuthHandler) SendVerificationEmail(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.authService.SendVerificationEmail(c.Request.Context(), userID); err != nil {
		mapAuthErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Verification email sent"})
}

// ErrorMessages handles GET /auth/error-messages.
func (h *AuthHandler) ErrorMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"messages": authmsg.Table(),
		"default":  authmsg.DefaultMessage,
	})
}
