package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/core"
	"trackflow-backend/internal/middleware"
	"trackflow-backend/internal/models"
)

// UserHandler handles user-profile related API endpoints.
type UserHandler struct {
	userService core.UserService
	catalog     *configs.Catalog
	logger      *zap.Logger
	now         func() time.Time
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us core.UserService, catalog *configs.Catalog, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: us, catalog: catalog, logger: logger.Named("user_handler"), now: time.Now}
}

// mapUserErrorToStatus maps errors from core.UserService to HTTP status codes and ErrorResponse.
func mapUserErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "User profile not found"}
	case errors.Is(err, core.ErrTrackerNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: core.ErrTrackerNotFound.Error(), Details: err.Error()}
	case errors.Is(err, core.ErrPremiumRequired):
		statusCode = http.StatusForbidden
		errResponse = ErrorResponse{Error: core.ErrPremiumRequired.Error(), Details: err.Error(), Redirect: core.RedirectPayment}
	case errors.Is(err, core.ErrCustomTrackerLimit):
		statusCode = http.StatusPaymentRequired
		errResponse = ErrorResponse{Error: core.ErrCustomTrackerLimit.Error(), Redirect: core.RedirectPayment}
	case errors.Is(err, core.ErrCustomTrackerExists):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: core.ErrCustomTrackerExists.Error()}
	case errors.Is(err, core.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Invalid input", Details: err.Error()}
	default:
		logger.Error("Internal Server Error in UserHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// InitializeUserProfile handles POST /users/initialize.
// Called after client-side Firebase login/signup to ensure the backend profile exists.
func (h *UserHandler) InitializeUserProfile(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	if identity.UserID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: User ID not found in context"})
		return
	}

	user, created, err := h.userService.GetOrCreate(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("Failed to initialize user profile", zap.String("userID", identity.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to initialize user profile", Details: err.Error()})
		return
	}
	if created {
		h.logger.Info("User profile created", zap.String("userID", identity.UserID))
		c.JSON(http.StatusCreated, user)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetCurrentUserProfile handles GET /users/me.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateCurrentUserProfile handles PATCH /users/me.
func (h *UserHandler) UpdateCurrentUserProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	updated, err := h.userService.UpdateProfile(c.Request.Context(), user.ID, req)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// SetActiveTrackers handles PUT /users/me/trackers.
func (h *UserHandler) SetActiveTrackers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.SetActiveTrackersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	updated, err := h.userService.SetActiveTrackers(c.Request.Context(), user.ID, req.ActiveTrackers)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// AddCustomTracker handles POST /users/me/custom-trackers.
func (h *UserHandler) AddCustomTracker(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateCustomTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	tracker, err := h.userService.AddCustomTracker(c.Request.Context(), user.ID, req)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tracker)
}

// RemoveCustomTracker handles DELETE /users/me/custom-trackers/:trackerId.
func (h *UserHandler) RemoveCustomTracker(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.userService.RemoveCustomTracker(c.Request.Context(), user.ID, c.Param("trackerId")); err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckAccess handles GET /access?path=... and returns the route guard decision for the client router.
func (h *UserHandler) CheckAccess(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Query parameter 'path' is required"})
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, core.DecideRoute(h.catalog, user, middleware.ClaimsFromContext(c), path, h.now()))
}
