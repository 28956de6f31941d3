package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// AdminHandler backs the admin console.
type AdminHandler struct {
	adminService core.AdminService
	logger       *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(as core.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{adminService: as, logger: logger.Named("admin_handler")}
}

func mapAdminErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found", Details: err.Error()})
	case errors.Is(err, core.ErrCannotDemoteSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: core.ErrCannotDemoteSelf.Error()})
	default:
		logger.Error("Internal Server Error in AdminHandler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "An unexpected internal server error occurred."})
	}
}

// ListUsers handles GET /admin/users?limit&startAfter.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.adminService.ListUsers(c.Request.Context(), paginationParams(c))
	if err != nil {
		mapAdminErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// SetPremium handles PUT /admin/users/:userId/premium.
func (h *AdminHandler) SetPremium(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.SetPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	user, err := h.adminService.SetPremium(c.Request.Context(), adminID, c.Param("userId"), req)
	if err != nil {
		mapAdminErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetAdmin handles PUT /admin/users/:userId/admin.
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	user, err := h.adminService.SetAdmin(c.Request.Context(), adminID, c.Param("userId"), req.IsAdmin)
	if err != nil {
		mapAdminErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetStats handles GET /admin/stats.
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		mapAdminErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
