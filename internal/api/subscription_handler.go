package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// SubscriptionHandler serves the coupon trial and entitlement endpoints.
type SubscriptionHandler struct {
	subscriptionService core.SubscriptionService
	logger              *zap.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(ss core.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: ss, logger: logger.Named("subscription_handler")}
}

func mapSubscriptionErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrInvalidCoupon):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: core.ErrInvalidCoupon.Error()}
	case errors.Is(err, core.ErrCouponAlreadyUsed):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: core.ErrCouponAlreadyUsed.Error()}
	case errors.Is(err, core.ErrAlreadyPremium):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: core.ErrAlreadyPremium.Error(), Redirect: core.RedirectDashboard}
	case errors.Is(err, core.ErrPaymentRequired):
		statusCode = http.StatusPaymentRequired
		errResponse = ErrorResponse{Error: core.ErrPaymentRequired.Error()}
	case errors.Is(err, core.ErrNotPremium):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: core.ErrNotPremium.Error()}
	case errors.Is(err, core.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "User profile not found"}
	case errors.Is(err, core.ErrStripeClient):
		logger.Error("Stripe Client Error", zap.Error(err))
		statusCode = http.StatusServiceUnavailable
		errResponse = ErrorResponse{Error: "Payment provider error", Details: "Could not complete the operation with the payment provider."}
	default:
		logger.Error("Internal Server Error in SubscriptionHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// GetStatus handles GET /subscription.
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	entitlement, err := h.subscriptionService.Status(c.Request.Context(), userID)
	if err != nil {
		mapSubscriptionErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entitlement)
}

// Quote handles POST /subscription/quote. An empty coupon quotes the full price.
func (h *SubscriptionHandler) Quote(c *gin.Context) {
	var req models.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	quote, err := h.subscriptionService.Quote(req.CouponCode)
	if err != nil {
		mapSubscriptionErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// RedeemCoupon handles POST /subscription/coupon.
func (h *SubscriptionHandler) RedeemCoupon(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if req.CouponCode == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "couponCode is required"})
		return
	}
	entitlement, err := h.subscriptionService.RedeemCoupon(c.Request.Context(), userID, req.CouponCode)
	if err != nil {
		mapSubscriptionErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entitlement)
}

// Cancel handles POST /subscription/cancel.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	entitlement, err := h.subscriptionService.Cancel(c.Request.Context(), userID)
	if err != nil {
		mapSubscriptionErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entitlement)
}
