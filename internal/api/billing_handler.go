package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/models"
)

// maxWebhookBytes bounds the Stripe webhook body.
const maxWebhookBytes = 65536

// BillingHandler handles billing-related API endpoints. A nil service means Stripe is not configured.
type BillingHandler struct {
	billingService core.BillingService
	logger         *zap.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(bs core.BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billingService: bs, logger: logger.Named("billing_handler")}
}

// mapBillingErrorToStatus maps errors from core.BillingService to HTTP status codes and ErrorResponse.
func mapBillingErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrBillingNotConfigured):
		statusCode = http.StatusServiceUnavailable
		errResponse = ErrorResponse{Error: core.ErrBillingNotConfigured.Error()}
	case errors.Is(err, core.ErrUseCouponRedemption):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: core.ErrUseCouponRedemption.Error()}
	case errors.Is(err, core.ErrInvalidCoupon):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: core.ErrInvalidCoupon.Error()}
	case errors.Is(err, core.ErrAlreadyPremium):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: core.ErrAlreadyPremium.Error(), Redirect: core.RedirectDashboard}
	case errors.Is(err, core.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "User profile not found"}
	case errors.Is(err, core.ErrStripeClient):
		logger.Error("Stripe Client Error", zap.Error(err))
		statusCode = http.StatusServiceUnavailable
		errResponse = ErrorResponse{Error: "Payment provider error", Details: "Could not complete the operation with the payment provider."}
	case errors.Is(err, core.ErrWebhookSignature):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Webhook signature verification failed"}
	case errors.Is(err, core.ErrWebhookProcessing):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Webhook processing error", Details: err.Error()}
	default:
		logger.Error("Internal Server Error in BillingHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// CreateCheckoutSession handles POST /billing/checkout.
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	if h.billingService == nil {
		mapBillingErrorToStatus(c, h.logger, core.ErrBillingNotConfigured)
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	url, err := h.billingService.CreateCheckoutSession(c.Request.Context(), userID, req.CouponCode)
	if err != nil {
		mapBillingErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{URL: url})
}

// HandleStripeWebhook handles POST /billing/webhooks/stripe.
// This endpoint is public; Stripe authenticates it with the Stripe-Signature header.
func (h *BillingHandler) HandleStripeWebhook(c *gin.Context) {
	if h.billingService == nil {
		mapBillingErrorToStatus(c, h.logger, core.ErrBillingNotConfigured)
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing Stripe-Signature header"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Error("Error reading Stripe webhook body", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Failed to read webhook payload", Details: err.Error()})
		return
	}

	if err := h.billingService.HandleStripeWebhook(c.Request.Context(), payload, signature); err != nil {
		h.logger.Warn("Error handling Stripe webhook", zap.Error(err))
		mapBillingErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Webhook received successfully"})
}
