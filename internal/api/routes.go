package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/core"
	"trackflow-backend/internal/middleware"
)

// Services bundles what the routes need. BillingService may be nil when Stripe is not configured.
type Services struct {
	TokenVerifier       middleware.TokenVerifier
	UserService         core.UserService
	AuthService         core.AuthService
	SubscriptionService core.SubscriptionService
	BillingService      core.BillingService
	TrackerService      core.TrackerService
	InsightService      core.InsightService
	ExportService       core.ExportService
	AdminService        core.AdminService
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS) is applied in main before this is called.
func SetupRoutes(router *gin.Engine, catalog *configs.Catalog, logger *zap.Logger, svc Services) {
	if err := RegisterValidators(catalog); err != nil {
		logger.Fatal("CRITICAL_SETUP_ERROR: Failed to register request validators", zap.Error(err))
	}

	authMW := middleware.NewAuthMiddleware(svc.TokenVerifier, logger)
	accessMW := middleware.NewAccessMiddleware(svc.UserService, svc.TrackerService, logger)

	authHandler := NewAuthHandler(svc.AuthService, logger)
	userHandler := NewUserHandler(svc.UserService, catalog, logger)
	subscriptionHandler := NewSubscriptionHandler(svc.SubscriptionService, logger)
	billingHandler := NewBillingHandler(svc.BillingService, logger)
	trackerHandler := NewTrackerHandler(svc.TrackerService, logger)
	insightHandler := NewInsightHandler(svc.InsightService, svc.ExportService, logger)
	exportHandler := NewExportHandler(svc.ExportService, logger)
	adminHandler := NewAdminHandler(svc.AdminService, logger)

	apiV1 := router.Group("/api/v1")
	{
		// --- Public Endpoints ---
		apiV1.GET("/catalog", func(c *gin.Context) {
			c.JSON(http.StatusOK, catalog)
		})
		apiV1.GET("/auth/error-messages", authHandler.ErrorMessages)
		apiV1.POST("/auth/signup", authHandler.SignUp)
		apiV1.POST("/auth/password-reset", authHandler.SendPasswordReset)
		// Stripe authenticates webhooks via signature, handled by the service.
		apiV1.POST("/billing/webhooks/stripe", billingHandler.HandleStripeWebhook)

		// Initialize needs the created flag, so it loads the profile itself.
		apiV1.POST("/users/initialize", authMW.VerifyToken(), userHandler.InitializeUserProfile)

		authed := apiV1.Group("", authMW.VerifyToken(), accessMW.LoadUser())
		{
			authed.POST("/auth/verification-email", authHandler.SendVerificationEmail)
			authed.GET("/access", userHandler.CheckAccess)

			me := authed.Group("/users/me")
			{
				me.GET("", userHandler.GetCurrentUserProfile)
				me.PATCH("", userHandler.UpdateCurrentUserProfile)
				me.PUT("/trackers", userHandler.SetActiveTrackers)
				me.POST("/custom-trackers", userHandler.AddCustomTracker)
				me.DELETE("/custom-trackers/:trackerId", userHandler.RemoveCustomTracker)
			}

			subscription := authed.Group("/subscription")
			{
				subscription.GET("", subscriptionHandler.GetStatus)
				subscription.POST("/quote", subscriptionHandler.Quote)
				subscription.POST("/coupon", subscriptionHandler.RedeemCoupon)
				subscription.POST("/cancel", subscriptionHandler.Cancel)
			}
			authed.POST("/billing/checkout", billingHandler.CreateCheckoutSession)

			trackers := authed.Group("/trackers/:tracker", accessMW.RequireVerifiedEmail(), accessMW.RequireTrackerAccess())
			{
				trackers.POST("/entries", trackerHandler.CreateEntry)
				trackers.GET("/entries", trackerHandler.ListEntries)
				trackers.GET("/entries/:entryId", trackerHandler.GetEntry)
				trackers.PATCH("/entries/:entryId", trackerHandler.UpdateEntry)
				trackers.DELETE("/entries/:entryId", trackerHandler.DeleteEntry)
				trackers.GET("/streak", trackerHandler.GetStreak)
				trackers.GET("/summary", trackerHandler.GetSummary)
				trackers.GET("/daily", trackerHandler.GetDailyTotals)

				trackers.POST("/insights", insightHandler.GenerateInsight)
				trackers.GET("/insights", insightHandler.ListInsights)
				trackers.GET("/insights/:insightId", insightHandler.GetInsight)
				trackers.DELETE("/insights/:insightId", insightHandler.DeleteInsight)
				trackers.GET("/insights/:insightId/report", insightHandler.GetInsightReport)
				trackers.GET("/insights/:insightId/pdf", insightHandler.GetInsightPDF)

				trackers.GET("/export.csv", exportHandler.ExportCSV)
				trackers.GET("/export.pdf", exportHandler.ExportPDF)
			}

			admin := authed.Group("/admin", accessMW.RequireAdmin())
			{
				admin.GET("/users", adminHandler.ListUsers)
				admin.PUT("/users/:userId/premium", adminHandler.SetPremium)
				admin.PUT("/users/:userId/admin", adminHandler.SetAdmin)
				admin.GET("/stats", adminHandler.GetStats)
			}
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "UP", Message: "TrackFlow backend is healthy.", Time: time.Now().UTC()})
	})

	logger.Info("API routes configured successfully under /api/v1 and /health.")
}
