package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/api"
	"trackflow-backend/internal/archive"
	"trackflow-backend/internal/config"
	"trackflow-backend/internal/core"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/firebase"
	"trackflow-backend/internal/insight"
	"trackflow-backend/internal/middleware"
	"trackflow-backend/internal/notify"
	"trackflow-backend/internal/worker"
	"trackflow-backend/pkg/cache"
	"trackflow-backend/pkg/messagequeue"
)

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	// --- 1. Load .env outside release mode; production sets the environment directly ---
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}

	// --- 2. Initialize Logger (Zap) ---
	zapLogger, err := newLogger()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	// --- 3. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load application configuration", zap.Error(err))
	}

	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInitCtx()

	if appConfig.NeedsSecretResolution() {
		accessor, closeAccessor, err := config.NewSecretAccessor(initCtx)
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to open Secret Manager", zap.Error(err))
		}
		if err := appConfig.ResolveSecrets(initCtx, accessor); err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to resolve secrets", zap.Error(err))
		}
		_ = closeAccessor()
		zapLogger.Info("Secrets resolved from Secret Manager.")
	}
	zapLogger.Info("Application configuration loaded successfully.")

	catalog, err := configs.LoadCatalog(appConfig.CatalogPath)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load tracker catalog", zap.Error(err))
	}

	// --- 4. Initialize Firebase Admin SDK (Auth, Firestore, Storage) ---
	clients, err := firebase.Init(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()

	// --- 5. Infrastructure: queue, cache, AI model, archive ---
	queue, err := messagequeue.Open(initCtx, messagequeue.OpenConfig{
		Driver:      appConfig.QueueDriver,
		RabbitMQURL: appConfig.RabbitMQURL,
		ProjectID:   appConfig.FirebaseProjectID,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to open notification queue", zap.Error(err))
	}
	defer queue.Close()
	publisher := notify.NewPublisher(queue, appConfig.NotificationQueue, zapLogger)

	var insightCache cache.Cache = cache.NewNoopCache()
	if appConfig.RedisAddress != "" {
		redisCache, err := cache.NewRedisCache(initCtx, cache.NewRedisCacheConfig{
			Address:  appConfig.RedisAddress,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
			Prefix:   "trackflow:",
		}, zapLogger)
		if err != nil {
			zapLogger.Warn("Redis unavailable, insight cache disabled", zap.Error(err))
		} else {
			insightCache = redisCache
			defer redisCache.Close()
		}
	}

	gemini, err := insight.NewGeminiClient(insight.Config{
		APIKey:  appConfig.GeminiAPIKey,
		Model:   appConfig.GeminiModel,
		BaseURL: appConfig.GeminiBaseURL,
		Timeout: appConfig.GeminiTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Gemini client", zap.Error(err))
	}

	var archiver core.Archiver
	if clients.Storage != nil {
		bucketArchiver, err := archive.NewFirebaseArchiver(clients.Storage, zapLogger)
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to open export bucket", zap.Error(err))
		}
		archiver = bucketArchiver
	}

	noteCipher, err := core.NewNoteCipher(appConfig.EncryptionKey)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Invalid ENCRYPTION_KEY", zap.Error(err))
	}

	// --- 6. Initialize Repositories ---
	userRepo := db.NewFirestoreUserRepository(clients.Firestore, zapLogger)
	auditRepo := db.NewFirestoreAuditRepository(clients.Firestore)
	trackerRepo := db.NewFirestoreTrackerRepository(clients.Firestore, zapLogger)
	insightRepo := db.NewFirestoreInsightRepository(clients.Firestore, zapLogger)

	// --- 7. Initialize Services ---
	auditService := core.NewAuditService(auditRepo)
	userService := core.NewUserService(userRepo, catalog, auditService, zapLogger)

	var billingService core.BillingService
	if appConfig.StripeEnabled() {
		billingService = core.NewBillingService(userRepo, catalog, auditService, publisher, core.BillingConfig{
			SecretKey:     appConfig.StripeSecretKey,
			WebhookSecret: appConfig.StripeWebhookSecret,
			ClientURL:     appConfig.ClientURL,
		}, zapLogger)
	} else {
		zapLogger.Warn("Stripe is not configured; only coupon trials can activate premium.")
	}

	subscriptionService := core.NewSubscriptionService(userRepo, catalog, auditService, publisher, billingService, zapLogger)
	trackerService := core.NewTrackerService(trackerRepo, catalog, noteCipher, auditService, zapLogger)
	insightService := core.NewInsightService(insightRepo, trackerService, gemini, insightCache, appConfig.InsightCacheTTL, catalog, auditService, zapLogger)
	exportService := core.NewExportService(trackerService, insightService, archiver, zapLogger)
	authService := core.NewAuthService(clients.Auth, userService, publisher, appConfig.ClientURL, auditService, zapLogger)
	adminService := core.NewAdminService(userRepo, clients.Auth, catalog, publisher, auditService, zapLogger)
	zapLogger.Info("Core services initialized successfully.")

	// --- 8. Setup Gin HTTP Engine ---
	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig))

	api.SetupRoutes(router, catalog, zapLogger, api.Services{
		TokenVerifier:       clients.Auth,
		UserService:         userService,
		AuthService:         authService,
		SubscriptionService: subscriptionService,
		BillingService:      billingService,
		TrackerService:      trackerService,
		InsightService:      insightService,
		ExportService:       exportService,
		AdminService:        adminService,
	})

	// --- 9. Background workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if appConfig.ExpirySweepEnabled() {
		go worker.NewPremiumExpiry(subscriptionService, appConfig.ExpirySweepInterval, zapLogger).Run(workerCtx)
	} else {
		zapLogger.Warn("Premium expiry sweep disabled (EXPIRY_SWEEP_INTERVAL=0)")
	}

	// --- 10. Configure and Start HTTP Server ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- 11. Graceful Shutdown Handling ---
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	stopWorkers()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown due to error during graceful shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting gracefully.")
}
