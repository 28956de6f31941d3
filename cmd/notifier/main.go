// Command notifier consumes the notifications queue and delivers emails.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trackflow-backend/internal/config"
	"trackflow-backend/internal/notify"
	"trackflow-backend/pkg/mailer"
	"trackflow-backend/pkg/messagequeue"
)

func newSender(appConfig *config.Config, logger *zap.Logger) (mailer.Sender, error) {
	if appConfig.SendGridAPIKey != "" {
		logger.Info("Using SendGrid mail sender")
		return mailer.NewSendGridSender(appConfig.SendGridAPIKey, appConfig.MailFrom, appConfig.MailFromName)
	}
	logger.Info("Using SMTP mail sender", zap.String("host", appConfig.SMTPHost))
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     appConfig.SMTPHost,
		Port:     appConfig.SMTPPort,
		Username: appConfig.SMTPUser,
		Password: appConfig.SMTPPass,
		From:     appConfig.MailFrom,
	})
}

func main() {
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	appConfig, err := config.LoadNotifierConfig()
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load notifier configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sender, err := newSender(appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to create mail sender", zap.Error(err))
	}

	queue, err := messagequeue.Open(ctx, messagequeue.OpenConfig{
		Driver:      appConfig.QueueDriver,
		RabbitMQURL: appConfig.RabbitMQURL,
		ProjectID:   appConfig.FirebaseProjectID,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to open notification queue", zap.Error(err))
	}
	defer queue.Close()

	// Pub/Sub consumes from a subscription; RabbitMQ from the queue itself.
	source := appConfig.NotificationQueue
	if strings.EqualFold(appConfig.QueueDriver, messagequeue.DriverPubSub) {
		source = appConfig.PubSubSubscription
	}

	dispatcher := notify.NewDispatcher(sender, zapLogger)
	zapLogger.Info("Notifier consuming", zap.String("driver", appConfig.QueueDriver), zap.String("source", source))
	if err := queue.Consume(ctx, source, dispatcher.Handle); err != nil && ctx.Err() == nil {
		zapLogger.Fatal("Notification consumer stopped", zap.Error(err))
	}
	zapLogger.Info("Notifier exiting gracefully.")
}
