package messagequeue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one message body. A returned error is retried by the driver unless it
// wraps ErrPermanent.
type Handler func(ctx context.Context, body []byte) error

// ErrPermanent marks a handler failure that a retry cannot fix, such as a malformed payload.
var ErrPermanent = errors.New("permanent message failure")

// Permanent wraps err so drivers dead-letter or drop the message instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// MessageQueue defines the interface for message queue services.
type MessageQueue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	// Consume delivers messages to handler until ctx is cancelled or the broker closes the stream.
	Consume(ctx context.Context, queueName string, handler Handler) error
	Close() error
}

// ErrConsumeUnsupported is returned by drivers that can only publish.
var ErrConsumeUnsupported = errors.New("consume is not supported by this queue driver")

// LogQueue logs published messages instead of sending them. It keeps the last messages
// in memory so local runs and tests can inspect them.
type LogQueue struct {
	logger *zap.Logger

	mu        sync.Mutex
	published []Published
}

// Published is a message recorded by LogQueue.
type Published struct {
	Queue string
	Body  []byte
}

// NewLogQueue creates a publish-only queue that writes messages to the logger.
func NewLogQueue(logger *zap.Logger) *LogQueue {
	return &LogQueue{logger: logger.Named("log_queue")}
}

func (q *LogQueue) Publish(_ context.Context, queueName string, body []byte) error {
	q.mu.Lock()
	q.published = append(q.published, Published{Queue: queueName, Body: append([]byte(nil), body...)})
	if len(q.published) > 100 {
		q.published = q.published[len(q.published)-100:]
	}
	q.mu.Unlock()
	q.logger.Info("Message published (log driver)", zap.String("queue", queueName), zap.ByteString("body", body))
	return nil
}

func (q *LogQueue) Consume(context.Context, string, Handler) error {
	return ErrConsumeUnsupported
}

func (q *LogQueue) Close() error { return nil }

// Messages returns a copy of the recorded messages.
func (q *LogQueue) Messages() []Published {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Published(nil), q.published...)
}

// Drivers accepted by Open.
const (
	DriverLog      = "log"
	DriverRabbitMQ = "rabbitmq"
	DriverPubSub   = "pubsub"
)

// OpenConfig selects and configures a queue driver.
type OpenConfig struct {
	Driver      string
	RabbitMQURL string
	ProjectID   string // Pub/Sub project
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg OpenConfig, logger *zap.Logger) (MessageQueue, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverRabbitMQ:
		return NewRabbitMQService(NewRabbitMQServiceConfig{URL: cfg.RabbitMQURL}, logger)
	case DriverPubSub:
		return NewPubSubService(ctx, cfg.ProjectID, logger)
	case DriverLog, "":
		return NewLogQueue(logger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
