package messagequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	retryHeader       = "x-retry-count"
	deadLetterSuffix  = ".dead"
	defaultMaxRetries = 5
	maxRetryDelay     = 30 * time.Second
)

// RabbitMQService implements the MessageQueue interface using RabbitMQ.
// Every queue gets a "<name>.dead" companion that receives rejected messages.
type RabbitMQService struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *zap.Logger
	maxRetries int

	publishMu sync.Mutex
}

// NewRabbitMQServiceConfig contains options for creating a new RabbitMQService.
type NewRabbitMQServiceConfig struct {
	URL        string
	Prefetch   int // unacknowledged deliveries per consumer, default 10
	MaxRetries int // redeliveries of a failing message before it is dead-lettered, default 5
}

// NewRabbitMQService dials RabbitMQ and opens a channel.
func NewRabbitMQService(cfg NewRabbitMQServiceConfig, logger *zap.Logger) (*RabbitMQService, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set channel QoS: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	logger.Info("Connected to RabbitMQ and opened a channel")
	return &RabbitMQService{conn: conn, channel: ch, logger: logger.Named("rabbitmq"), maxRetries: maxRetries}, nil
}

func (s *RabbitMQService) declare(queueName string) (amqp.Queue, error) {
	dead := queueName + deadLetterSuffix
	if _, err := s.channel.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("declare dead-letter queue %s: %w", dead, err)
	}
	return s.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dead,
		},
	)
}

func (s *RabbitMQService) publish(queueName string, body []byte, headers amqp.Table) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	return s.channel.Publish(
		"",        // exchange
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
}

// Publish sends a persistent JSON message to a durable queue.
func (s *RabbitMQService) Publish(_ context.Context, queueName string, body []byte) error {
	q, err := s.declare(queueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	if err := s.publish(q.Name, body, nil); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	s.logger.Debug("Published message", zap.String("queue", queueName), zap.Int("bytes", len(body)))
	return nil
}

// Consume reads deliveries with manual acknowledgement. A failing message is republished with
// a growing delay until it has been retried maxRetries times; permanent failures and exhausted
// retries go to the dead-letter queue.
func (s *RabbitMQService) Consume(ctx context.Context, queueName string, handler Handler) error {
	q, err := s.declare(queueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s for consuming: %w", queueName, err)
	}

	msgs, err := s.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer for queue %s: %w", queueName, err)
	}

	s.logger.Info("Waiting for messages", zap.String("queue", q.Name))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for queue %s closed", queueName)
			}
			if err := handler(ctx, d.Body); err != nil {
				s.handleFailure(ctx, q.Name, d, err)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (s *RabbitMQService) handleFailure(ctx context.Context, queueName string, d amqp.Delivery, err error) {
	attempt := retryCount(d.Headers)
	if !shouldRetry(err, attempt, s.maxRetries) {
		s.logger.Error("Dead-lettering message",
			zap.String("queue", queueName), zap.Int("attempt", attempt), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	delay := retryDelay(attempt)
	s.logger.Warn("Handler failed, retrying message",
		zap.String("queue", queueName), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
	select {
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	case <-time.After(delay):
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(attempt + 1)
	if pubErr := s.publish(queueName, d.Body, headers); pubErr != nil {
		s.logger.Error("Failed to republish message, requeueing", zap.String("queue", queueName), zap.Error(pubErr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// shouldRetry reports whether a failed delivery on its attempt-th retry gets another one.
func shouldRetry(err error, attempt, maxRetries int) bool {
	return !errors.Is(err, ErrPermanent) && attempt < maxRetries
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func retryDelay(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Close closes the RabbitMQ channel and connection.
func (s *RabbitMQService) Close() error {
	var lastErr error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			lastErr = err
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
