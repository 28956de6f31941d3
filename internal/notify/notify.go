// Package notify defines the notification messages the API enqueues and the notifier worker delivers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trackflow-backend/pkg/messagequeue"
)

// Notification types.
const (
	TypeEmailVerification = "email_verification"
	TypePasswordReset     = "password_reset"
	TypePremiumActivated  = "premium_activated"
	TypePremiumExpired    = "premium_expired"
)

// Message is the JSON body placed on the notifications queue.
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	To        string            `json:"to"`
	Name      string            `json:"name,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Validate checks the fields the dispatcher needs.
func (m Message) Validate() error {
	if m.To == "" {
		return errors.New("notification recipient cannot be empty")
	}
	if _, ok := templates[m.Type]; !ok {
		return fmt.Errorf("unknown notification type %q", m.Type)
	}
	return nil
}

// Publisher JSON-encodes messages onto a queue.
type Publisher struct {
	queue     messagequeue.MessageQueue
	queueName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewPublisher creates a Publisher for queueName.
func NewPublisher(queue messagequeue.MessageQueue, queueName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		queue:     queue,
		queueName: queueName,
		logger:    logger.Named("notify"),
		now:       time.Now,
	}
}

// Enqueue assigns an ID and timestamp when missing and publishes msg.
func (p *Publisher) Enqueue(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = p.now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.queue.Publish(ctx, p.queueName, body); err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.Type, err)
	}
	p.logger.Debug("Notification enqueued", zap.String("id", msg.ID), zap.String("type", msg.Type))
	return nil
}
