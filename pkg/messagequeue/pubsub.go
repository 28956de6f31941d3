package messagequeue

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubService implements MessageQueue on Google Cloud Pub/Sub. Publish takes a topic ID;
// Consume takes a subscription ID.
type PubSubService struct {
	client *pubsub.Client
	logger *zap.Logger
}

// NewPubSubService creates a Pub/Sub client for the project.
func NewPubSubService(ctx context.Context, projectID string, logger *zap.Logger) (*PubSubService, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubService{client: client, logger: logger.Named("pubsub")}, nil
}

// Publish sends the payload to the topic and waits for the server ack.
func (p *PubSubService) Publish(ctx context.Context, topic string, body []byte) error {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: body})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	p.logger.Debug("Published message", zap.String("topic", topic), zap.String("messageID", id))
	return nil
}

// Consume receives from the subscription until ctx is cancelled. Handler errors nack the message
// so Pub/Sub redelivers it according to the subscription's retry and dead-letter policy;
// permanent errors are acked and dropped.
func (p *PubSubService) Consume(ctx context.Context, subscription string, handler Handler) error {
	sub := p.client.Subscription(subscription)
	p.logger.Info("Waiting for messages", zap.String("subscription", subscription))
	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := handler(ctx, m.Data); err != nil {
			if errors.Is(err, ErrPermanent) {
				p.logger.Error("Dropping message that cannot be processed", zap.String("messageID", m.ID), zap.Error(err))
				m.Ack()
				return
			}
			p.logger.Warn("Handler failed, message will be redelivered", zap.String("messageID", m.ID), zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive on subscription %s: %w", subscription, err)
	}
	return nil
}

func (p *PubSubService) Close() error {
	return p.client.Close()
}
