package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/orderflow/internal/platform/textutil"
	"github.com/hanko-field/orderflow/internal/services"
)

// PubSubNotificationPublisher publishes notifications to a Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNotification enqueues the notification and waits for the server-assigned message id.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: notificationAttributes(message),
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

// notificationAttributes are the routing fields subscribers filter on.
func notificationAttributes(message services.NotificationMessage) map[string]string {
	return textutil.NormalizeStringMap(map[string]string{
		"notificationId": message.ID,
		"kind":           string(message.Kind),
		"businessId":     message.BusinessID,
		"orderId":        message.OrderID,
		"status":         string(message.Status),
		"locale":         message.Locale,
		"dedupeKey":      message.DedupeKey,
	})
}
