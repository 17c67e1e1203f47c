package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// EventCommitted is published after the review service confirms a submission.
const EventCommitted = "review.committed"

// Event describes a review lifecycle change.
type Event struct {
	Type       string    `json:"type"`
	ReviewID   string    `json:"reviewId"`
	ProductID  string    `json:"productId"`
	UserID     string    `json:"userId,omitempty"`
	Rating     int       `json:"rating"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventPublisher emits review events to downstream consumers.
type EventPublisher interface {
	PublishReviewEvent(ctx context.Context, event Event) error
}

// PubSubPublisher publishes review events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub review publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishReviewEvent sends event and waits for the server acknowledgement.
func (p *PubSubPublisher) PublishReviewEvent(ctx context.Context, event Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub review publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "reviewId", event.ReviewID)
	setAttr(attrs, "productId", event.ProductID)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
