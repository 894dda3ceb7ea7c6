package report

import (
	"context"
	"fmt"
)

// Publisher pushes payloads to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishRecorder publishes the run summary; individual visits are not published.
type PublishRecorder struct {
	publisher Publisher
	topic     string
}

// NewPublishRecorder wraps publisher for topic.
func NewPublishRecorder(publisher Publisher, topic string) *PublishRecorder {
	return &PublishRecorder{publisher: publisher, topic: topic}
}

// RecordVisit is a no-op.
func (*PublishRecorder) RecordVisit(context.Context, Visit) error { return nil }

// RecordSummary publishes s.
func (r *PublishRecorder) RecordSummary(ctx context.Context, s Summary) error {
	if _, err := r.publisher.Publish(ctx, r.topic, s); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}
