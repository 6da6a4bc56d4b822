// Package eventbus mirrors session events onto Google Pub/Sub so other
// services can follow runs without holding the HTTP stream.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/session"
)

const publishTimeout = 5 * time.Second

// PubSubMirror publishes every session event to one topic, ordered per
// session. Publishing is best effort: failures are logged and never reach
// the producing pipeline.
type PubSubMirror struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	log    *zap.Logger
}

// NewPubSubMirror connects to Pub/Sub and binds the event topic.
func NewPubSubMirror(ctx context.Context, projectID, topicName string, log *zap.Logger) (*PubSubMirror, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	topic.EnableMessageOrdering = true
	return &PubSubMirror{client: client, topic: topic, log: log}, nil
}

// Publish implements session.Sink. It only enqueues the message; server
// confirmation happens on a separate goroutine so a degraded broker never
// stalls the producing pipeline.
func (m *PubSubMirror) Publish(_ context.Context, sessionID string, evt session.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		m.log.Warn("event marshal failed", zap.String("session", sessionID), zap.Error(err))
		return
	}

	result := m.topic.Publish(context.Background(), &pubsub.Message{
		Data:        data,
		OrderingKey: sessionID,
		Attributes: map[string]string{
			"session_id": sessionID,
			"event_type": string(evt.Type),
		},
	})
	go m.confirm(sessionID, result)
}

func (m *PubSubMirror) confirm(sessionID string, result *pubsub.PublishResult) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := result.Get(ctx); err != nil {
		// An ordering-key error pauses the key until resumed.
		m.topic.ResumePublish(sessionID)
		m.log.Warn("event publish failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// Close flushes pending publishes and releases the client.
func (m *PubSubMirror) Close() error {
	m.topic.Stop()
	return m.client.Close()
}
