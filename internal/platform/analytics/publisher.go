// Package analytics publishes fire-and-forget business events to NATS
// JetStream under analytics.progress.*.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectProgressSaved   = "analytics.progress.saved"
	SubjectSessionOpened   = "analytics.progress.session_opened"
	SubjectSessionEnded    = "analytics.progress.session_ended"
	SubjectSegmentRecorded = "analytics.progress.segment_recorded"
)

// Event is the envelope sent on every analytics subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	Source     string         `json:"source,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher is safe to use as a nil pointer, which drops every event.
type Publisher struct {
	js     nats.JetStreamContext
	log    *zap.Logger
	source string
}

// New returns a Publisher stamping events with source. A nil js yields a
// publisher that drops events.
func New(js nats.JetStreamContext, log *zap.Logger, source string) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log, source: source}
}

func (p *Publisher) newEvent(eventName, userID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		Source:     p.source,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
}

// Publish queues an event without waiting for the ack. Failures are logged
// and never reach the caller.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(p.newEvent(eventName, userID, props))
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Flush waits until queued events are acknowledged or ctx is done.
func (p *Publisher) Flush(ctx context.Context) {
	if p == nil || p.js == nil {
		return
	}
	select {
	case <-p.js.PublishAsyncComplete():
	case <-ctx.Done():
		p.log.Warn("analytics: flush timed out", zap.Int("pending", p.js.PublishAsyncPending()))
	}
}
