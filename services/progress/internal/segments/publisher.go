package segments

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// Publisher hands segments to the worker through JetStream.
type Publisher struct {
	js          nats.JetStreamContext
	asyncWrites bool
}

func NewPublisher(js nats.JetStreamContext, asyncWrites bool) *Publisher {
	return &Publisher{js: js, asyncWrites: asyncWrites}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

// Publish stamps seg with a fresh event id and creation time and publishes
// it. The event id is returned so callers can correlate the write.
func (p *Publisher) Publish(seg Segment) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}

	seg.EventID = uuid.NewString()
	if seg.CreatedAt == "" {
		seg.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(seg)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(Subject, body, nats.MsgId(seg.EventID)); err != nil {
		return "", err
	}
	return seg.EventID, nil
}
