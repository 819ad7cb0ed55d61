// Package worker consumes segment events from JetStream and merges them into
// stored progress.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/analytics"
	"github.com/example/watch-progress/internal/platform/natsconn"
	"github.com/example/watch-progress/services/progress/internal/idempotency"
	"github.com/example/watch-progress/services/progress/internal/segments"
)

const (
	StreamName  = "PROGRESS"
	DurableName = "progress_segments"
	DLQSubject  = "progress.dlq"
)

type outcome string

const (
	outcomeApplied   outcome = "applied"
	outcomeDuplicate outcome = "duplicate"
	outcomeRejected  outcome = "rejected"
	outcomeRetry     outcome = "retry"
	outcomeDead      outcome = "dead"
)

type Options struct {
	BatchSize     int
	BatchInterval time.Duration
	MaxDeliver    int
}

type Worker struct {
	Log       *zap.Logger
	JS        nats.JetStreamContext
	Applier   *segments.Applier
	Idem      idempotency.Store
	Analytics *analytics.Publisher

	BatchSize     int
	BatchInterval time.Duration
	MaxDeliver    int
}

func NewWorker(log *zap.Logger, js nats.JetStreamContext, applier *segments.Applier, idem idempotency.Store, ap *analytics.Publisher, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = 2 * time.Second
	}
	if opts.MaxDeliver <= 0 {
		opts.MaxDeliver = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		Log:           log,
		JS:            js,
		Applier:       applier,
		Idem:          idem,
		Analytics:     ap,
		BatchSize:     opts.BatchSize,
		BatchInterval: opts.BatchInterval,
		MaxDeliver:    opts.MaxDeliver,
	}
}

func (w *Worker) EnsureStream() error {
	return natsconn.EnsureStream(w.JS, natsconn.StreamSpec{
		Name:     StreamName,
		Subjects: []string{segments.Subject, DLQSubject},
		MaxAge:   7 * 24 * time.Hour,
	})
}

// Run pulls segment batches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.EnsureStream(); err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	sub, err := w.JS.PullSubscribe(segments.Subject, DurableName)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", segments.Subject, err)
	}
	w.Log.Info("segment consumer started",
		zap.String("subject", segments.Subject),
		zap.Int("batch_size", w.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(w.BatchSize, nats.MaxWait(w.BatchInterval))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) {
				return err
			}
			w.Log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) outcome {
	numDelivered := uint64(1)
	if md, err := m.Metadata(); err == nil && md != nil {
		numDelivered = md.NumDelivered
	}

	if w.MaxDeliver > 0 && int(numDelivered) > w.MaxDeliver {
		if err := w.publishDLQ(m.Data, fmt.Sprintf("max deliveries exceeded: %d", numDelivered)); err != nil {
			w.Log.Warn("dlq publish failed", zap.Error(err))
		}
		_ = m.Ack()
		return outcomeDead
	}

	seg, err := decodeSegment(m.Data)
	if err != nil {
		w.Log.Warn("bad payload", zap.String("subject", segments.Subject), zap.Error(err))
		_ = m.Ack()
		return outcomeRejected
	}

	if seg.EventID != "" && w.Idem != nil {
		seen, err := w.Idem.Seen(ctx, seg.EventID)
		if err != nil {
			w.Log.Warn("idempotency check failed", zap.String("event_id", seg.EventID), zap.Error(err))
			_ = m.NakWithDelay(backoffDelay(numDelivered))
			return outcomeRetry
		}
		if seen {
			_ = m.Ack()
			return outcomeDuplicate
		}
	}

	rec, err := w.Applier.Apply(ctx, seg)
	if err != nil {
		if errors.Is(err, segments.ErrInvalidSegment) {
			w.Log.Warn("invalid segment", zap.String("event_id", seg.EventID), zap.Error(err))
			_ = m.Ack()
			return outcomeRejected
		}
		w.Log.Warn("apply segment failed",
			zap.String("event_id", seg.EventID),
			zap.Uint64("attempt", numDelivered),
			zap.Error(err),
		)
		_ = m.NakWithDelay(backoffDelay(numDelivered))
		return outcomeRetry
	}

	// Marked only after the apply; a redelivery before this point re-merges
	// the same span, which leaves the record unchanged.
	if seg.EventID != "" && w.Idem != nil {
		if err := w.Idem.Mark(ctx, seg.EventID); err != nil {
			w.Log.Warn("idempotency mark failed", zap.String("event_id", seg.EventID), zap.Error(err))
		}
	}
	_ = m.Ack()
	w.Analytics.Publish(analytics.SubjectSegmentRecorded, "segment_recorded", seg.UserID, map[string]any{
		"video_id":       seg.VideoID,
		"event_id":       seg.EventID,
		"total_progress": rec.TotalProgress,
	})
	return outcomeApplied
}

func decodeSegment(data []byte) (segments.Segment, error) {
	var seg segments.Segment
	if err := json.Unmarshal(data, &seg); err != nil {
		return segments.Segment{}, err
	}
	return seg, nil
}

func (w *Worker) publishDLQ(data []byte, reason string) error {
	if w.JS == nil {
		return errors.New("jetstream unavailable")
	}
	msg := map[string]any{"subject": segments.Subject, "reason": reason, "payload": json.RawMessage(data)}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.JS.Publish(DLQSubject, b)
	return err
}
