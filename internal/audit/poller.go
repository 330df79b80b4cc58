package audit

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// writer is the subset of kafka.Writer the poller needs.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Poller drains the outbox in batches and publishes each event to Kafka,
// marking it processed on success. A failed publish leaves the event
// unprocessed so the next tick retries it.
type Poller struct {
	store    OutboxStore
	writer   writer
	interval time.Duration
	batch    int
	lg       *zap.Logger
}

// NewPoller creates a Poller publishing to the given topic. Messages are
// keyed by order ID so per-order event ordering survives partitioning.
func NewPoller(store OutboxStore, brokers []string, topic string, lg *zap.Logger) *Poller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Poller{
		store:    store,
		writer:   w,
		interval: time.Second,
		batch:    100,
		lg:       lg,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) publishPending(ctx context.Context) {
	events, err := p.store.Unprocessed(ctx, p.batch)
	if err != nil {
		p.lg.Error("fetch outbox events", zap.Error(err))
		return
	}

	for _, ev := range events {
		msg := kafka.Message{
			Key:   []byte(ev.OrderID.String()),
			Value: EncodeEvent(ev),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.lg.Error("publish audit event",
				zap.String("event_id", ev.ID),
				zap.Error(err))
			continue
		}
		if err := p.store.MarkProcessed(ctx, ev.ID); err != nil {
			p.lg.Error("mark audit event processed",
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
}
