package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_cart/internal/metrics"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller forwards events committed to the outbox table to Kafka.
// Delivery is at least once: an event is marked processed only after the write succeeded.
type OutboxPoller struct {
	repo      repository.OutboxRepository
	writer    MessageWriter
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	timeout   time.Duration
}

func NewOutboxPoller(repo repository.OutboxRepository, writer MessageWriter, interval time.Duration, logger *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		repo:      repo,
		writer:    writer,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
		timeout:   5 * time.Second,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents returns the number of events published.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			metrics.OutboxEvents.WithLabelValues("publish_error").Inc()
			p.logger.Error("failed to publish outbox event",
				zap.String("event_id", event.ID.String()), zap.Error(err))
			// keep ordering per aggregate: retry this batch on the next tick
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			metrics.OutboxEvents.WithLabelValues("mark_error").Inc()
			p.logger.Error("failed to mark outbox event as processed",
				zap.String("event_id", event.ID.String()), zap.Error(err))
			return published
		}
		metrics.OutboxEvents.WithLabelValues("published").Inc()
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	})
}
