// Package kafkafeed ingests position messages relayed by a third-party
// aggregator through Kafka. Messages are keyed by tracker id upstream, so
// per-tracker ordering within a partition is preserved.
package kafkafeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"fleettrack/internal/domain"
)

// PositionSink is the ingestion entry the feed hands samples to.
type PositionSink interface {
	ReportPosition(ctx context.Context, sample *domain.PositionSample) error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader *kafka.Reader
	sink   PositionSink
	log    zerolog.Logger
}

func NewConsumer(cfg Config, sink PositionSink, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader: reader,
		sink:   sink,
		log:    log,
	}
}

// Run consumes until the context is cancelled. Malformed and rejected
// messages are logged and committed; only retryable failures leave the
// offset uncommitted.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info().
		Strs("brokers", c.reader.Config().Brokers).
		Str("topic", c.reader.Config().Topic).
		Str("group_id", c.reader.Config().GroupID).
		Msg("kafka feed started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("fetch message failed")
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var sample domain.PositionSample
	if err := json.Unmarshal(msg.Value, &sample); err != nil {
		c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("malformed position message")
		return
	}

	reportCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.sink.ReportPosition(reportCtx, &sample); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("tracker_id", sample.TrackerID).Msg("position rejected")
			return
		}
		c.log.Error().Err(err).Str("tracker_id", sample.TrackerID).Msg("position ingest failed")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
