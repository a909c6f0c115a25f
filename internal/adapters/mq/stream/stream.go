// Package stream consumes reservation lifecycle messages from Kafka and
// submits them as outcome events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/venuestats/internal/domain/model"
	"github.com/okian/venuestats/internal/domain/types"
	"github.com/okian/venuestats/pkg/logger"
	"github.com/okian/venuestats/pkg/metrics"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink accepts decoded outcome events.
type Sink interface {
	Submit(ctx context.Context, e model.OutcomeEvent) (types.OutcomeResult, error)
}

// Retryable is implemented by sink errors that should hold the message back
// and try it again later, such as a full queue.
type Retryable interface {
	Retryable() bool
}

// NewKafkaReader builds a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// Decode parses a message value into an outcome event received at now.
func Decode(m kafka.Message, now time.Time) (model.OutcomeEvent, error) { //nolint:gocritic // hugeParam: kafka.Message is passed by value throughout kafka-go
	var msg types.OutcomeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return model.OutcomeEvent{}, fmt.Errorf("%w: offset %d: %w", ErrDecode, m.Offset, err)
	}
	e, err := msg.ToEvent(now)
	if err != nil {
		return model.OutcomeEvent{}, fmt.Errorf("%w: offset %d: %w", ErrDecode, m.Offset, err)
	}
	return e, nil
}

// Consumer reads lifecycle messages and submits them to a Sink. Offsets are
// committed once a message has been accepted, found duplicate or found
// undecodable.
type Consumer struct {
	reader     Reader
	sink       Sink
	logger     logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

// NewConsumer creates a consumer with configuration options.
func NewConsumer(r Reader, sink Sink, opts ...Option) *Consumer {
	c := &Consumer{
		reader:     r,
		sink:       sink,
		logger:     logger.GetOrNop(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("stream")
	return c
}

// Run consumes until ctx is canceled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn(ctx, "kafka fetch failed", logger.Error(err), logger.Duration("backoff", backoff))
			metrics.RecordErrorByComponent("stream", "fetch")
			if !c.sleep(ctx, backoff) {
				return nil
			}
			backoff = c.next(backoff)
			continue
		}
		backoff = c.minBackoff

		if !c.handle(ctx, m) {
			return nil
		}
	}
}

// handle submits m until it is settled and commits its offset. It reports
// false when ctx ended first.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool { //nolint:gocritic // hugeParam
	e, err := Decode(m, c.now())
	if err != nil {
		metrics.RecordStreamMessage("invalid")
		c.logger.Warn(ctx, "dropping undecodable message",
			logger.Int64("offset", m.Offset),
			logger.Int("partition", m.Partition),
			logger.Error(err),
		)
		return c.commit(ctx, m)
	}

	backoff := c.minBackoff
	for {
		res, err := c.sink.Submit(ctx, e)
		if err == nil {
			if res.Duplicate {
				metrics.RecordStreamMessage("duplicate")
			} else {
				metrics.RecordStreamMessage("accepted")
			}
			return c.commit(ctx, m)
		}

		var r Retryable
		if errors.As(err, &r) && r.Retryable() {
			c.logger.Debug(ctx, "sink busy, holding message", logger.String("event", e.DedupeKey()))
			if !c.sleep(ctx, backoff) {
				return false
			}
			backoff = c.next(backoff)
			continue
		}

		metrics.RecordStreamMessage("rejected")
		c.logger.Error(ctx, "outcome rejected",
			logger.String("event", e.DedupeKey()),
			logger.Error(err),
		)
		return c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) bool { //nolint:gocritic // hugeParam
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.RecordErrorByComponent("stream", "commit")
		c.logger.Error(ctx, "commit failed", logger.Int64("offset", m.Offset), logger.Error(err))
	}
	return true
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) next(d time.Duration) time.Duration {
	return min(d*2, c.maxBackoff)
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
