package stream

import (
	"time"

	"github.com/okian/venuestats/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets a custom logger for the consumer.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBackoff bounds the wait between fetch or submit attempts.
func WithBackoff(minBackoff, maxBackoff time.Duration) Option {
	return func(c *Consumer) {
		if minBackoff > 0 && maxBackoff >= minBackoff {
			c.minBackoff = minBackoff
			c.maxBackoff = maxBackoff
		}
	}
}

// WithClock overrides the receive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}
