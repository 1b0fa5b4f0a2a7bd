package controller

import (
	"log/slog"
	"time"
)

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the delay between the end of one status poll and the
// start of the next. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSubscriberBuffer sets the channel capacity handed to each subscriber.
func WithSubscriberBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.subBuffer = n
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}
