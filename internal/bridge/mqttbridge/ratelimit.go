package mqttbridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// publishRateLimiter tracks outbound publish rates and drops messages
// when the rate exceeds the configured threshold, so a unit that is
// itself misbehaving (e.g. a WatchState handler firing in a tight
// loop) cannot flood the broker. It uses atomic counters for
// lock-free operation on the hot path.
type publishRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newPublishRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *publishRateLimiter {
	return &publishRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start runs the periodic counter reset loop. It blocks until ctx is
// cancelled.
func (r *publishRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("mqttbridge publishes dropped due to rate limit",
					"attempted", count,
					"dropped", dropped,
					"interval", r.interval.String(),
					"limit", r.limit,
				)
			}
		}
	}
}

// allow increments the publish counter and returns true if the
// current count is within the limit.
func (r *publishRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
