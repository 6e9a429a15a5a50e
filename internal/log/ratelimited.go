package log

import (
	"time"

	kitlog "github.com/go-kit/log"
	"golang.org/x/time/rate"
)

// RateLimitedLogger drops log lines once a per-second budget is exhausted,
// so a high-volume caller cannot flood stderr. No stage in this module
// wraps its logger in one; the stages log through Logger directly.
type RateLimitedLogger struct {
	limiter *rate.Limiter
	logger  kitlog.Logger
}

// NewRateLimitedLogger wraps logger so it accepts at most logsPerSecond
// calls per second, dropping the rest silently.
func NewRateLimitedLogger(logsPerSecond int, logger kitlog.Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
	}
}

// Log implements go-kit/log.Logger.
func (l *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		return nil
	}
	return l.logger.Log(keyvals...)
}
