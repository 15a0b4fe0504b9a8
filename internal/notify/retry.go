package notify

import (
	"time"
)

// RetryStrategy decides how long to wait before the next publish attempt
type RetryStrategy interface {
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff multiplies the delay after every failed attempt
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry returns InitialDelay * Multiplier^attempt, capped at MaxDelay
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// Option configures a Publisher
type Option func(*Publisher)

// WithRetry retries a failed publish up to attempts times in total
func WithRetry(attempts int, strategy RetryStrategy) Option {
	return func(p *Publisher) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if strategy != nil {
			p.strategy = strategy
		}
	}
}

// DefaultRetryStrategy is used when WithRetry is given no strategy
func DefaultRetryStrategy() RetryStrategy {
	return &ExponentialBackoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}
