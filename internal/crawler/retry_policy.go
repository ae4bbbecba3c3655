package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides when a failed task is exhausted and how long to pause
// between retry waves.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy caps tasks at five attempts with one-second waves.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Exhausted reports whether a task that just failed on attempt may not run again.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Backoff returns the pause before retry wave n (1-based).
func (p RetryPolicy) Backoff(wave int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if wave < 1 {
		wave = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(wave-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
