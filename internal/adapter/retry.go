package adapter

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes the pause before retrying an index page.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff returns half of base*2^attempt (capped at max) plus uniform jitter
// over the other half.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		delay := float64(base) * math.Pow(2, float64(attempt))
		if delay > float64(max) {
			delay = float64(max)
		}
		return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
	}
}

// DefaultBackoff is used unless WithBackoff overrides it.
var DefaultBackoff = ExponentialBackoff(250*time.Millisecond, 5*time.Second)

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
