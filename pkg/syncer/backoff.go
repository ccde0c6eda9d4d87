package syncer

import (
	"math/rand/v2"
	"time"
)

// backoffDelay returns base*2^(attempt-1) capped at max, scaled by a jitter
// factor in [1-jitter, 1+jitter]. r is a uniform sample in [0, 1).
func backoffDelay(base, max time.Duration, jitter float64, attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	if jitter > 0 {
		d = time.Duration(float64(d) * (1 + jitter*(2*r-1)))
	}

	return d
}

func (e *Engine) backoff(attempt int) time.Duration {
	return backoffDelay(e.config.RetryBase, e.config.RetryCap, e.config.Jitter, attempt, rand.Float64())
}
