package transport

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Delay is the pause after failed connect attempt n (1-based). The base grows
// by Multiplier per attempt and stops at MaxDelay. With Jitter and a non-nil
// rng the result is drawn from [base/2, base*3/2).
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	base := b.InitialDelay
	if base <= 0 {
		return 0
	}
	ceiling := b.MaxDelay
	if ceiling <= 0 {
		ceiling = math.MaxInt64
	}
	mult := max(b.Multiplier, 1)
	for i := 1; i < n && mult > 1; i++ {
		next := float64(base) * mult
		if next >= float64(ceiling) {
			base = ceiling
			break
		}
		base = time.Duration(next)
	}
	base = min(base, ceiling)
	if !b.Jitter || rng == nil || base <= 0 || base > math.MaxInt64/3*2 {
		return base
	}
	return base/2 + time.Duration(rng.Int64N(int64(base)))
}

// dialRetry paces the reconnect attempts of one Dial call.
type dialRetry struct {
	backoff  BackoffConfig
	limit    int // 0 is unbounded
	attempts int
	rng      *rand.Rand
}

func newDialRetry(cfg Config) *dialRetry {
	seed := uint64(time.Now().UnixNano())
	return &dialRetry{
		backoff: cfg.Backoff,
		limit:   cfg.MaxConnectAttempts,
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// begin records one more attempt and returns its 1-based number.
func (r *dialRetry) begin() int {
	r.attempts++
	return r.attempts
}

func (r *dialRetry) exhausted() bool {
	return r.limit > 0 && r.attempts >= r.limit
}

// wait sleeps out the delay owed after the latest attempt.
func (r *dialRetry) wait(ctx context.Context) error {
	return sleepContext(ctx, r.backoff.Delay(r.attempts, r.rng))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
