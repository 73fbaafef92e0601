package realtime

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newBackoff returns a deterministic doubling schedule: base, 2·base, 4·base,
// capped at maxDelay. A maxDelay of zero or less leaves it uncapped.
func newBackoff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	switch {
	case maxDelay <= 0:
		maxDelay = math.MaxInt64
	case maxDelay < base:
		maxDelay = base
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.Reset()

	return b
}

// BackoffDelays returns the first n reconnect delays for the given settings.
// It is used by `config` and `doctor` output.
func BackoffDelays(base, maxDelay time.Duration, n int) []time.Duration {
	b := newBackoff(base, maxDelay)
	delays := make([]time.Duration, 0, n)

	for range n {
		delays = append(delays, b.NextBackOff())
	}

	return delays
}
