package fetch

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// requestBackOff implements the per-request retry schedule from spec.md
// §4.2: a transient HTTP status (429/5xx) sleeps 2^retry seconds; a
// network-layer failure retries immediately on a fresh proxy, since the
// proxy pool's failure penalty already encodes the wait. The caller flips
// transient before each NextBackOff call based on the error just observed.
type requestBackOff struct {
	retry     int
	transient bool
}

var _ backoff.BackOff = (*requestBackOff)(nil)

func newRequestBackOff() *requestBackOff {
	return &requestBackOff{}
}

// NextBackOff returns the delay before the next attempt and advances the
// internal retry counter.
func (b *requestBackOff) NextBackOff() time.Duration {
	defer func() { b.retry++ }()
	if !b.transient {
		return 0
	}
	return time.Duration(math.Pow(2, float64(b.retry))) * time.Second
}

// Reset restarts the retry counter; backoff.Retry calls it once before the
// first attempt of a candidate's sequence.
func (b *requestBackOff) Reset() {
	b.retry = 0
	b.transient = false
}
