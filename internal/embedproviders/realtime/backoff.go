package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// subBatchBackOff models spec.md §4.6's retry schedule: up to 10 attempts,
// delay (11 − retriesLeft) × 2s, capped at 20s.
type subBatchBackOff struct {
	attempt int
}

var _ backoff.BackOff = (*subBatchBackOff)(nil)

func newSubBatchBackOff() *subBatchBackOff { return &subBatchBackOff{} }

func (b *subBatchBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= 10 {
		return backoff.Stop
	}
	retriesLeft := 10 - b.attempt
	delay := time.Duration(11-retriesLeft) * 2 * time.Second
	if delay > 20*time.Second {
		delay = 20 * time.Second
	}
	return delay
}

func (b *subBatchBackOff) Reset() { b.attempt = 0 }
