package util

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultJitterRatio is the fraction of each backoff delay that may be randomly subtracted.
const DefaultJitterRatio = 0.5

// Backoff computes retry delays that double from Initial up to Max, with random jitter so that many
// clients failing at once do not retry in lockstep.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	JitterRatio float64

	randLock sync.Mutex
	rand     *rand.Rand
}

// NewBackoff creates a Backoff with the default jitter ratio.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		Initial:     initial,
		Max:         max,
		JitterRatio: DefaultJitterRatio,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // not used for security
	}
}

// Delay returns the delay before retry number attempt, where the first retry is 1.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Initial
	for i := 1; i < attempt && delay < b.Max; i++ {
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.JitterRatio <= 0 || b.rand == nil || delay <= 0 {
		return delay
	}
	b.randLock.Lock()
	jitter := time.Duration(b.rand.Int63n(int64(float64(delay)*b.JitterRatio) + 1))
	b.randLock.Unlock()
	return delay - jitter
}
