package embedding

import (
	"math/rand"
	"time"
)

// Backoff is an exponential backoff policy for transient embedding failures.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// DefaultBackoff returns the retry policy used for embedding batches.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   200 * time.Millisecond,
		Factor: 2,
		Cap:    5 * time.Second,
	}
}

// Delay returns the deterministic delay before retry attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) >= b.Cap {
			return b.Cap
		}
	}
	if time.Duration(d) > b.Cap {
		return b.Cap
	}
	return time.Duration(d)
}

// Jittered returns Delay(attempt) plus up to 25% random jitter so
// concurrent workers do not retry in lockstep.
func (b Backoff) Jittered(attempt int) time.Duration {
	d := b.Delay(attempt)
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
