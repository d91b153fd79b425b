package fetcher

import "time"

// Backoff tracks retry state for a single fetch: how many attempts have been
// made and how long to wait before the next one. Delays double per attempt
// and are capped at Max.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

// NewBackoff creates a backoff starting at base and capped at max
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Backoff{Base: base, Max: max}
}

// Attempt returns the number of attempts recorded so far
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Next records an attempt and returns the delay to wait before the following
// one
func (b *Backoff) Next() time.Duration {
	d := b.Base << uint(b.attempt)
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	b.attempt++
	return d
}

// Reset clears the attempt count
func (b *Backoff) Reset() {
	b.attempt = 0
}
