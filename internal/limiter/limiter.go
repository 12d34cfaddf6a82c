// Package limiter provides the token bucket used by the loop and send
// workers; each worker holds its own Bucket at the same rate, and a Bucket
// is not safe for concurrent use. Integer nanosecond arithmetic avoids
// float drift over long scans.
package limiter

import "time"

// sleepQuantum caps each wait so workers stay responsive to stop flags.
const sleepQuantum = time.Millisecond

// Bucket is a token bucket with a one-second burst. Rate 0 means
// unlimited: every operation degrades to a no-op and Tokens reports an
// effectively infinite balance.
type Bucket struct {
	nsPerToken int64
	burst      int64
	tokens     int64
	last       int64 // UnixNano of the last refill
	unlimited  bool
}

// NewBucket creates a bucket for the given rate in tokens per second.
// The bucket starts full.
func NewBucket(rate uint64) *Bucket {
	if rate == 0 {
		return &Bucket{unlimited: true}
	}
	nsPer := int64(1e9) / int64(rate)
	if nsPer < 1 {
		nsPer = 1
	}
	return &Bucket{
		nsPerToken: nsPer,
		burst:      int64(rate),
		tokens:     int64(rate),
		last:       time.Now().UnixNano(),
	}
}

// Consume refills the bucket from the wall clock, capping the balance at
// one second's worth of tokens.
func (b *Bucket) Consume() {
	if b.unlimited {
		return
	}
	now := time.Now().UnixNano()
	n := (now - b.last) / b.nsPerToken
	if n <= 0 {
		return
	}
	b.tokens += n
	b.last += n * b.nsPerToken
	if b.tokens > b.burst {
		b.tokens = b.burst
		b.last = now
	}
}

// Tokens returns the current balance.
func (b *Bucket) Tokens() int64 {
	if b.unlimited {
		return 1 << 62
	}
	return b.tokens
}

// Debit charges one token. Callers check Tokens() >= 1 first.
func (b *Bucket) Debit() {
	if !b.unlimited {
		b.tokens--
	}
}

// Wait blocks until at least one token is available, sleeping in short
// quanta so the stop callback is observed promptly. It returns false when
// stop() reported true before a token became available.
func (b *Bucket) Wait(stop func() bool) bool {
	for {
		b.Consume()
		if b.unlimited || b.tokens >= 1 {
			return true
		}
		if stop != nil && stop() {
			return false
		}
		d := time.Duration((1 - b.tokens) * b.nsPerToken)
		if d > sleepQuantum {
			d = sleepQuantum
		}
		time.Sleep(d)
	}
}
