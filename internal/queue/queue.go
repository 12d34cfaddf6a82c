// Package queue implements the outbound packet queue: a bounded MPSC
// ring buffer. In the engine the loop worker enqueues (script sends are
// injected directly and bypass the queue); only the send worker dequeues.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/ghedo/pktizr/internal/pkt"
)

// Ring is a multi-producer single-consumer FIFO of packet chains.
// Producers serialise on a mutex; the consumer runs lock-free against
// the atomic head/tail counters. Per-producer FIFO order is preserved;
// no global order across producers is promised.
type Ring struct {
	mu   sync.Mutex // serialises producers
	buf  []*pkt.Chain
	mask uint64
	head uint64   // next write slot, advanced by producers
	_pad [56]byte // keep head and tail on separate cache lines
	tail uint64   // next read slot, advanced by the consumer
}

// New creates a ring with capacity rounded up to a power of two.
// Minimum capacity is 1024.
func New(minCap int) *Ring {
	capacity := uint64(1024)
	for capacity < uint64(minCap) {
		capacity <<= 1
	}
	return &Ring{
		buf:  make([]*pkt.Chain, capacity),
		mask: capacity - 1,
	}
}

// Enqueue appends a chain. Returns false when the ring is full; the
// caller owns the chain again in that case.
func (r *Ring) Enqueue(c *pkt.Chain) bool {
	r.mu.Lock()
	head := r.head
	tail := atomic.LoadUint64(&r.tail)
	if head-tail >= uint64(len(r.buf)) {
		r.mu.Unlock()
		return false
	}
	r.buf[head&r.mask] = c
	atomic.StoreUint64(&r.head, head+1)
	r.mu.Unlock()
	return true
}

// Dequeue removes and returns the oldest chain, or nil when the ring is
// empty. Single consumer only.
func (r *Ring) Dequeue() *pkt.Chain {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	if tail >= head {
		return nil
	}
	c := r.buf[tail&r.mask]
	r.buf[tail&r.mask] = nil
	atomic.StoreUint64(&r.tail, tail+1)
	return c
}

// Len returns the number of queued chains.
func (r *Ring) Len() int {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	return int(head - tail)
}
