package queue

import (
	"sync"
	"testing"

	"github.com/ghedo/pktizr/internal/pkt"
)

func TestRingFIFO(t *testing.T) {
	r := New(16)
	chains := make([]*pkt.Chain, 10)
	for i := range chains {
		chains[i] = pkt.NewChain(pkt.NewIP4(uint32(i), 0))
		if !r.Enqueue(chains[i]) {
			t.Fatalf("Enqueue %d failed", i)
		}
	}
	for i := range chains {
		if got := r.Dequeue(); got != chains[i] {
			t.Fatalf("Dequeue %d returned the wrong chain", i)
		}
	}
	if r.Dequeue() != nil {
		t.Error("Dequeue on empty ring returned a chain")
	}
}

func TestRingFull(t *testing.T) {
	r := New(4) // rounds up to 1024
	for i := 0; i < 1024; i++ {
		if !r.Enqueue(pkt.NewChain(pkt.NewIP4(0, 0))) {
			t.Fatalf("Enqueue %d failed before capacity", i)
		}
	}
	if r.Enqueue(pkt.NewChain(pkt.NewIP4(0, 0))) {
		t.Error("Enqueue succeeded on a full ring")
	}
	if r.Dequeue() == nil {
		t.Fatal("Dequeue failed on a full ring")
	}
	if !r.Enqueue(pkt.NewChain(pkt.NewIP4(0, 0))) {
		t.Error("Enqueue failed after a slot was freed")
	}
}

// TestRingProducers drives N producers against one consumer: no chain is
// lost and each producer's chains arrive in its own insertion order.
func TestRingProducers(t *testing.T) {
	const producers = 8
	const perProducer = 5000

	r := New(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c := pkt.NewChain(pkt.NewIP4(uint32(p), uint32(i)))
				for !r.Enqueue(c) {
				}
			}
		}(p)
	}

	done := make(chan map[uint32][]uint32)
	go func() {
		got := make(map[uint32][]uint32)
		n := 0
		for n < producers*perProducer {
			c := r.Dequeue()
			if c == nil {
				continue
			}
			ip := c.IP4()
			got[ip.Src] = append(got[ip.Src], ip.Dst)
			n++
		}
		done <- got
	}()

	wg.Wait()
	got := <-done

	for p := uint32(0); p < producers; p++ {
		seq := got[p]
		if len(seq) != perProducer {
			t.Fatalf("producer %d: %d chains received, want %d", p, len(seq), perProducer)
		}
		for i, v := range seq {
			if v != uint32(i) {
				t.Fatalf("producer %d: out of order at %d: got %d", p, i, v)
			}
		}
	}
}
