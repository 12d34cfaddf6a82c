package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghedo/pktizr/internal/netdev"
	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/ranges"
)

const (
	testLocal = 0x0a000001 // 10.0.0.1
)

var (
	testLocalMAC = [6]byte{0x02, 0, 0, 0, 0, 0x01}
	testGwMAC    = [6]byte{0x02, 0, 0, 0, 0, 0xfe}
)

type frameLog struct {
	mu     sync.Mutex
	chains []*pkt.Chain
}

func (fl *frameLog) add(c *pkt.Chain) {
	fl.mu.Lock()
	fl.chains = append(fl.chains, c)
	fl.mu.Unlock()
}

func (fl *frameLog) snapshot() []*pkt.Chain {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return append([]*pkt.Chain(nil), fl.chains...)
}

// remote plays the far side of the loopback: it records every frame and
// answers TCP SYNs on openPorts with a well-formed SYN+ACK (ackDelta 0)
// or a corrupted one.
func remote(dev netdev.Device, log *frameLog, openPorts map[uint16]bool, ackDelta uint32, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		frame, ok := dev.Capture()
		if !ok {
			continue
		}
		c, err := pkt.Unpack(frame)
		dev.Release()
		if err != nil {
			continue
		}
		log.add(c)

		ip := c.IP4()
		tcp := c.TCP()
		if ip == nil || tcp == nil || !tcp.SYN || tcp.ACK {
			continue
		}
		if !openPorts[tcp.Dport] {
			continue
		}

		synack := pkt.NewTCP(tcp.Dport, tcp.Sport)
		synack.SYN = true
		synack.ACK = true
		synack.Seq = 0x31337
		synack.AckSeq = tcp.Seq + 1 + ackDelta

		reply := pkt.NewChain(
			&pkt.Eth{Src: testGwMAC, Dst: testLocalMAC},
			pkt.NewIP4(ip.Dst, ip.Src),
			synack)
		buf := dev.GetBuf()
		if n, err := pkt.Pack(buf, reply); err == nil {
			dev.Inject(buf[:n])
		}
	}
}

func newTestEngine(t *testing.T, targets, ports string, count, wait uint64, dev netdev.Device, print func(string)) *Engine {
	t.Helper()
	tl, err := ranges.ParseTargets(targets)
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	pl, err := ranges.ParsePorts(ports)
	if err != nil {
		t.Fatalf("ports: %v", err)
	}
	e, err := New(Config{
		Targets:    tl,
		Ports:      pl,
		Rate:       0, // unthrottled for tests
		Seed:       42,
		Wait:       wait,
		Count:      count,
		Script:     "syn",
		LocalIP:    testLocal,
		LocalMAC:   testLocalMAC,
		GatewayMAC: testGwMAC,
		Dev:        dev,
		Print:      print,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// TestSynScanOpenPort runs the full loop/send/recv pipeline over the
// loopback wire: two probes out, one SYN+ACK back, one open port
// reported and a RST follow-up sent.
func TestSynScanOpenPort(t *testing.T) {
	lo := netdev.NewLoopback()
	log := &frameLog{}
	done := make(chan struct{})
	defer close(done)
	go remote(lo.B, log, map[uint16]bool{80: true}, 0, done)

	var mu sync.Mutex
	var lines []string
	print := func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	}

	e := newTestEngine(t, "192.0.2.5/32", "22,80", 1, 1, lo.A, print)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Run(nil)

	stats := e.Stats()
	if stats.Probes != 2 {
		t.Errorf("probes = %d, want 2", stats.Probes)
	}
	if stats.Recv != 1 {
		t.Errorf("recv = %d, want 1", stats.Recv)
	}
	// Sent counts the two probes plus the RST follow-up.
	if stats.Sent != 3 {
		t.Errorf("sent = %d, want 3", stats.Sent)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 1 || !strings.Contains(lines[0], "open 192.0.2.5 80") {
		t.Errorf("lines = %q", lines)
	}

	// The wire saw both probes and the RST, with our addressing.
	var syns, rsts int
	for _, c := range log.snapshot() {
		eth := c.Eth()
		if eth == nil || eth.Src != testLocalMAC || eth.Dst != testGwMAC {
			t.Errorf("bad ethernet addressing: %+v", eth)
		}
		tcp := c.TCP()
		if tcp == nil {
			continue
		}
		switch {
		case tcp.SYN && !tcp.ACK:
			syns++
			ip := c.IP4()
			if ip.Src != testLocal || tcp.Sport != 64434 {
				t.Errorf("probe from %x:%d", ip.Src, tcp.Sport)
			}
		case tcp.RST:
			rsts++
			if tcp.Dport != 80 {
				t.Errorf("rst to port %d", tcp.Dport)
			}
		}
	}
	if syns != 2 || rsts != 1 {
		t.Errorf("wire saw %d syns, %d rsts; want 2, 1", syns, rsts)
	}
}

// TestSynScanCookieMismatch feeds back SYN+ACKs whose ack is off by one:
// nothing may be accepted or reported.
func TestSynScanCookieMismatch(t *testing.T) {
	lo := netdev.NewLoopback()
	log := &frameLog{}
	done := make(chan struct{})
	defer close(done)
	go remote(lo.B, log, map[uint16]bool{80: true}, 1, done)

	var mu sync.Mutex
	var lines []string
	print := func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	}

	e := newTestEngine(t, "192.0.2.5", "80", 1, 1, lo.A, print)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Run(nil)

	if got := e.Stats().Recv; got != 0 {
		t.Errorf("recv = %d, want 0", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 0 {
		t.Errorf("lines = %q", lines)
	}
}

// TestEnumerationMultiplicity checks that every (target, port) pair is
// probed exactly count times.
func TestEnumerationMultiplicity(t *testing.T) {
	lo := netdev.NewLoopback()
	log := &frameLog{}
	done := make(chan struct{})
	defer close(done)
	go remote(lo.B, log, nil, 0, done)

	e := newTestEngine(t, "10.0.0.1,10.0.0.2", "80,443", 3, 0, lo.A, func(string) {})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Run(nil)

	if got := e.Stats().Probes; got != 12 {
		t.Fatalf("probes = %d, want 12", got)
	}

	// Give the last frames time to cross the loopback.
	time.Sleep(50 * time.Millisecond)

	seen := map[[2]uint32]int{}
	for _, c := range log.snapshot() {
		ip := c.IP4()
		tcp := c.TCP()
		if ip == nil || tcp == nil {
			continue
		}
		seen[[2]uint32{ip.Dst, uint32(tcp.Dport)}]++
	}
	if len(seen) != 4 {
		t.Fatalf("%d distinct pairs, want 4", len(seen))
	}
	for pair, n := range seen {
		if n != 3 {
			t.Errorf("pair %v probed %d times, want 3", pair, n)
		}
	}
}

// TestAbortStopsEarly: a large scan aborted twice must stop well short
// of its total.
func TestAbortStopsEarly(t *testing.T) {
	lo := netdev.NewLoopback()
	log := &frameLog{}
	done := make(chan struct{})
	defer close(done)
	go remote(lo.B, log, nil, 0, done)

	tl, _ := ranges.ParseTargets("10.0.0.0/16")
	pl, _ := ranges.ParsePorts("1-100")
	e, err := New(Config{
		Targets: tl, Ports: pl, Rate: 500, Seed: 1, Wait: 30, Count: 1,
		Script: "syn", LocalIP: testLocal,
		LocalMAC: testLocalMAC, GatewayMAC: testGwMAC,
		Dev: lo.A, Print: func(string) {},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		e.Run(nil)
		close(finished)
	}()

	time.Sleep(300 * time.Millisecond)
	e.Abort() // end the enumeration
	e.Abort() // and skip the drain

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after two aborts")
	}
	if got := e.Stats().Probes; got >= e.Total() {
		t.Errorf("probes = %d, scan was not cut short of %d", got, e.Total())
	}
}
