// Package engine runs the scan: a loop worker producing probe chains, a
// send worker injecting them, and a recv worker dispatching captured
// frames to the script. The three workers share only the outbound queue,
// a handful of atomic counters, and the stop flags.
package engine

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/ghedo/pktizr/internal/limiter"
	"github.com/ghedo/pktizr/internal/netdev"
	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/queue"
	"github.com/ghedo/pktizr/internal/ranges"
	"github.com/ghedo/pktizr/internal/script"
)

// Config wires an Engine. Targets, Ports, Script and Dev are required.
type Config struct {
	Targets *ranges.List
	Ports   *ranges.List

	Rate  uint64 // probes/sec, 0 = unthrottled
	Seed  uint64
	Wait  uint64 // post-scan drain, seconds
	Count uint64 // duplicate probes per (target, port)

	Script string

	LocalIP    uint32
	LocalMAC   [6]byte
	GatewayMAC [6]byte

	Dev netdev.Device

	// Print receives script result lines; defaults to stdout.
	Print func(line string)

	// PcapPath, when set, records every captured frame to a pcap file.
	PcapPath string
}

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
	Sent   uint64
	Probes uint64
	Recv   uint64
	Total  uint64
}

// Engine owns the workers and their shared state.
type Engine struct {
	cfg   Config
	dev   netdev.Device
	q     *queue.Ring
	cook  *pkt.Cookier
	total uint64

	sent  atomic.Uint64
	probe atomic.Uint64
	recv  atomic.Uint64

	stop   atomic.Bool // observed by the loop worker
	done   atomic.Bool // observed by the send and recv workers
	aborts atomic.Uint64

	loopScript script.Script
	recvScript script.Script

	pcapFile *os.File
	pcapw    *pcapgo.Writer

	wg sync.WaitGroup
}

// New validates the config and builds an engine. No I/O happens yet.
func New(cfg Config) (*Engine, error) {
	if cfg.Targets == nil || cfg.Targets.Count() == 0 {
		return nil, fmt.Errorf("engine: no targets")
	}
	if cfg.Ports == nil || cfg.Ports.Count() == 0 {
		return nil, fmt.Errorf("engine: no ports")
	}
	if cfg.Dev == nil {
		return nil, fmt.Errorf("engine: no netdev")
	}
	if cfg.Count == 0 {
		cfg.Count = 1
	}
	if cfg.Print == nil {
		cfg.Print = func(line string) { fmt.Println(line) }
	}

	return &Engine{
		cfg:   cfg,
		dev:   cfg.Dev,
		q:     queue.New(65536),
		cook:  pkt.NewCookier(cfg.Seed),
		total: cfg.Targets.Count() * cfg.Ports.Count() * cfg.Count,
	}, nil
}

// Total returns the probe count for the whole scan.
func (e *Engine) Total() uint64 { return e.total }

// Stats snapshots the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:   e.sent.Load(),
		Probes: e.probe.Load(),
		Recv:   e.recv.Load(),
		Total:  e.total,
	}
}

// Abort requests an early stop. The first call ends the enumeration; a
// second call also cuts the post-scan drain short.
func (e *Engine) Abort() {
	e.aborts.Add(1)
	e.stop.Store(true)
}

// newEnv builds a script environment. Each env gets its own inject
// buffer so direct sends never race the send worker's scratch.
func (e *Engine) newEnv() *script.Env {
	var buf [2048]byte
	return &script.Env{
		LocalIP: e.cfg.LocalIP,
		Cookies: e.cook,
		PrintFn: e.cfg.Print,
		SendFn: func(c *pkt.Chain) error {
			e.wrapEth(c)
			n, err := pkt.Pack(buf[:], c)
			if err != nil {
				return err
			}
			if err := e.dev.Inject(buf[:n]); err != nil {
				return err
			}
			e.sent.Add(1)
			return nil
		},
	}
}

// wrapEth prepends the Ethernet layer to script-built chains.
func (e *Engine) wrapEth(c *pkt.Chain) {
	if c.Eth() == nil {
		c.Prepend(&pkt.Eth{Src: e.cfg.LocalMAC, Dst: e.cfg.GatewayMAC})
	}
}

// Start loads the two script contexts and launches the workers, waiting
// for each to signal ready before returning.
func (e *Engine) Start() error {
	var err error
	e.loopScript, err = script.Load(e.cfg.Script, e.newEnv())
	if err != nil {
		return err
	}
	e.recvScript, err = script.Load(e.cfg.Script, e.newEnv())
	if err != nil {
		return err
	}

	if e.cfg.PcapPath != "" {
		f, err := os.Create(e.cfg.PcapPath)
		if err != nil {
			return fmt.Errorf("engine: pcap output: %w", err)
		}
		w := pcapgo.NewWriter(f)
		if err := w.WriteFileHeader(2048, layers.LinkTypeEthernet); err != nil {
			f.Close()
			return fmt.Errorf("engine: pcap output: %w", err)
		}
		e.pcapFile, e.pcapw = f, w
	}

	filter := fmt.Sprintf("arp or dst host %s", ranges.FormatAddr(e.cfg.LocalIP))
	if err := e.dev.SetFilter(filter); err != nil {
		log.Printf("warning: capture filter not applied: %v", err)
	}

	for _, w := range []struct {
		name string
		fn   func(ready chan<- struct{})
	}{
		{"recv", e.recvWorker},
		{"send", e.sendWorker},
		{"loop", e.loopWorker},
	} {
		ready := make(chan struct{})
		e.wg.Add(1)
		go func(fn func(chan<- struct{})) {
			defer e.wg.Done()
			fn(ready)
		}(w.fn)
		<-ready
	}
	return nil
}

// Run drives the stop protocol: wait for all probes to be sent (or an
// abort), drain for the configured wait time, then stop the workers and
// join them. The status callback, when non-nil, fires every 250ms.
func (e *Engine) Run(status func(Stats)) {
	const tick = 250 * time.Millisecond

	for e.probe.Load() < e.total && e.aborts.Load() == 0 {
		time.Sleep(tick)
		if status != nil {
			status(e.Stats())
		}
	}

	// Post-scan drain for late replies. A(nother) abort cuts it short;
	// two aborts skip it entirely.
	before := e.aborts.Load()
	deadline := time.Now().Add(time.Duration(e.cfg.Wait) * time.Second)
	for time.Now().Before(deadline) && e.aborts.Load() == before && before < 2 {
		time.Sleep(tick)
		if status != nil {
			status(e.Stats())
		}
	}

	e.stop.Store(true)
	e.done.Store(true)
	e.wg.Wait()

	e.loopScript.Close()
	e.recvScript.Close()
	if e.pcapFile != nil {
		e.pcapFile.Close()
	}
}

// loopWorker enumerates targets x ports x count under the rate limit and
// enqueues what the script builds. Tokens are only debited for chains
// that were actually enqueued.
func (e *Engine) loopWorker(ready chan<- struct{}) {
	bucket := limiter.NewBucket(e.cfg.Rate)
	tgt := e.cfg.Targets.Count()
	count := e.cfg.Count

	close(ready)

	for i := uint64(0); i < e.total; i++ {
		if e.stop.Load() {
			return
		}
		if !bucket.Wait(e.stop.Load) {
			return
		}

		pair := i / count
		daddr := e.cfg.Targets.Pick(pair % tgt)
		dport := uint16(e.cfg.Ports.Pick(pair / tgt))

		chain, err := e.loopScript.Loop(daddr, dport)
		if err != nil {
			log.Printf("script loop error: %v", err)
			continue
		}
		if chain == nil {
			continue
		}
		chain.Probe = true
		e.wrapEth(chain)

		for !e.q.Enqueue(chain) {
			if e.stop.Load() {
				return
			}
			time.Sleep(time.Millisecond)
		}
		bucket.Debit()
	}
}

// sendWorker drains the queue into the device while tokens last.
func (e *Engine) sendWorker(ready chan<- struct{}) {
	bucket := limiter.NewBucket(e.cfg.Rate)

	close(ready)

	for !e.done.Load() {
		if !bucket.Wait(e.done.Load) {
			return
		}

		progressed := false
		for bucket.Tokens() >= 1 {
			chain := e.q.Dequeue()
			if chain == nil {
				break
			}

			buf := e.dev.GetBuf()
			n, err := pkt.Pack(buf, chain)
			if err != nil {
				log.Printf("encode error: %v", err)
				continue // drop the chain, keep going
			}
			if err := e.dev.Inject(buf[:n]); err != nil {
				continue
			}

			e.sent.Add(1)
			if chain.Probe {
				e.probe.Add(1)
			}
			bucket.Debit()
			progressed = true
		}

		if !progressed {
			time.Sleep(200 * time.Microsecond)
		}
	}
}

// recvWorker decodes captured frames and hands them to the script.
// Decode failures drop the frame; script failures drop the packet.
func (e *Engine) recvWorker(ready chan<- struct{}) {
	close(ready)

	for !e.done.Load() {
		frame, ok := e.dev.Capture()
		if !ok {
			continue
		}

		if e.pcapw != nil {
			ci := gopacket.CaptureInfo{
				Timestamp:     time.Now(),
				CaptureLength: len(frame),
				Length:        len(frame),
			}
			e.pcapw.WritePacket(ci, frame)
		}

		chain, err := pkt.Unpack(frame)
		if err != nil {
			e.dev.Release()
			continue
		}

		accepted, err := e.recvScript.Recv(chain)
		if err != nil {
			log.Printf("script recv error: %v", err)
		} else if accepted {
			e.recv.Add(1)
		}
		e.dev.Release()
	}
}
