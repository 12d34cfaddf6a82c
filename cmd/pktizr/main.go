// pktizr is a scriptable, stateless packet generator and analyzer: it
// enumerates targets x ports under a rate limit, lets a script build
// each probe, and hands every captured reply back to the script.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/ghedo/pktizr/internal/config"
	"github.com/ghedo/pktizr/internal/engine"
	"github.com/ghedo/pktizr/internal/netdev"
	"github.com/ghedo/pktizr/internal/netinfo"
	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/ranges"
	"github.com/ghedo/pktizr/internal/resolv"
	"github.com/ghedo/pktizr/internal/script"
	"github.com/ghedo/pktizr/internal/ui"
)

func main() {
	// ── CLI flags (long + short aliases) ──────────────────────────────
	scriptFlag := flag.String("script", "", "Script to run")
	scriptS := flag.String("S", "", "Script to run (alias)")
	portFlag := flag.String("ports", "1", "Port ranges")
	portP := flag.String("p", "", "Port ranges (alias)")
	rateFlag := flag.Uint64("rate", 100, "Probes per second, 0 = unthrottled")
	rateR := flag.Uint64("r", 0, "Probes per second (alias)")
	seedFlag := flag.Uint64("seed", 0, "Cookie key seed")
	seedS := flag.Uint64("s", 0, "Cookie key seed (alias)")
	waitFlag := flag.Uint64("wait", 5, "Post-scan drain seconds")
	waitW := flag.Uint64("w", 0, "Post-scan drain seconds (alias)")
	countFlag := flag.Uint64("count", 1, "Duplicate probes per (target, port)")
	countC := flag.Uint64("c", 0, "Duplicate probes (alias)")
	localFlag := flag.String("local-addr", "", "Source IP override")
	localL := flag.String("l", "", "Source IP override (alias)")
	gwFlag := flag.String("gateway-addr", "", "Gateway IP override")
	gwG := flag.String("g", "", "Gateway IP override (alias)")
	quietFlag := flag.Bool("quiet", false, "Suppress the status line")
	quietQ := flag.Bool("q", false, "Suppress the status line (alias)")
	ifaceFlag := flag.String("iface", "", "Network interface")
	ifaceI := flag.String("i", "", "Network interface (alias)")
	configFlag := flag.String("config", "", "Config file (YAML)")
	noTUI := flag.Bool("no-tui", false, "Plain-text status output")
	pcapFlag := flag.String("pcap", "", "Record captured frames to a pcap file")
	devFlag := flag.String("netdev", "", "Link driver: afpacket, pcap, rawsock")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pktizr <targets> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Targets: comma-separated A.B.C.D, A.B.C.D-E.F.G.H, or A.B.C.D/prefix\n")
		fmt.Fprintf(os.Stderr, "Scripts: %s\n\nOptions:\n", strings.Join(script.Names(), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Short aliases win over long names when both appear.
	if set["S"] {
		*scriptFlag = *scriptS
	}
	if set["p"] {
		*portFlag = *portP
	}
	if set["r"] {
		*rateFlag = *rateR
	}
	if set["s"] {
		*seedFlag = *seedS
	}
	if set["w"] {
		*waitFlag = *waitW
	}
	if set["c"] {
		*countFlag = *countC
	}
	if set["l"] {
		*localFlag = *localL
	}
	if set["g"] {
		*gwFlag = *gwG
	}
	if set["q"] {
		*quietFlag = true
	}
	if set["i"] {
		*ifaceFlag = *ifaceI
	}

	// ── Config file (flags override file values) ─────────────────────
	var cfg *config.Config
	if *configFlag != "" {
		var err error
		cfg, err = config.Load(*configFlag)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configFlag, err)
		}
		applyConfig(cfg, set, scriptFlag, portFlag, rateFlag, seedFlag,
			waitFlag, countFlag, ifaceFlag, devFlag, localFlag, gwFlag,
			quietFlag, noTUI, pcapFlag)
	}

	// ── Targets ───────────────────────────────────────────────────────
	var targetList []string
	if cfg != nil {
		targetList = append(targetList, cfg.Scan.Targets...)
	}
	targetList = append(targetList, flag.Args()...)
	if len(targetList) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	targets, err := ranges.ParseTargets(strings.Join(targetList, ","))
	if err != nil {
		log.Fatalf("invalid targets: %v", err)
	}
	ports, err := ranges.ParsePorts(*portFlag)
	if err != nil {
		log.Fatalf("invalid ports: %v", err)
	}

	if *scriptFlag == "" {
		log.Fatal("no script provided (use -S)")
	}

	seed := *seedFlag
	if !set["seed"] && !set["s"] && (cfg == nil || cfg.Scan.Seed == 0) {
		seed = pkt.RandomSeed()
	}

	// ── Network discovery ─────────────────────────────────────────────
	details, err := netinfo.Discover(*ifaceFlag)
	if err != nil {
		log.Fatal(err)
	}
	localIP := details.LocalIP
	gatewayIP := details.GatewayIP

	// The two overrides are independent of each other.
	if *localFlag != "" {
		localIP = parseAddrFlag("local-addr", *localFlag)
	}
	if *gwFlag != "" {
		gatewayIP = parseAddrFlag("gateway-addr", *gwFlag)
	}

	dev, err := netdev.Open(*devFlag, details.Iface)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	gatewayMAC, err := resolv.GatewayMAC(dev, details.LocalMAC, localIP, gatewayIP)
	if err != nil {
		log.Fatalf("failed to resolve gateway MAC: %v", err)
	}

	// ── UI mode ───────────────────────────────────────────────────────
	var mode ui.Mode
	switch {
	case *quietFlag:
		mode = ui.ModeSilent
	case *noTUI || !isatty.IsTerminal(os.Stdout.Fd()):
		mode = ui.ModeText
	default:
		mode = ui.ModeTUI
	}

	// ── Engine ────────────────────────────────────────────────────────
	ecfg := engine.Config{
		Targets:    targets,
		Ports:      ports,
		Rate:       *rateFlag,
		Seed:       seed,
		Wait:       *waitFlag,
		Count:      *countFlag,
		Script:     *scriptFlag,
		LocalIP:    localIP,
		LocalMAC:   details.LocalMAC,
		GatewayMAC: gatewayMAC,
		Dev:        dev,
		PcapPath:   *pcapFlag,
	}

	printer := &ui.TextPrinter{Out: os.Stdout, Status: os.Stderr}
	var program *tea.Program

	switch mode {
	case ui.ModeTUI:
		// program is created below, before the engine starts, so the
		// print path never sees it nil.
		ecfg.Print = func(line string) {
			program.Send(ui.ScanEvent{Type: ui.EvtResult, Line: line})
		}
	case ui.ModeText:
		ecfg.Print = func(line string) {
			printer.PrintEvent(ui.ScanEvent{Type: ui.EvtResult, Line: line})
		}
	case ui.ModeSilent:
		ecfg.Print = func(line string) { fmt.Println(line) }
	}

	e, err := engine.New(ecfg)
	if err != nil {
		log.Fatal(err)
	}

	if mode == ui.ModeTUI {
		model := ui.NewModel(strings.Join(targetList, ","), *portFlag,
			details.Iface, *scriptFlag, e.Abort)
		program = tea.NewProgram(model, tea.WithAltScreen())
	}

	// Signals set the stop flag; workers never see them directly.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		for range sigs {
			e.Abort()
		}
	}()

	fmt.Fprintf(os.Stderr, "Scanning %d ports on %d hosts...\n",
		ports.Count(), targets.Count())

	if err := e.Start(); err != nil {
		log.Fatal(err)
	}

	status := makeStatusFn(e, mode, printer, &program)

	switch mode {
	case ui.ModeTUI:
		runDone := make(chan struct{})
		go func() {
			e.Run(status)
			program.Send(ui.ScanEvent{Type: ui.EvtDone})
			close(runDone)
		}()
		if _, err := program.Run(); err != nil {
			log.Fatal(err)
		}
		select {
		case <-runDone:
		default:
			e.Abort()
			e.Abort()
			<-runDone
		}

	default:
		e.Run(status)
		if mode == ui.ModeText {
			printer.Finish()
		}
	}

	signal.Stop(sigs)

	stats := e.Stats()
	fmt.Fprintf(os.Stderr, "Scan finished. Sent: %d, Replies: %d\n",
		stats.Sent, stats.Recv)
}

// makeStatusFn builds the 250ms status callback, deriving the rate from
// successive snapshots.
func makeStatusFn(e *engine.Engine, mode ui.Mode, printer *ui.TextPrinter, program **tea.Program) func(engine.Stats) {
	start := time.Now()
	var lastSent atomic.Uint64
	var lastTime atomic.Int64
	lastTime.Store(start.UnixNano())

	return func(s engine.Stats) {
		now := time.Now()
		elapsed := float64(now.UnixNano()-lastTime.Load()) / 1e9
		var rate float64
		if elapsed > 0 {
			rate = float64(s.Sent-lastSent.Load()) / elapsed
		}
		lastSent.Store(s.Sent)
		lastTime.Store(now.UnixNano())

		progress := float64(0)
		if s.Total > 0 {
			progress = float64(s.Probes) / float64(s.Total)
		}

		stats := ui.ScanStats{
			Sent:     s.Sent,
			Probes:   s.Probes,
			Recv:     s.Recv,
			Total:    s.Total,
			Rate:     rate,
			Progress: progress,
			Elapsed:  now.Sub(start),
		}

		switch mode {
		case ui.ModeTUI:
			if p := *program; p != nil {
				p.Send(stats)
			}
		case ui.ModeText:
			printer.PrintStats(stats)
		}
	}
}

func parseAddrFlag(name, value string) uint32 {
	ip := net.ParseIP(value)
	if ip == nil || ip.To4() == nil {
		log.Fatalf("invalid %s: %s", name, value)
	}
	v4 := ip.To4()
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// applyConfig fills in config-file values for flags the user did not set
// explicitly.
func applyConfig(cfg *config.Config, set map[string]bool,
	scriptFlag, portFlag *string, rateFlag, seedFlag, waitFlag, countFlag *uint64,
	ifaceFlag, devFlag, localFlag, gwFlag *string,
	quietFlag, noTUI *bool, pcapFlag *string,
) {
	s := cfg.Scan
	o := cfg.Output

	if !set["script"] && !set["S"] && s.Script != "" {
		*scriptFlag = s.Script
	}
	if !set["ports"] && !set["p"] && s.Ports != "" {
		*portFlag = s.Ports
	}
	if !set["rate"] && !set["r"] && s.Rate > 0 {
		*rateFlag = s.Rate
	}
	if !set["seed"] && !set["s"] && s.Seed != 0 {
		*seedFlag = s.Seed
	}
	if !set["wait"] && !set["w"] && s.Wait.Duration > 0 {
		*waitFlag = uint64(s.Wait.Duration / time.Second)
	}
	if !set["count"] && !set["c"] && s.Count > 0 {
		*countFlag = s.Count
	}
	if !set["iface"] && !set["i"] && s.Interface != "" {
		*ifaceFlag = s.Interface
	}
	if !set["netdev"] && s.Netdev != "" {
		*devFlag = s.Netdev
	}
	if !set["local-addr"] && !set["l"] && s.LocalAddr != "" {
		*localFlag = s.LocalAddr
	}
	if !set["gateway-addr"] && !set["g"] && s.GatewayAddr != "" {
		*gwFlag = s.GatewayAddr
	}
	if !set["quiet"] && !set["q"] && o.Quiet {
		*quietFlag = true
	}
	if !set["no-tui"] && o.NoTUI {
		*noTUI = true
	}
	if !set["pcap"] && o.Pcap != "" {
		*pcapFlag = o.Pcap
	}
}
