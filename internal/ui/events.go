package ui

import "time"

// EventType classifies events shown in the status UI.
type EventType int

const (
	EvtResult EventType = iota // a script result line
	EvtInfo                    // startup / informational message
	EvtDone                    // scan finished, quit the TUI
)

// ScanEvent is one event emitted to the UI.
type ScanEvent struct {
	Type EventType
	Line string
}

// ScanStats is a periodic counter snapshot for the status line.
type ScanStats struct {
	Sent     uint64
	Probes   uint64
	Recv     uint64
	Total    uint64
	Rate     float64 // packets/sec over the last interval
	Progress float64 // 0.0 - 1.0
	Elapsed  time.Duration
}

// Mode selects the output style.
type Mode int

const (
	ModeTUI    Mode = iota // bubbletea interactive
	ModeText               // \r status line on stderr, results on stdout
	ModeSilent             // results only
)
