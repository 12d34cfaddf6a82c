package ui

import (
	"fmt"
	"io"
)

// TextPrinter renders the plain-text status line, matching the classic
// carriage-return style: results go to Out, the status line to Status.
type TextPrinter struct {
	Out    io.Writer
	Status io.Writer
}

// PrintEvent writes a result or info line, clearing the status line
// first so the two don't interleave.
func (p *TextPrinter) PrintEvent(ev ScanEvent) {
	if ev.Type == EvtDone {
		return
	}
	fmt.Fprintf(p.Status, "\r\x1b[2K")
	fmt.Fprintln(p.Out, ev.Line)
}

// PrintStats rewrites the in-place status line.
func (p *TextPrinter) PrintStats(s ScanStats) {
	fmt.Fprintf(p.Status, "\r\x1b[2KProgress: %6.2f%% Rate: %7.2fkpps Sent: %d Replies: %d ",
		s.Progress*100, s.Rate/1000, s.Sent, s.Recv)
}

// Finish terminates the status line.
func (p *TextPrinter) Finish() {
	fmt.Fprintf(p.Status, "\r\x1b[2K")
}
