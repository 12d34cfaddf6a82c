package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelUpdateAndView(t *testing.T) {
	m := NewModel("10.0.0.0/24", "80", "eth0", "syn", nil)

	m.Update(ScanStats{Sent: 100, Recv: 3, Total: 256, Progress: 0.5,
		Rate: 2000, Elapsed: 2 * time.Second})
	m.Update(ScanEvent{Type: EvtResult, Line: "open 10.0.0.7 80"})

	view := m.View()
	for _, want := range []string{"pktizr", "open 10.0.0.7 80", "50.0%", "2.0kpps"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelQuitAborts(t *testing.T) {
	aborted := false
	m := NewModel("t", "p", "i", "s", func() { aborted = true })

	_, cmd := m.Update(keyMsg("q"))
	if !aborted {
		t.Error("OnQuit not called")
	}
	if cmd == nil {
		t.Error("no quit command returned")
	}
}

func TestModelEvtDoneQuits(t *testing.T) {
	m := NewModel("t", "p", "i", "s", nil)
	_, cmd := m.Update(ScanEvent{Type: EvtDone})
	if cmd == nil {
		t.Error("EvtDone did not quit")
	}
}

func TestModelLineCap(t *testing.T) {
	m := NewModel("t", "p", "i", "s", nil)
	for i := 0; i < maxLines+100; i++ {
		m.Update(ScanEvent{Type: EvtResult, Line: "x"})
	}
	if len(m.lines) != maxLines {
		t.Errorf("lines = %d, want %d", len(m.lines), maxLines)
	}
}
