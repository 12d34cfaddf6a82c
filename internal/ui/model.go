package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const maxLines = 512

// Model is the bubbletea TUI: a header, a progress bar over the probe
// count, and the most recent script result lines.
type Model struct {
	Targets string
	Ports   string
	Iface   string
	Script  string

	// OnQuit is invoked when the user aborts from the keyboard.
	OnQuit func()

	stats  ScanStats
	lines  []string
	width  int
	height int
	done   bool
}

// NewModel builds the TUI model.
func NewModel(targets, ports, iface, scriptName string, onQuit func()) *Model {
	return &Model{
		Targets: targets,
		Ports:   ports,
		Iface:   iface,
		Script:  scriptName,
		OnQuit:  onQuit,
		width:   80,
		height:  24,
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done && m.OnQuit != nil {
				m.OnQuit()
			}
			return m, tea.Quit
		}

	case ScanStats:
		m.stats = msg

	case ScanEvent:
		switch msg.Type {
		case EvtDone:
			m.done = true
			return m, tea.Quit
		case EvtResult, EvtInfo:
			m.lines = append(m.lines, msg.Line)
			if len(m.lines) > maxLines {
				m.lines = m.lines[len(m.lines)-maxLines:]
			}
		}
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pktizr"))
	b.WriteString(statStyle.Render(fmt.Sprintf("  %s  ports %s  via %s  script %s",
		m.Targets, m.Ports, m.Iface, m.Script)))
	b.WriteString("\n\n")

	s := m.stats
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n",
		statStyle.Render("sent"), valueStyle.Render(fmt.Sprintf("%d", s.Sent)),
		statStyle.Render("replies"), openStyle.Render(fmt.Sprintf("%d", s.Recv)),
		statStyle.Render("rate"), valueStyle.Render(fmt.Sprintf("%.1fkpps", s.Rate/1000)),
		statStyle.Render("elapsed"), valueStyle.Render(s.Elapsed.Truncate(1e8).String())))

	b.WriteString(m.progressBar())
	b.WriteString("\n\n")

	rows := m.height - 8
	if rows < 1 {
		rows = 1
	}
	start := 0
	if len(m.lines) > rows {
		start = len(m.lines) - rows
	}
	for _, line := range m.lines[start:] {
		b.WriteString(openStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("\nq: abort"))
	return b.String()
}

func (m *Model) progressBar() string {
	width := m.width - 10
	if width < 10 {
		width = 10
	}
	filled := int(m.stats.Progress * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %5.1f%%", barStyle.Render(bar), m.stats.Progress*100)
}
