package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"pdfgrab/internal/downloader"
)

const (
	maxLines    = 500
	maxBarWidth = 80

	PausedLine   = "--- Download paused ---"
	ResumedLine  = "--- Download resumed ---"
	StoppingLine = "--- Stopping download... ---"
)

// Controller is the part of the engine the TUI drives.
type Controller interface {
	Pause()
	Resume()
	Stop()
	Active() *downloader.Session
}

type State int

const (
	StateScanning State = iota
	StateDownloading
	StatePaused
	StateStopping
	StateDone
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StateDownloading:
		return "Downloading"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateDone:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type tickMsg time.Time

// LogMsg carries one transcript line.
type LogMsg string

// DownloadStartMsg ends the scanning phase.
type DownloadStartMsg struct {
	Total int
}

type ProgressMsg struct {
	Completed int
	Total     int
}

type SpeedMsg float64

// DoneMsg is sent once Download has returned.
type DoneMsg struct {
	Summary downloader.Summary
	Err     error
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("211"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	logStyle    = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			PaddingLeft(1).
			PaddingRight(1)
)

type Model struct {
	ctrl     Controller
	seedURL  string
	progress progress.Model
	viewport viewport.Model
	lines    []string

	state     State
	resumeTo  State
	completed int
	total     int
	speed     float64
	bytes     uint64

	summary  downloader.Summary
	err      error
	quitting bool
}

func NewModel(ctrl Controller, seedURL string) Model {
	vp := viewport.New(maxBarWidth, 10)
	vp.Style = logStyle
	return Model{
		ctrl:     ctrl,
		seedURL:  seedURL,
		progress: progress.New(progress.WithDefaultGradient()),
		viewport: vp,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) State() State     { return m.state }
func (m Model) Percent() float64 { return percent(m.completed, m.total) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 4
		if m.progress.Width > maxBarWidth {
			m.progress.Width = maxBarWidth
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-10, 3)
		return m, nil

	case LogMsg:
		m.appendLine(string(msg))
		return m, nil

	case DownloadStartMsg:
		m.total = msg.Total
		switch {
		case m.state == StateScanning:
			m.state = StateDownloading
		case m.state == StatePaused && m.resumeTo == StateScanning:
			m.resumeTo = StateDownloading
		}
		return m, nil

	case ProgressMsg:
		m.completed, m.total = msg.Completed, msg.Total
		return m, nil

	case SpeedMsg:
		m.speed = float64(msg)
		return m, nil

	case DoneMsg:
		m.state = StateDone
		m.summary = msg.Summary
		m.err = msg.Err
		m.bytes = msg.Summary.Bytes
		m.quitting = true
		return m, tea.Quit

	case tickMsg:
		if m.state == StateDone {
			return m, nil
		}
		if s := m.ctrl.Active(); s != nil {
			m.bytes = s.Stats.GetDownloaded()
		}
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.state != StateDone && m.state != StateStopping {
			m.ctrl.Stop()
			m.appendLine(StoppingLine)
		}
		m.state = StateStopping
		m.quitting = true
		return m, tea.Quit

	case "p":
		if m.state == StateScanning || m.state == StateDownloading {
			m.ctrl.Pause()
			m.resumeTo = m.state
			m.state = StatePaused
			m.appendLine(PausedLine)
		}
		return m, nil

	case "r":
		if m.state == StatePaused {
			m.ctrl.Resume()
			m.state = m.resumeTo
			m.appendLine(ResumedLine)
		}
		return m, nil

	case "s":
		if m.state != StateDone && m.state != StateStopping {
			m.ctrl.Stop()
			m.state = StateStopping
			m.appendLine(StoppingLine)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.state == StateDone {
		return m.doneView()
	}

	header := headerStyle.Render("Grabbing PDFs from " + m.seedURL)
	bar := m.progress.ViewAs(m.Percent())
	status := statusStyle.Render(fmt.Sprintf("%s | Files: %d/%d | Speed: %.2f MB/s | Downloaded: %s",
		m.state, m.completed, m.total, m.speed, humanize.IBytes(m.bytes)))
	help := helpStyle.Render("p pause  r resume  s stop  q quit")

	return lipgloss.NewStyle().Padding(1).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", bar, status, "", m.viewport.View(), help),
	)
}

func (m Model) doneView() string {
	var b strings.Builder
	for _, l := range tail(m.lines, 5) {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
		return b.String()
	}
	b.WriteString(SummaryLine(m.summary))
	b.WriteByte('\n')
	for _, f := range m.summary.Failures {
		b.WriteString(errorStyle.Render(FailureLine(f)))
		b.WriteByte('\n')
	}
	return b.String()
}

func percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
