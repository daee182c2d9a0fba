package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"pdfgrab/internal/downloader"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramObserver forwards engine events into a running TUI program.
func ProgramObserver(p Sender) downloader.Observer {
	return downloader.Observer{
		OnLog:           func(line string) { p.Send(LogMsg(line)) },
		OnDownloadStart: func(total int) { p.Send(DownloadStartMsg{Total: total}) },
		OnProgress:      func(completed, total int) { p.Send(ProgressMsg{Completed: completed, Total: total}) },
		OnSpeed:         func(mbps float64) { p.Send(SpeedMsg(mbps)) },
	}
}

// Plain writes the transcript line by line, for --no-tui and
// non-interactive output.
type Plain struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPlain(out io.Writer) *Plain {
	return &Plain{out: out}
}

func (p *Plain) Observer() downloader.Observer {
	return downloader.Observer{OnLog: p.Println}
}

func (p *Plain) Println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// PrintSummary writes the closing summary line followed by one line per
// failed download.
func (p *Plain) PrintSummary(s downloader.Summary) {
	p.Println(SummaryLine(s))
	for _, f := range s.Failures {
		p.Println(FailureLine(f))
	}
}

func FailureLine(f downloader.Failure) string {
	return fmt.Sprintf("  failed: %s: %v", f.URL, f.Err)
}

// SummaryLine renders s for humans.
func SummaryLine(s downloader.Summary) string {
	verb := "Finished"
	if s.Cancelled {
		verb = "Cancelled"
	}
	return fmt.Sprintf("%s: %d of %d PDFs saved (%s) in %s, %d failed, %d skipped [session %s]",
		verb, s.Completed, s.Found, humanize.IBytes(s.Bytes), s.Elapsed.Round(time.Millisecond),
		s.Failed, s.Skipped, s.SessionID)
}
