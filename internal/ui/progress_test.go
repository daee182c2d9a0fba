package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgrab/internal/downloader"
)

type fakeController struct {
	pauses, resumes, stops int
	session                *downloader.Session
}

func (f *fakeController) Pause()                      { f.pauses++ }
func (f *fakeController) Resume()                     { f.resumes++ }
func (f *fakeController) Stop()                       { f.stops++ }
func (f *fakeController) Active() *downloader.Session { return f.session }

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_PauseResumeStop(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, "http://example.com/pub/")
	assert.Equal(t, StateScanning, m.State())

	// Transcript wording does not drive the state.
	m, _ = send(t, m, LogMsg("Found 3 PDFs. Starting downloads..."))
	assert.Equal(t, StateScanning, m.State())

	m, _ = send(t, m, DownloadStartMsg{Total: 3})
	assert.Equal(t, StateDownloading, m.State())
	assert.Contains(t, m.View(), "Files: 0/3")

	m, _ = send(t, m, key("p"))
	assert.Equal(t, StatePaused, m.State())
	assert.Equal(t, 1, ctrl.pauses)

	// A second pause while paused does nothing.
	m, _ = send(t, m, key("p"))
	assert.Equal(t, 1, ctrl.pauses)

	m, _ = send(t, m, key("r"))
	assert.Equal(t, StateDownloading, m.State())
	assert.Equal(t, 1, ctrl.resumes)

	m, cmd := send(t, m, key("s"))
	assert.Equal(t, StateStopping, m.State())
	assert.Equal(t, 1, ctrl.stops)
	assert.False(t, isQuit(cmd))

	m, _ = send(t, m, key("s"), key("p"), key("r"))
	assert.Equal(t, 1, ctrl.stops)
	assert.Equal(t, 1, ctrl.pauses)
	assert.Equal(t, 1, ctrl.resumes)

	assert.Equal(t, []string{
		"Found 3 PDFs. Starting downloads...",
		PausedLine,
		ResumedLine,
		StoppingLine,
	}, m.lines)
}

func TestModel_ResumeWhileScanning(t *testing.T) {
	ctrl := &fakeController{}
	m, _ := send(t, NewModel(ctrl, "http://h/"), key("p"), key("r"))
	assert.Equal(t, StateScanning, m.State())
	assert.Equal(t, 1, ctrl.pauses)
	assert.Equal(t, 1, ctrl.resumes)
}

func TestModel_DownloadStartWhilePaused(t *testing.T) {
	ctrl := &fakeController{}
	m, _ := send(t, NewModel(ctrl, "http://h/"), key("p"), DownloadStartMsg{Total: 2})
	assert.Equal(t, StatePaused, m.State())

	m, _ = send(t, m, key("r"))
	assert.Equal(t, StateDownloading, m.State())
}

func TestModel_QuitStopsSession(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			ctrl := &fakeController{}
			m, cmd := send(t, NewModel(ctrl, "http://h/"), key(k))
			assert.True(t, isQuit(cmd))
			assert.True(t, m.quitting)
			assert.Equal(t, 1, ctrl.stops)
			assert.Equal(t, []string{StoppingLine}, m.lines)
		})
	}
}

func TestModel_ProgressAndSpeed(t *testing.T) {
	m, _ := send(t, NewModel(&fakeController{}, "http://h/"),
		ProgressMsg{Completed: 1, Total: 4},
		SpeedMsg(2.5),
	)
	assert.InDelta(t, 0.25, m.Percent(), 1e-9)
	assert.InDelta(t, 2.5, m.speed, 1e-9)

	view := m.View()
	assert.Contains(t, view, "Files: 1/4")
	assert.Contains(t, view, "Speed: 2.50 MB/s")
	assert.Contains(t, view, "Scanning")
}

func TestModel_TickReadsActiveStats(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, "http://h/")

	m, cmd := send(t, m, tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Zero(t, m.bytes)

	ctrl.session = &downloader.Session{Stats: downloader.NewStats(nil)}
	ctrl.session.Stats.AddDownloaded(2048)

	m, _ = send(t, m, tickMsg(time.Now()))
	assert.Equal(t, uint64(2048), m.bytes)
	assert.Contains(t, m.View(), "2.0 KiB")
}

func TestModel_Done(t *testing.T) {
	sum := downloader.Summary{SessionID: "abc", Found: 2, Completed: 2, Bytes: 3 << 20, Elapsed: 1500 * time.Millisecond}
	m, cmd := send(t, NewModel(&fakeController{}, "http://h/"),
		LogMsg("Completed! Downloaded 2 PDFs (3.00 MB) to 'out' folder."),
		DoneMsg{Summary: sum},
	)
	assert.True(t, isQuit(cmd))
	assert.Equal(t, StateDone, m.State())

	view := m.View()
	assert.Contains(t, view, "Completed! Downloaded 2 PDFs")
	assert.Contains(t, view, "Finished: 2 of 2 PDFs saved (3.0 MiB) in 1.5s")

	// Ticks after completion stop rescheduling.
	_, cmd = send(t, m, tickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestModel_DoneListsFailures(t *testing.T) {
	sum := downloader.Summary{Found: 2, Completed: 1, Failed: 1, Failures: []downloader.Failure{
		{URL: "http://h/b.pdf", Err: errors.New("server returned 404")},
	}}
	m, _ := send(t, NewModel(&fakeController{}, "http://h/"), DoneMsg{Summary: sum})
	assert.Contains(t, m.View(), "failed: http://h/b.pdf: server returned 404")
}

func TestModel_DoneWithError(t *testing.T) {
	m, _ := send(t, NewModel(&fakeController{}, "http://h/"), DoneMsg{Err: errors.New("boom")})
	assert.EqualError(t, m.err, "boom")
	assert.Contains(t, m.View(), "Error: boom")
}

func TestModel_TranscriptIsBounded(t *testing.T) {
	m := NewModel(&fakeController{}, "http://h/")
	for i := 0; i < maxLines+20; i++ {
		m, _ = send(t, m, LogMsg("Scanning: x"))
	}
	assert.Len(t, m.lines, maxLines)
}

func TestModel_WindowSize(t *testing.T) {
	m, _ := send(t, NewModel(&fakeController{}, "http://h/"), tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, maxBarWidth, m.progress.Width)
	assert.Equal(t, 196, m.viewport.Width)
	assert.Equal(t, 30, m.viewport.Height)

	m, _ = send(t, m, tea.WindowSizeMsg{Width: 40, Height: 5})
	assert.Equal(t, 36, m.progress.Width)
	assert.Equal(t, 3, m.viewport.Height)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func TestProgramObserver(t *testing.T) {
	rec := &recordingSender{}
	obs := ProgramObserver(rec)
	obs.OnLog("Scanning: http://h/")
	obs.OnDownloadStart(2)
	obs.OnProgress(1, 2)
	obs.OnSpeed(1.25)

	require.Len(t, rec.msgs, 4)
	assert.Equal(t, LogMsg("Scanning: http://h/"), rec.msgs[0])
	assert.Equal(t, DownloadStartMsg{Total: 2}, rec.msgs[1])
	assert.Equal(t, ProgressMsg{Completed: 1, Total: 2}, rec.msgs[2])
	assert.Equal(t, SpeedMsg(1.25), rec.msgs[3])
}

func TestPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)
	obs := p.Observer()
	obs.OnLog("Starting PDF search from: http://h/")
	assert.Nil(t, obs.OnProgress)

	p.PrintSummary(downloader.Summary{SessionID: "s1", Found: 3, Completed: 1, Failed: 1, Skipped: 1, Cancelled: true, Bytes: 1500,
		Failures: []downloader.Failure{{URL: "http://h/x.pdf", Err: errors.New("connection reset")}}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Starting PDF search from: http://h/", lines[0])
	assert.Equal(t, "Cancelled: 1 of 3 PDFs saved (1.5 KiB) in 0s, 1 failed, 1 skipped [session s1]", lines[1])
	assert.Equal(t, "  failed: http://h/x.pdf: connection reset", lines[2])
}
