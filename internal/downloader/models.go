package downloader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	MaxDepthLimit = 10
	MinWorkers    = 1
	MaxWorkers    = 10

	bytesPerMB = 1024 * 1024
)

// ErrInvalidRequest is returned by Download before any network activity
// when the request is malformed.
var ErrInvalidRequest = errors.New("invalid download request")

// Request describes one download invocation.
type Request struct {
	SeedURL   string
	OutputDir string
	MaxDepth  int
	Workers   int
}

// Validate checks the request against the accepted ranges.
func (r Request) Validate() error {
	switch {
	case !strings.HasPrefix(r.SeedURL, "http://") && !strings.HasPrefix(r.SeedURL, "https://"):
		return fmt.Errorf("%w: URL must start with http:// or https://", ErrInvalidRequest)
	case strings.TrimSpace(r.OutputDir) == "":
		return fmt.Errorf("%w: output folder is required", ErrInvalidRequest)
	case r.MaxDepth < 0 || r.MaxDepth > MaxDepthLimit:
		return fmt.Errorf("%w: max depth must be between 0 and %d, got %d", ErrInvalidRequest, MaxDepthLimit, r.MaxDepth)
	case r.Workers < MinWorkers || r.Workers > MaxWorkers:
		return fmt.Errorf("%w: concurrent downloads must be between %d and %d, got %d", ErrInvalidRequest, MinWorkers, MaxWorkers, r.Workers)
	}
	return nil
}

// Observer receives progress events. Callbacks run on the engine's own
// goroutines; any of them may be nil.
type Observer struct {
	OnLog func(line string)
	// OnDownloadStart fires once the crawl is over and total PDFs are
	// about to be downloaded.
	OnDownloadStart func(total int)
	OnProgress      func(completed, total int)
	OnSpeed         func(megabytesPerSecond float64)
}

func (o Observer) logf(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(fmt.Sprintf(format, args...))
	}
}

func (o Observer) downloadStart(total int) {
	if o.OnDownloadStart != nil {
		o.OnDownloadStart(total)
	}
}

func (o Observer) progress(completed, total int) {
	if o.OnProgress != nil {
		o.OnProgress(completed, total)
	}
}

func (o Observer) speed(mbps float64) {
	if o.OnSpeed != nil {
		o.OnSpeed(mbps)
	}
}

// Outcome is the terminal state of one download task.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// result is what a worker hands back for its task.
type result struct {
	URL     string
	Path    string
	Outcome Outcome
	Err     error
}

// Summary reports how a Download invocation ended.
type Summary struct {
	SessionID string
	Found     int
	Completed int
	// Failed and Skipped only count completions processed before a stop.
	Failed       int
	Skipped      int
	Bytes        uint64
	Elapsed      time.Duration
	AverageSpeed float64 // MB/s
	Cancelled    bool
	// Failures lists the failed tasks in completion order.
	Failures []Failure
}

// Failure is one download that ended in OutcomeFailed.
type Failure struct {
	URL string
	Err error
}

// Stats accumulates transfer totals for one session. All access goes
// through a single mutex.
type Stats struct {
	mu              sync.Mutex
	downloadedBytes uint64
	filesCompleted  uint32
	startTime       time.Time
	now             func() time.Time
}

// Snapshot is a consistent read of Stats.
type Snapshot struct {
	Bytes   uint64
	Files   uint32
	Elapsed time.Duration
}

// NewStats starts a Stats clock at now(); a nil now means time.Now.
func NewStats(now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{startTime: now(), now: now}
}

// AddDownloaded adds n transferred bytes.
func (s *Stats) AddDownloaded(n int) {
	s.mu.Lock()
	s.downloadedBytes += uint64(n)
	s.mu.Unlock()
}

// GetDownloaded returns the bytes transferred so far.
func (s *Stats) GetDownloaded() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadedBytes
}

// CompleteFile increments the completed-file counter and returns the new value.
func (s *Stats) CompleteFile() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filesCompleted++
	return s.filesCompleted
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Bytes:   s.downloadedBytes,
		Files:   s.filesCompleted,
		Elapsed: s.now().Sub(s.startTime),
	}
}

// Speed returns the average throughput since the session started in MB/s.
func (s *Stats) Speed() float64 {
	snap := s.Snapshot()
	return MegabytesPerSecond(snap.Bytes, snap.Elapsed)
}

// MegabytesPerSecond converts a byte count over a duration to MB/s
// (1 MB = 1024*1024 bytes). It is 0 when no time has elapsed.
func MegabytesPerSecond(bytes uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / bytesPerMB / elapsed.Seconds()
}
