package downloader

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"pdfgrab/internal/crawler"
	"pdfgrab/internal/fetch"
)

// DefaultChunkSize is the read/write unit for file bodies.
const DefaultChunkSize = 8 * 1024

// Fetcher is what the engine needs from the network layer.
type Fetcher interface {
	FetchListing(ctx context.Context, pageURL string) ([]fetch.Link, error)
	FetchStream(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// Config holds the engine's collaborators and tunables.
type Config struct {
	Fetcher Fetcher
	Logger  logrus.FieldLogger

	PollInterval time.Duration
	ChunkSize    int
	// Now is the clock used for throughput accounting.
	Now func() time.Time
}

// Session is the state owned by one Download invocation.
type Session struct {
	ID      string
	Control *Control
	Stats   *Stats
	namer   *Namer
}

// Engine crawls listings and downloads the PDFs it finds. Only one
// session is active at a time for the control methods; Download calls do
// not share state.
type Engine struct {
	Config Config
	log    logrus.FieldLogger

	mu     sync.Mutex
	active *Session
}

// NewEngine creates a new download engine
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.NewClient(fetch.Options{Logger: cfg.Logger})
	}

	return &Engine{
		Config: cfg,
		log:    cfg.Logger,
	}
}

// Pause suspends the active session. It is a no-op when there is none.
func (e *Engine) Pause() {
	if s := e.Active(); s != nil {
		s.Control.Pause()
	}
}

// Resume continues a paused session.
func (e *Engine) Resume() {
	if s := e.Active(); s != nil {
		s.Control.Resume()
	}
}

// Stop ends the active session and aborts its in-flight transfers.
func (e *Engine) Stop() {
	if s := e.Active(); s != nil {
		s.Control.Stop()
	}
}

// Active returns the running session, or nil.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// begin installs a new active session. The returned context is cancelled
// when the session stops or parent is done.
func (e *Engine) begin(parent context.Context) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	control := newControl(e.Config.PollInterval)
	control.cancel = cancel

	s := &Session{
		ID:      uuid.New().String(),
		Control: control,
		Stats:   NewStats(e.Config.Now),
		namer:   NewNamer(),
	}

	e.mu.Lock()
	e.active = s
	e.mu.Unlock()
	return s, ctx
}

func (e *Engine) end(s *Session) {
	s.Control.Stop()

	e.mu.Lock()
	if e.active == s {
		e.active = nil
	}
	e.mu.Unlock()
}

// Download crawls req.SeedURL and downloads every PDF found into
// req.OutputDir with req.Workers concurrent transfers. Only an invalid
// request is returned as an error; every other failure is reported
// through obs.OnLog and reflected in the Summary.
func (e *Engine) Download(ctx context.Context, req Request, obs Observer) (Summary, error) {
	if err := req.Validate(); err != nil {
		return Summary{}, err
	}

	s, ctx := e.begin(ctx)
	defer e.end(s)

	// Cancelling ctx is a stop like any other.
	stopOnCancel := context.AfterFunc(ctx, s.Control.Stop)
	defer stopOnCancel()

	log := e.log.WithField("session", s.ID)
	sum := Summary{SessionID: s.ID}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		obs.logf("Error creating output folder %s: %v", req.OutputDir, err)
		log.WithError(err).WithField("path", req.OutputDir).Error("cannot create output directory")
		return sum, nil
	}

	obs.logf("Starting PDF search from: %s", req.SeedURL)

	c := &crawler.Crawler{
		Fetcher:  e.Config.Fetcher,
		MaxDepth: req.MaxDepth,
		Gate:     s.Control,
		OnLog:    obs.OnLog,
		Logger:   log,
	}
	pdfs := c.Crawl(ctx, req.SeedURL)
	sum.Found = len(pdfs)

	if len(pdfs) == 0 {
		obs.logf("No PDFs found at %s", req.SeedURL)
		return sum, nil
	}

	obs.logf("Found %d PDFs. Starting downloads...", len(pdfs))
	obs.downloadStart(len(pdfs))
	log.WithFields(logrus.Fields{"pdfs": len(pdfs), "workers": req.Workers}).Info("download phase started")

	e.runPool(ctx, s, req, pdfs, obs, log, &sum)

	s.Control.Stop()
	snap := s.Stats.Snapshot()
	sum.Completed = int(snap.Files)
	sum.Bytes = snap.Bytes
	sum.Elapsed = snap.Elapsed
	sum.AverageSpeed = MegabytesPerSecond(snap.Bytes, snap.Elapsed)

	obs.logf("Completed! Downloaded %d PDFs (%.2f MB) to '%s' folder.", sum.Completed, float64(sum.Bytes)/bytesPerMB, req.OutputDir)
	obs.logf("Average speed: %.2f MB/s", sum.AverageSpeed)
	log.WithFields(logrus.Fields{
		"completed": sum.Completed,
		"failed":    sum.Failed,
		"bytes":     sum.Bytes,
		"cancelled": sum.Cancelled,
	}).Info("download phase finished")

	return sum, nil
}

// runPool fans pdfs out over at most req.Workers goroutines and processes
// results in completion order. Once a stop is observed at a completion
// boundary no further task is started; in-flight workers are waited for so
// their partial files are gone when runPool returns.
func (e *Engine) runPool(ctx context.Context, s *Session, req Request, pdfs []string, obs Observer, log logrus.FieldLogger, sum *Summary) {
	total := len(pdfs)
	results := make(chan result, total)

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	sem := semaphore.NewWeighted(int64(req.Workers))
	var wg sync.WaitGroup
	dispatched := make(chan struct{})

	go func() {
		defer close(dispatched)
		for i, pdfURL := range pdfs {
			if dispatchCtx.Err() != nil || sem.Acquire(dispatchCtx, 1) != nil {
				// Tasks that never started still report, so the
				// results channel always receives total values.
				for _, rest := range pdfs[i:] {
					results <- result{URL: rest, Outcome: OutcomeSkipped}
				}
				return
			}

			wg.Add(1)
			go func(pdfURL string) {
				defer wg.Done()
				defer sem.Release(1)
				results <- e.downloadOne(ctx, s, pdfURL, req.OutputDir, obs, log)
			}(pdfURL)
		}
	}()

	for received := 0; received < total; received++ {
		r := <-results

		if stopped(ctx, s) {
			cancelDispatch()
			sum.Cancelled = true
			obs.logf("Download cancelled by user.")
			break
		}

		log.WithFields(logrus.Fields{"url": r.URL, "path": r.Path, "outcome": r.Outcome.String()}).Debug("task finished")

		switch r.Outcome {
		case OutcomeSuccess:
			completed := int(s.Stats.CompleteFile())
			obs.logf("Downloaded (%d/%d): %s", completed, total, r.URL)
			obs.progress(completed, total)
			if s.Stats.Snapshot().Elapsed > 0 {
				obs.speed(s.Stats.Speed())
			}
		case OutcomeFailed:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{URL: r.URL, Err: r.Err})
		case OutcomeSkipped:
			sum.Skipped++
		}
	}

	cancelDispatch()
	<-dispatched
	wg.Wait()
}
