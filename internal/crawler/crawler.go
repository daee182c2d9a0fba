// Package crawler walks directory-style listings depth first and collects
// the PDF links it finds.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"pdfgrab/internal/fetch"
)

// ParentHref is the literal parent-directory link that is never followed.
const ParentHref = "../"

// ListingFetcher fetches a listing page and returns its links.
type ListingFetcher interface {
	FetchListing(ctx context.Context, pageURL string) ([]fetch.Link, error)
}

// Gate is consulted before each listing is scanned. Proceed blocks while the
// run is paused and reports whether it is still running.
type Gate interface {
	Proceed(ctx context.Context) bool
}

// Crawler discovers PDF links under a seed URL.
type Crawler struct {
	Fetcher  ListingFetcher
	MaxDepth int

	// Gate may be nil, in which case the crawl is never paused or stopped
	// except through ctx.
	Gate Gate
	// OnLog receives transcript lines. May be nil.
	OnLog  func(string)
	Logger logrus.FieldLogger
}

// walk holds the state of a single Crawl call.
type walk struct {
	visited map[string]struct{}
	pdfs    []string
}

// Crawl scans seedURL and its sub-directories up to MaxDepth and returns
// the PDF URLs in discovery order. A PDF linked from several pages is
// returned once per page. Fetch errors are logged and only prune the
// branch they occur on.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) []string {
	w := &walk{visited: make(map[string]struct{})}

	seed, err := fetch.NormalizeURL(seedURL)
	if err != nil {
		c.logf("Error scanning %s: %v", seedURL, err)
		return nil
	}

	c.visit(ctx, w, seed, 0)
	return w.pdfs
}

func (c *Crawler) visit(ctx context.Context, w *walk, pageURL string, depth int) {
	if depth > c.MaxDepth {
		return
	}
	if _, seen := w.visited[pageURL]; seen {
		return
	}

	if !c.proceed(ctx) {
		c.logger().WithField("url", pageURL).Debug("crawl stopped")
		return
	}

	w.visited[pageURL] = struct{}{}
	c.logf("Scanning: %s", pageURL)

	links, err := c.Fetcher.FetchListing(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			c.logger().WithField("url", pageURL).Debug("crawl stopped during fetch")
			return
		}
		c.logf("Error scanning %s: %v", pageURL, err)
		c.logger().WithFields(logrus.Fields{"url": pageURL, "depth": depth}).WithError(err).Warn("listing fetch failed")
		return
	}

	for _, link := range links {
		if link.Href == ParentHref {
			continue
		}

		switch {
		case IsPDF(link.URL):
			w.pdfs = append(w.pdfs, link.URL)
			c.logf("Found PDF: %s", link.URL)
		case link.IsDir && depth < c.MaxDepth:
			c.visit(ctx, w, link.URL, depth+1)
		}
	}
}

func (c *Crawler) proceed(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if c.Gate == nil {
		return true
	}
	return c.Gate.Proceed(ctx)
}

func (c *Crawler) logf(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(fmt.Sprintf(format, args...))
	}
}

func (c *Crawler) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// IsPDF reports whether the path of rawURL ends in .pdf, ignoring case.
func IsPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
