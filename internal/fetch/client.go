// Package fetch issues the HTTP requests used by the crawler and the
// download workers: listing pages are fetched and parsed into links, PDF
// pages are returned as a byte stream.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultUserAgent is sent when Options.UserAgent is empty. Many servers
	// reject the stock Go client string.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultListingTimeout = 10 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second

	// maxListingBytes caps how much of a listing page is parsed.
	maxListingBytes = 16 << 20
)

// Options configures a Client.
type Options struct {
	UserAgent string

	// ListingTimeout bounds a whole listing request, body included.
	ListingTimeout time.Duration
	// ConnectTimeout bounds dialing and waiting for response headers on
	// file downloads.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for each read of a file body.
	ReadTimeout time.Duration

	UseDoH      bool
	DoHEndpoint string
	Insecure    bool

	Logger logrus.FieldLogger
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned unexpected status for %s: %s", e.URL, e.Status)
}

// Client fetches listing pages and file streams.
type Client struct {
	opts Options
	http *http.Client
	log  logrus.FieldLogger
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.ListingTimeout <= 0 {
		opts.ListingTimeout = DefaultListingTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Client{
		opts: opts,
		// No client-wide timeout: listings are bounded per request and file
		// bodies by an idle deadline, so large files on slow links finish.
		http: &http.Client{Transport: newTransport(opts)},
		log:  opts.Logger,
	}
}

// FetchListing downloads the page at pageURL and returns its anchor links
// resolved against the page URL.
func (c *Client) FetchListing(ctx context.Context, pageURL string) ([]Link, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ListingTimeout)
	defer cancel()

	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	links, err := ParseLinks(pageURL, io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", pageURL, err)
	}

	c.log.WithFields(logrus.Fields{"url": pageURL, "links": len(links)}).Debug("listing fetched")
	return links, nil
}

// FetchStream starts a download of fileURL. The caller owns the returned
// body. The declared length is -1 when the server did not send one. A body
// that stays silent for ReadTimeout fails with ErrStreamTimeout.
func (c *Client) FetchStream(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.get(ctx, fileURL)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	c.log.WithFields(logrus.Fields{"url": fileURL, "length": resp.ContentLength}).Debug("stream opened")
	return newIdleBody(resp.Body, fileURL, c.opts.ReadTimeout, cancel), resp.ContentLength, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp, nil
}
