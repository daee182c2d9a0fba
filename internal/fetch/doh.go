package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// CloudflareDoH is the default DNS-over-HTTPS endpoint.
const CloudflareDoH = "https://cloudflare-dns.com/dns-query"

type doHAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

type doHResponse struct {
	Status int         `json:"Status"`
	Answer []doHAnswer `json:"Answer"`
}

// dohResolver looks up A records through a JSON DoH endpoint.
type dohResolver struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func newDoHResolver(endpoint, userAgent string) *dohResolver {
	if endpoint == "" {
		endpoint = CloudflareDoH
	}
	return &dohResolver{
		endpoint:  endpoint,
		userAgent: userAgent,
		// The resolver itself bootstraps over system DNS.
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// dialContext returns a DialContext func that resolves host names via DoH
// before dialing. Literal IPs are dialed directly.
func (r *dohResolver) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, addr)
		}

		ip, err := r.resolve(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DoH resolution failed for %s: %w", host, err)
		}

		return dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

func (r *dohResolver) resolve(ctx context.Context, domain string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("name", domain)
	q.Add("type", "A") // IPv4 only
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/dns-json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DoH server returned status: %s", resp.Status)
	}

	var dohResp doHResponse
	if err := json.NewDecoder(resp.Body).Decode(&dohResp); err != nil {
		return "", err
	}

	if dohResp.Status != 0 {
		return "", fmt.Errorf("DNS error code: %d", dohResp.Status)
	}

	if len(dohResp.Answer) == 0 {
		return "", fmt.Errorf("no DNS answer found for %s", domain)
	}

	for _, ans := range dohResp.Answer {
		if ans.Type == 1 {
			return ans.Data, nil
		}
	}

	return "", fmt.Errorf("no A record found for %s", domain)
}

// newTransport builds the shared transport. Response headers must arrive
// within ConnectTimeout; body reads are bounded by idleBody.
func newTransport(opts Options) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if opts.UseDoH {
		t.DialContext = newDoHResolver(opts.DoHEndpoint, opts.UserAgent).dialContext(dialer)
		t.ForceAttemptHTTP2 = false
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	if opts.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return t
}
