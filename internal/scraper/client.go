// Package scraper translates aniworld and s.to catalog pages into the
// season/episode model with per-episode language availability. It never
// writes to disk and never invokes the downloader.
package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// userAgents is a small pool rotated per request.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
}

// dohHosts are the hosts whose lookups go through Cloudflare DoH instead of
// the system resolver.
var dohHosts = map[string]struct{}{
	"aniworld.to":     {},
	"www.aniworld.to": {},
	"s.to":            {},
	"www.s.to":        {},
}

// Client fetches and parses site pages. Requests time out after 10 s and
// are not retried; failures surface to the caller.
type Client struct {
	http     *http.Client
	logger   zerolog.Logger
	uaIndex  atomic.Uint64
	resolver *dohResolver
}

// NewClient creates a scraper client with the per-host DoH dialer.
func NewClient(logger zerolog.Logger) *Client {
	c := &Client{
		logger:   logger.With().Str("component", "scraper").Logger(),
		resolver: newDOHResolver(),
	}

	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			if _, ok := dohHosts[strings.ToLower(host)]; !ok {
				return dialer.DialContext(ctx, network, addr)
			}
			addrs, err := c.resolver.LookupAddrs(ctx, host)
			if err != nil {
				// DoH down: fall back to the system resolver rather than
				// failing the request outright.
				return dialer.DialContext(ctx, network, addr)
			}
			var lastErr error
			for _, ip := range addrs {
				conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if dialErr == nil {
					return conn, nil
				}
				lastErr = dialErr
			}
			return nil, fmt.Errorf("dial %s via doh addresses: %w", host, lastErr)
		},
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	c.http = &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}
	return c
}

func (c *Client) nextUserAgent() string {
	n := c.uaIndex.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// get fetches a URL with a rotated User-Agent.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

// document fetches and parses a page into a goquery document.
func (c *Client) document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}
