package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// dohEndpoint is Cloudflare's DNS-over-HTTPS JSON API. ISP resolvers fail
// intermittently for the two streaming hosts, so their lookups bypass the
// system resolver entirely.
const dohEndpoint = "https://1.1.1.1/dns-query"

type dohAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

type dohEntry struct {
	addrs   []string
	expires time.Time
}

// dohResolver resolves A and AAAA records through Cloudflare DoH with a
// short positive cache. Scoped to the scraper client; nothing global is
// patched.
type dohResolver struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]dohEntry
}

func newDOHResolver() *dohResolver {
	return &dohResolver{
		client: &http.Client{Timeout: 5 * time.Second},
		cache:  make(map[string]dohEntry),
	}
}

// LookupAddrs returns IPv4 then IPv6 addresses for host.
func (r *dohResolver) LookupAddrs(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	if entry, ok := r.cache[host]; ok && time.Now().Before(entry.expires) {
		addrs := entry.addrs
		r.mu.Unlock()
		return addrs, nil
	}
	r.mu.Unlock()

	var addrs []string
	minTTL := 300
	for _, qtype := range []string{"A", "AAAA"} {
		answers, err := r.query(ctx, host, qtype)
		if err != nil {
			if qtype == "A" {
				return nil, err
			}
			continue // IPv6 is best-effort
		}
		for _, a := range answers {
			// 1 = A, 28 = AAAA; anything else is a CNAME hop.
			if a.Type == 1 || a.Type == 28 {
				addrs = append(addrs, a.Data)
				if a.TTL > 0 && a.TTL < minTTL {
					minTTL = a.TTL
				}
			}
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("doh: no addresses for %s", host)
	}

	r.mu.Lock()
	r.cache[host] = dohEntry{addrs: addrs, expires: time.Now().Add(time.Duration(minTTL) * time.Second)}
	r.mu.Unlock()
	return addrs, nil
}

func (r *dohResolver) query(ctx context.Context, host, qtype string) ([]dohAnswer, error) {
	q := url.Values{}
	q.Set("name", host)
	q.Set("type", qtype)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dohEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("doh request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doh query %s %s: %w", qtype, host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh query %s %s: status %d", qtype, host, resp.StatusCode)
	}

	var parsed dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("doh decode: %w", err)
	}
	if parsed.Status != 0 {
		return nil, fmt.Errorf("doh query %s %s: rcode %d", qtype, host, parsed.Status)
	}
	return parsed.Answer, nil
}
