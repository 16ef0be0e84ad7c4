package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"aniloader/internal/catalog"
)

// SearchResult is one provider hit, normalized across both sites.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Cover    string `json:"cover"`
	Year     int    `json:"year"`
	Provider string `json:"provider"`
}

type searchProvider struct {
	site catalog.Site
	base string
}

var searchProviders = []searchProvider{
	{site: catalog.SiteAniworld, base: "https://aniworld.to"},
	{site: catalog.SiteSTO, base: "https://s.to"},
}

type ajaxSearchHit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Cover       string `json:"cover"`
}

// Search queries both sites' ajax search concurrently and merges the hits.
// A provider failing only drops its half of the results.
func (c *Client) Search(ctx context.Context, query string) []SearchResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []SearchResult
	)
	for _, p := range searchProviders {
		wg.Add(1)
		go func(p searchProvider) {
			defer wg.Done()
			hits, err := c.searchOne(ctx, p, query)
			if err != nil {
				c.logger.Warn().Err(err).Str("provider", string(p.site)).Msg("search provider failed")
				return
			}
			mu.Lock()
			results = append(results, hits...)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

func (c *Client) searchOne(ctx context.Context, p searchProvider, query string) ([]SearchResult, error) {
	form := url.Values{}
	form.Set("keyword", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/ajax/search", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p.site, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: status %d", p.site, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("search %s: read body: %w", p.site, err)
	}

	var hits []ajaxSearchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		// The sites occasionally truncate the response mid-array; try to
		// repair before giving up.
		repaired := repairJSON(string(body))
		if err2 := json.Unmarshal([]byte(repaired), &hits); err2 != nil {
			return nil, fmt.Errorf("search %s: decode: %w", p.site, err)
		}
	}

	return normalizeHits(p, hits), nil
}

// normalizeHits filters the raw ajax hits down to series stream pages and
// absolutizes relative links against the provider base.
func normalizeHits(p searchProvider, hits []ajaxSearchHit) []SearchResult {
	var out []SearchResult
	for _, h := range hits {
		link := strings.TrimSpace(h.Link)
		if link == "" || !strings.Contains(link, "/stream") {
			continue
		}
		if !strings.HasPrefix(link, "http") {
			link = p.base + "/" + strings.TrimLeft(link, "/")
		}
		base, err := SeriesBase(link)
		if err != nil {
			continue
		}
		cover := strings.TrimSpace(h.Cover)
		if cover != "" && !strings.HasPrefix(cover, "http") {
			cover = p.base + "/" + strings.TrimLeft(cover, "/")
		}
		title := cleanSearchTitle(h.Title)
		out = append(out, SearchResult{
			Title:    title,
			URL:      base,
			Cover:    cover,
			Year:     yearFromTitle(title),
			Provider: string(p.site),
		})
	}
	return out
}

var emTagRe = regexp.MustCompile(`</?em>`)

func cleanSearchTitle(title string) string {
	title = emTagRe.ReplaceAllString(title, "")
	return strings.TrimSpace(html.UnescapeString(title))
}

var yearSuffixRe = regexp.MustCompile(`\((\d{4})\)\s*$`)

func yearFromTitle(title string) int {
	m := yearSuffixRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

var trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)

// repairJSON fixes the two truncation shapes the search endpoint produces:
// a dangling partial object at the end of the array, and missing closing
// brackets. Trailing commas left by either are stripped.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "[]"
	}

	// Drop an unterminated final object: cut back to the last '}' so the
	// array only holds complete elements.
	if !strings.HasSuffix(s, "]") && !strings.HasSuffix(s, "}") {
		if idx := strings.LastIndex(s, "}"); idx >= 0 {
			s = s[:idx+1]
		}
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	// Rebalance brackets, ignoring ones inside string literals.
	depthSquare, depthCurly := 0, 0
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '[':
			depthSquare++
		case r == ']':
			depthSquare--
		case r == '{':
			depthCurly++
		case r == '}':
			depthCurly--
		}
	}
	for ; depthCurly > 0; depthCurly-- {
		s += "}"
	}
	for ; depthSquare > 0; depthSquare-- {
		s += "]"
	}
	return s
}
