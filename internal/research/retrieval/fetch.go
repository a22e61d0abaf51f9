package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
)

const (
	// Article text beyond this is truncated before synthesis.
	maxTextRunes = 20000

	maxConcurrentFetches = 4

	// Robots crawl delays above this are capped so a hostile robots.txt
	// cannot stall the pipeline.
	maxCrawlDelay = 5 * time.Second
)

var (
	ErrHostDisallowed = errors.New("host not allowed by fetch policy")
	ErrPaywalled      = errors.New("host is paywalled")
	ErrRobotsBlocked  = errors.New("blocked by robots.txt")
)

// Page is the extracted content of one fetched url.
type Page struct {
	URL         string
	Host        string
	Title       string
	Byline      string
	Text        string
	PublishedAt *time.Time
	ContentHash string
	Status      int
	Duration    time.Duration

	// Changed is false when the content hash matches the previous fetch
	// of the same url within the history window.
	Changed bool
}

// Fetcher downloads pages subject to the fetch policy, robots.txt and
// per-host rate limits.
type Fetcher struct {
	cfg        config.FetchConfig
	policy     config.FetchPolicyConfig
	httpClient *http.Client
	robots     *RobotsChecker
	limiter    *HostLimiter
	history    *gocache.Cache
	tel        *telemetry.Telemetry
	logger     *log.Logger
}

func NewFetcher(cfg config.RetrievalConfig, tel *telemetry.Telemetry) *Fetcher {
	fetchCfg := cfg.Fetch.Normalize()
	return &Fetcher{
		cfg:        fetchCfg,
		policy:     cfg.Policy.Normalize(),
		httpClient: &http.Client{Timeout: fetchCfg.Timeout},
		robots:     NewRobotsChecker(fetchCfg.UserAgent, fetchCfg.Timeout, fetchCfg.RobotsCacheTTL),
		limiter:    NewHostLimiter(fetchCfg.RequestsPerHost, fetchCfg.Burst),
		history:    gocache.New(fetchCfg.RobotsCacheTTL, 2*fetchCfg.RobotsCacheTTL),
		tel:        tel,
		logger:     log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

// Fetch downloads and extracts one url.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	canonical, err := helpers.CanonicalURL(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("canonicalize %s: %w", rawURL, err)
	}
	host := helpers.Domain(canonical)

	if !f.policy.Allows(host) {
		return Page{}, fmt.Errorf("%w: %s", ErrHostDisallowed, host)
	}
	if f.policy.Paywalled(host) {
		return Page{}, fmt.Errorf("%w: %s", ErrPaywalled, host)
	}
	if f.policy.RespectRobots && !f.robots.Allowed(ctx, canonical) {
		return Page{}, fmt.Errorf("%w: %s", ErrRobotsBlocked, canonical)
	}
	if err := f.limiter.Wait(ctx, host); err != nil {
		return Page{}, err
	}
	if f.policy.RespectRobots {
		if delay := f.robots.CrawlDelay(ctx, canonical); delay > 0 {
			if delay > maxCrawlDelay {
				delay = maxCrawlDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Page{}, ctx.Err()
			}
		}
	}

	start := time.Now()
	var pageHTML string
	var status int
	if f.cfg.RenderJS {
		pageHTML, err = f.renderHTML(ctx, canonical)
		status = http.StatusOK
	} else {
		pageHTML, status, err = f.downloadHTML(ctx, canonical)
	}
	duration := time.Since(start)
	f.recordEvent(canonical, duration, err)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", canonical, err)
	}

	page := f.extract(canonical, pageHTML)
	page.Host = host
	page.Status = status
	page.Duration = duration
	f.markHistory(&page)
	return page, nil
}

// FetchAll downloads urls concurrently, preserving input order. Failures do
// not abort the batch; they come back as per-url warnings.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Page, []string) {
	pages := make([]*Page, len(urls))
	notes := make([]string, len(urls))

	sem := make(chan struct{}, maxConcurrentFetches)
	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			page, err := f.Fetch(ctx, target)
			if err != nil {
				notes[idx] = fmt.Sprintf("fetch failed for %s: %v", target, err)
				return
			}
			pages[idx] = &page
		}(i, rawURL)
	}
	wg.Wait()

	var out []Page
	var warnings []string
	for i := range urls {
		if pages[i] != nil {
			out = append(out, *pages[i])
		}
		if notes[i] != "" {
			warnings = append(warnings, notes[i])
		}
	}
	return out, warnings
}

func (f *Fetcher) downloadHTML(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", resp.StatusCode, fmt.Errorf("status %s", resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !textContentType(contentType) {
		return "", resp.StatusCode, fmt.Errorf("unsupported content type %q", contentType)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(raw), resp.StatusCode, nil
}

func textContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

// renderHTML drives a headless browser for pages that need JavaScript.
func (f *Fetcher) renderHTML(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(f.cfg.UserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var rendered string
	err := chromedp.Run(bctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	)
	return rendered, err
}

// extract pulls readable article content out of the page, falling back to
// sanitized plain text when readability cannot find an article.
func (f *Fetcher) extract(canonical, pageHTML string) Page {
	page := Page{URL: canonical}

	article, err := readability.FromReader(strings.NewReader(pageHTML), mustParseURL(canonical))
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = strings.TrimSpace(article.Title)
		page.Byline = strings.TrimSpace(article.Byline)
		page.Text = helpers.Truncate(strings.TrimSpace(article.TextContent), maxTextRunes)
		page.PublishedAt = article.PublishedTime
	} else {
		page.Title = htmlTitle(pageHTML)
		text := helpers.SanitizeHTMLStrict(pageHTML)
		page.Text = helpers.Truncate(strings.Join(strings.Fields(text), " "), maxTextRunes)
	}

	page.ContentHash = helpers.ContentHash(page.Text)
	return page
}

// htmlTitle returns the document's <title> text, if any.
func htmlTitle(pageHTML string) string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// markHistory compares the page against the previous fetch of the same url
// and records the new snapshot. Re-runs use Changed to skip stale work.
func (f *Fetcher) markHistory(page *Page) {
	fingerprint, err := helpers.URLFingerprint(page.URL)
	if err != nil {
		page.Changed = true
		return
	}
	now := time.Now()
	var prev helpers.DiffSnapshot
	if cached, ok := f.history.Get(fingerprint); ok {
		prev = cached.(helpers.DiffSnapshot)
	}
	decision := helpers.EvaluateDiff(prev, page.Text, now)
	page.Changed = decision.Changed
	f.history.SetDefault(fingerprint, helpers.DiffSnapshot{
		Hash:     decision.CurrentHash,
		LastSeen: now,
	})
}

func (f *Fetcher) recordEvent(target string, duration time.Duration, err error) {
	if f.tel == nil {
		return
	}
	event := telemetry.FetchEvent{
		Provider: "fetch",
		URL:      target,
		Duration: duration,
		Success:  err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Results = 1
	}
	f.tel.RecordFetchEvent(event)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
