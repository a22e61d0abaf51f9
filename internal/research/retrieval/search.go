package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
)

// SearchResult is one hit returned by a web search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher finds candidate source urls for a query.
type Searcher interface {
	Discover(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// BraveSearch queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
type BraveSearch struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (s BraveSearch) Discover(ctx context.Context, query string, k int) ([]SearchResult, error) {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1/web/search"
	}
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", baseURL, url.QueryEscape(query), k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := helpers.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search: %s: %s", resp.Status, helpers.Truncate(string(raw), 256))
	}

	var decoded struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	var out []SearchResult
	for i, r := range decoded.Web.Results {
		if i >= k {
			break
		}
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}

func (s BraveSearch) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

// SerperSearch queries the Serper Google search API.
// https://serper.dev/
type SerperSearch struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (s SerperSearch) Discover(ctx context.Context, query string, k int) ([]SearchResult, error) {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = "https://google.serper.dev/search"
	}
	payload, err := json.Marshal(map[string]any{"q": query, "num": k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := helpers.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search: %s: %s", resp.Status, helpers.Truncate(string(raw), 256))
	}

	var decoded struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	var out []SearchResult
	for i, r := range decoded.Organic {
		if i >= k {
			break
		}
		out = append(out, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

func (s SerperSearch) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

// SearchClient wraps a provider with timeouts, logging and telemetry.
type SearchClient struct {
	searcher   Searcher
	provider   string
	maxResults int
	timeout    time.Duration
	tel        *telemetry.Telemetry
	logger     *log.Logger
}

// NewSearchClient picks the first configured provider, preferring Brave.
func NewSearchClient(cfg config.WebSearchConfig, tel *telemetry.Telemetry) (*SearchClient, error) {
	var searcher Searcher
	var provider string
	switch {
	case strings.TrimSpace(cfg.BraveAPIKey) != "":
		searcher = BraveSearch{APIKey: cfg.BraveAPIKey}
		provider = "brave"
	case strings.TrimSpace(cfg.SerperAPIKey) != "":
		searcher = SerperSearch{APIKey: cfg.SerperAPIKey}
		provider = "serper"
	default:
		return nil, errors.New("no web search provider configured")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearchClient{
		searcher:   searcher,
		provider:   provider,
		maxResults: maxResults,
		timeout:    timeout,
		tel:        tel,
		logger:     log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}, nil
}

// Provider names the active search backend.
func (c *SearchClient) Provider() string { return c.provider }

// Discover runs one search and records the outcome.
func (c *SearchClient) Discover(ctx context.Context, query string) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	results, err := c.searcher.Discover(ctx, query, c.maxResults)
	duration := time.Since(start)
	if c.tel != nil {
		event := telemetry.FetchEvent{
			Provider: c.provider,
			URL:      query,
			Duration: duration,
			Success:  err == nil,
			Results:  len(results),
		}
		if err != nil {
			event.Error = err.Error()
		}
		c.tel.RecordFetchEvent(event)
	}
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", c.provider, err)
	}
	c.logger.Printf("discovered %d results for %q", len(results), query)
	return results, nil
}
