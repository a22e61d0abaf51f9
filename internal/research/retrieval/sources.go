package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
)

// Pipeline turns a query or an explicit url list into synthesis-ready
// sources: discover, fetch, dedupe, then apply authority weights.
type Pipeline struct {
	search   *SearchClient
	fetcher  *Fetcher
	base     float64
	weights  map[string]float64
	lowAlert float64
	logger   *log.Logger
}

func NewPipeline(cfg config.RetrievalConfig, authority config.AuthorityConfig, tel *telemetry.Telemetry) (*Pipeline, error) {
	logger := log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags)

	search, err := NewSearchClient(cfg.WebSearch, tel)
	if err != nil {
		// Discovery is optional; explicit url lists still work.
		logger.Printf("web search disabled: %v", err)
		search = nil
	}

	weights, err := authority.LoadWeights()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		search:   search,
		fetcher:  NewFetcher(cfg, tel),
		base:     authority.BaseCredibility,
		weights:  weights,
		lowAlert: authority.Alerts.LowCredibility,
		logger:   logger,
	}, nil
}

// Gather returns sources for the query. When urls is empty, candidates come
// from web search. Individual fetch failures become warnings, not errors;
// the batch fails only when nothing at all could be gathered.
func (p *Pipeline) Gather(ctx context.Context, query string, urls []string) ([]core.Source, []string, error) {
	var warnings []string

	hints := make(map[string]SearchResult)
	if len(urls) == 0 {
		if p.search == nil {
			return nil, nil, errors.New("no urls provided and web search is not configured")
		}
		results, err := p.search.Discover(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		if len(results) == 0 {
			return nil, nil, fmt.Errorf("web search returned no results for %q", query)
		}
		for _, result := range results {
			canonical, err := helpers.CanonicalURL(result.URL)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("skipped unusable search result %q: %v", result.URL, err))
				continue
			}
			urls = append(urls, canonical)
			hints[canonical] = result
		}
	}

	// Canonicalize and dedupe before fetching so a repeated url costs one
	// request and one source.
	var targets []string
	seenURL := make(map[string]bool)
	for _, raw := range urls {
		canonical, err := helpers.CanonicalURL(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped invalid url %q: %v", raw, err))
			continue
		}
		if seenURL[canonical] {
			warnings = append(warnings, fmt.Sprintf("skipped duplicate url %s", canonical))
			continue
		}
		seenURL[canonical] = true
		targets = append(targets, canonical)
	}

	pages, fetchWarnings := p.fetcher.FetchAll(ctx, targets)
	warnings = append(warnings, fetchWarnings...)
	byURL := make(map[string]Page, len(pages))
	for _, page := range pages {
		byURL[page.URL] = page
	}

	seenHash := make(map[string]bool)
	var sources []core.Source
	for _, target := range targets {
		fingerprint, err := helpers.URLFingerprint(target)
		if err != nil {
			continue
		}
		hint := hints[target]

		page, fetched := byURL[target]
		if !fetched && hint.Snippet == "" {
			// FetchAll already recorded the failure.
			continue
		}

		content := page.Text
		if content == "" && hint.Snippet != "" {
			content = hint.Snippet
			warnings = append(warnings, fmt.Sprintf("using search snippet for %s", target))
		}
		if content != "" {
			hash := helpers.ContentHash(content)
			if seenHash[hash] {
				warnings = append(warnings, fmt.Sprintf("skipped %s: duplicate content", target))
				continue
			}
			seenHash[hash] = true
		}

		title := page.Title
		if title == "" {
			title = hint.Title
		}
		if title == "" {
			title = target
		}

		sources = append(sources, core.Source{
			ID:               fingerprint[:16],
			URL:              target,
			Title:            title,
			Content:          content,
			Author:           page.Byline,
			PublishedAt:      page.PublishedAt,
			CredibilityScore: p.credibilityFor(helpers.Domain(target)),
		})
	}

	if len(sources) == 0 {
		return nil, warnings, errors.New("no sources could be gathered")
	}
	return sources, warnings, nil
}

// credibilityFor returns the weighted score for hosts with a configured
// authority weight, and zero otherwise so the quality heuristics decide.
func (p *Pipeline) credibilityFor(host string) float64 {
	weight, ok := p.weights[host]
	if !ok {
		return 0
	}
	score := p.base + weight
	if score > 1 {
		score = 1
	}
	if p.lowAlert > 0 && score < p.lowAlert {
		p.logger.Printf("low credibility host admitted: %s (%.2f)", host, score)
	}
	return score
}
