package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

// Engine wires the extractor, synthesizer, report builder, citation
// formatter and graph builder into one synthesis pipeline. An Engine is
// stateless across runs and safe for concurrent use; each Run owns its
// sources and citation registry exclusively.
type Engine struct {
	cfg       Config
	extractor *Extractor
	synth     *Synthesizer
	reports   *ReportBuilder
	graphs    *GraphBuilder
	enricher  Enricher
	logger    *log.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine builds an Engine. The enricher is optional; pass nil to run on
// heuristics alone.
func NewEngine(cfg Config, enricher Enricher) *Engine {
	return &Engine{
		cfg:       cfg,
		extractor: NewExtractor(cfg),
		synth:     NewSynthesizer(cfg),
		reports:   NewReportBuilder(cfg),
		graphs:    NewGraphBuilder(cfg),
		enricher:  enricher,
		logger:    log.New(log.Writer(), "[CORE] ", log.LstdFlags),
		tracer:    otel.Tracer("researcher/core"),
		now:       time.Now,
	}
}

// Run executes the full pipeline for one request. Per-source extraction is
// parallelized; every aggregation step walks sources in input order so
// results are deterministic regardless of scheduling. Only a malformed
// request or a cancelled context aborts the run; everything else degrades
// into warnings on the result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx, span := e.tracer.Start(ctx, "research.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("research.run_id", runID),
		attribute.Int("research.sources", len(req.Sources)),
	)
	e.logger.Printf("run %s: synthesizing %d sources for %q", runID, len(req.Sources), req.Query)

	sources := make([]Source, len(req.Sources))
	copy(sources, req.Sources)
	extractions := make([]Extraction, len(sources))
	notes := make([]string, len(sources))

	_, extractSpan := e.tracer.Start(ctx, "research.extract")
	sem := make(chan struct{}, e.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for i := range sources {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			e.processSource(ctx, &sources[i], &extractions[i], &notes[i])
		}(i)
	}
	wg.Wait()
	extractSpan.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	warnings := []string{}
	for _, note := range notes {
		if note != "" {
			e.logger.Printf("run %s: %s", runID, note)
			warnings = append(warnings, note)
		}
	}

	_, synthSpan := e.tracer.Start(ctx, "research.synthesize")
	synthesis := e.synth.Synthesize(req.Query, sources)
	synthSpan.End()

	style := req.CitationStyle
	if style == "" {
		style = "apa"
	}
	formatter, err := NewCitationFormatter(style)
	if err != nil {
		return nil, err
	}
	accessed := e.now().UTC()
	for _, src := range sources {
		formatter.AddSource(citationRecordFor(src, accessed))
	}

	order := req.SortOrder
	if order == "" {
		order = SortAlphabetical
	}

	_, reportSpan := e.tracer.Start(ctx, "research.report")
	report := e.reports.Build(req.Query, synthesis, sources, formatter)
	bibliography := formatter.Bibliography(order)
	reportSpan.End()

	result := &Result{
		Query:        req.Query,
		Report:       report,
		Synthesis:    synthesis,
		Bibliography: bibliography,
		Sources:      sources,
		Warnings:     warnings,
	}
	if req.IncludeGraph {
		_, graphSpan := e.tracer.Start(ctx, "research.graph")
		result.Graph = e.graphs.Build(sources, extractions, synthesis.Controversies)
		graphSpan.End()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Printf("run %s: done, %d themes, %d warnings", runID, len(synthesis.KeyThemes), len(warnings))
	return result, nil
}

// processSource fills one source's quality fields and extraction slot.
// Caller-supplied credibility, source type and facts are respected; zero
// values are computed. The enricher, when present and healthy, overlays its
// facts, topics and summary; anything invalid falls back to heuristics.
func (e *Engine) processSource(ctx context.Context, src *Source, ex *Extraction, note *string) {
	quality := e.extractor.AssessQuality(src.URL, src.Content, src.PublishedAt)
	if src.CredibilityScore == 0 {
		src.CredibilityScore = quality.CredibilityScore
	}
	if src.SourceType == "" || src.SourceType == SourceTypeUnknown {
		src.SourceType = quality.SourceType
	}

	*ex = e.extractor.ExtractStructured(src.Content, src.URL)
	ex.SourceID = src.ID

	switch {
	case strings.TrimSpace(src.Content) == "":
		*note = (&ExtractionError{SourceID: src.ID, Err: errors.New("empty content")}).Error()
	case ex.Degraded:
		*note = (&ExtractionError{SourceID: src.ID, Err: errors.New("extractor recovered from panic")}).Error()
	default:
		e.enrich(ctx, src, ex, note)
	}

	if len(src.KeyFacts) == 0 {
		src.KeyFacts = ex.KeyFacts
	}
}

// enrich overlays LLM-extracted facts onto the heuristic extraction. Output
// failing schema validation is discarded wholesale; the run never depends on
// the enricher being available.
func (e *Engine) enrich(ctx context.Context, src *Source, ex *Extraction, note *string) {
	if e.enricher == nil {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	enriched, err := e.enricher.ExtractFacts(tctx, src.Content, src.URL)
	if err != nil {
		*note = fmt.Sprintf("%v for source %s: %v", ErrEnrichmentUnavailable, src.ID, err)
		return
	}
	if err := validateEnriched(enriched); err != nil {
		*note = fmt.Sprintf("%v for source %s: %v", ErrEnrichmentUnavailable, src.ID, err)
		return
	}

	facts := enriched.KeyFacts
	if len(facts) > e.cfg.MaxFactsPerSource {
		facts = facts[:e.cfg.MaxFactsPerSource]
	}
	ex.KeyFacts = facts
	if enriched.Summary != "" {
		ex.Summary = enriched.Summary
	}
	if len(enriched.MainTopics) > 0 {
		ex.MainTopics = enriched.MainTopics
	}
}

// validateEnriched schema-checks an enrichment payload before it may replace
// heuristic output.
func validateEnriched(en *EnrichedExtraction) error {
	if en == nil {
		return errors.New("nil payload")
	}
	if len(en.KeyFacts) == 0 && en.Summary == "" && len(en.MainTopics) == 0 {
		return errors.New("empty payload")
	}
	for i := range en.KeyFacts {
		fact := &en.KeyFacts[i]
		if strings.TrimSpace(fact.Claim) == "" {
			return fmt.Errorf("fact %d: missing claim", i)
		}
		if fact.Confidence < 0 || fact.Confidence > 1 {
			return fmt.Errorf("fact %d: confidence %v out of range", i, fact.Confidence)
		}
		switch fact.Category {
		case FactStatistic, FactClaim, FactQuote, FactDefinition, FactRelationship:
		case "":
			fact.Category = FactClaim
		default:
			return fmt.Errorf("fact %d: unknown category %q", i, fact.Category)
		}
		if fact.Entities == nil {
			fact.Entities = []string{}
		}
	}
	return nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return &InputError{Reason: "empty query"}
	}
	if len(req.Sources) == 0 {
		return &InputError{Reason: "empty source list"}
	}
	seen := make(map[string]struct{}, len(req.Sources))
	for i, src := range req.Sources {
		if strings.TrimSpace(src.ID) == "" {
			return &InputError{Reason: fmt.Sprintf("source %d missing id", i)}
		}
		if _, dup := seen[src.ID]; dup {
			return &InputError{Reason: fmt.Sprintf("duplicate source id %q", src.ID)}
		}
		seen[src.ID] = struct{}{}
	}
	if req.CitationStyle != "" {
		if _, ok := styleRegistry[strings.ToLower(req.CitationStyle)]; !ok {
			return &InputError{Reason: fmt.Sprintf("unknown citation style %q", req.CitationStyle)}
		}
	}
	switch req.SortOrder {
	case "", SortAlphabetical, SortChronological, SortAppearance:
	default:
		return &InputError{Reason: fmt.Sprintf("unknown sort order %q", req.SortOrder)}
	}
	return nil
}

// citationRecordFor derives the bibliography record backing a source.
func citationRecordFor(src Source, accessed time.Time) CitationRecord {
	rec := CitationRecord{
		ID:          src.ID,
		Type:        citationTypeFor(src.SourceType),
		Title:       src.Title,
		URL:         src.URL,
		PublishedAt: src.PublishedAt,
		Publisher:   helpers.Domain(src.URL),
		AccessedAt:  &accessed,
	}
	if strings.TrimSpace(src.Author) != "" {
		rec.Authors = splitAuthors(src.Author)
	}
	return rec
}

func citationTypeFor(st SourceType) CitationType {
	switch st {
	case SourceTypeAcademic:
		return CitationJournal
	case SourceTypeGovernment:
		return CitationReport
	default:
		return CitationWeb
	}
}

// splitAuthors breaks "Jane Doe, Bob Smith and Carol White" into individual
// names.
func splitAuthors(raw string) []string {
	raw = strings.ReplaceAll(raw, " and ", ", ")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
