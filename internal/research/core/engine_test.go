package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func housingRequest() Request {
	return Request{
		Query: "remote work housing",
		Sources: []Source{
			{
				ID: "s1", URL: "https://metro-lender-survey.example.com/report",
				Title: "Lender Survey 2024", Author: "Dana Reed", CredibilityScore: 0.8,
				Content: "A survey of lenders found housing prices increased 12% across major metros. Analysts tie the shift to remote work.",
			},
			{
				ID: "s2", URL: "https://city-data.example.org/housing",
				Title: "City Housing Data", Author: "Chris Boone", CredibilityScore: 0.7,
				Content: "Independent figures show housing prices increased 12% in mid-sized cities over the same period.",
			},
			{
				ID: "s3", URL: "https://contrarian.example.net/analysis",
				Title: "A Contrarian View", Author: "Alex Field", CredibilityScore: 0.6,
				Content: "Adjusted figures show housing prices decreased 3% in real terms once inflation is applied.",
			},
		},
		IncludeGraph: true,
	}
}

func TestRunEndToEndHousing(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	result, err := eng.Run(context.Background(), housingRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	themes := result.Synthesis.KeyThemes
	if len(themes) != 1 {
		t.Fatalf("got %d themes %v, want 1", len(themes), themes)
	}
	if themes[0].Label != "Economic Impact" {
		t.Fatalf("theme = %q, want Economic Impact", themes[0].Label)
	}
	if themes[0].Consensus != ConsensusConflicting {
		t.Fatalf("consensus = %q, want conflicting", themes[0].Consensus)
	}
	if len(themes[0].Evidence) != 3 {
		t.Fatalf("evidence = %v, want one claim per source", themes[0].Evidence)
	}

	if len(result.Synthesis.Controversies) != 1 {
		t.Fatalf("controversies = %v, want 1", result.Synthesis.Controversies)
	}
	positions := result.Synthesis.Controversies[0].Positions
	if len(positions) != 3 {
		t.Fatalf("positions = %v, want all 3 sources", positions)
	}

	if len(result.Bibliography.Entries) != 3 {
		t.Fatalf("bibliography entries = %d, want 3", len(result.Bibliography.Entries))
	}
	if result.Bibliography.Style != "apa" {
		t.Fatalf("style = %q, want default apa", result.Bibliography.Style)
	}

	var ids []string
	for _, sec := range result.Report.Sections {
		ids = append(ids, sec.ID)
	}
	joined := strings.Join(ids, ",")
	if !strings.Contains(joined, "controversies") {
		t.Fatalf("sections = %v, want controversies rendered", ids)
	}
	if strings.Contains(joined, "timeline") {
		t.Fatalf("sections = %v, timeline must be skipped without dated events", ids)
	}

	if result.Graph == nil || len(result.Graph.Nodes) == 0 {
		t.Fatal("graph requested but missing")
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %v, want none for clean input", result.Warnings)
	}
}

func TestRunRespectsCallerScores(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	result, err := eng.Run(context.Background(), housingRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []float64{0.8, 0.7, 0.6}
	for i, src := range result.Sources {
		if !closeTo(src.CredibilityScore, want[i]) {
			t.Fatalf("source %s credibility = %v, want caller-supplied %v", src.ID, src.CredibilityScore, want[i])
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)
	fixed := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return fixed }
	eng.reports.now = eng.now

	first, err := eng.Run(context.Background(), housingRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := eng.Run(context.Background(), housingRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical requests must produce identical results")
	}
}

func TestRunInputValidation(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	src := Source{ID: "a", Content: "text"}
	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "  ", Sources: []Source{src}}},
		{"no sources", Request{Query: "q"}},
		{"missing id", Request{Query: "q", Sources: []Source{{Content: "text"}}}},
		{"duplicate id", Request{Query: "q", Sources: []Source{src, src}}},
		{"bad style", Request{Query: "q", Sources: []Source{src}, CitationStyle: "vancouver"}},
		{"bad sort", Request{Query: "q", Sources: []Source{src}, SortOrder: SortOrder("random")}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := eng.Run(context.Background(), tc.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsInputError(err) {
				t.Fatalf("error = %v, want InputError", err)
			}
			if result != nil {
				t.Fatalf("result = %+v, want nothing partial", result)
			}
		})
	}
}

func TestRunDegradesEmptyContent(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	req := Request{
		Query: "partial input",
		Sources: []Source{
			{ID: "good", URL: "https://example.com/a", Title: "Good", Content: "Prices increased 10% according to the market study."},
			{ID: "empty", URL: "https://example.com/b", Title: "Empty"},
		},
	}
	result, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "extraction degraded for source empty") {
		t.Fatalf("warnings = %v, want a degradation note for the empty source", result.Warnings)
	}
	var degraded Source
	for _, src := range result.Sources {
		if src.ID == "empty" {
			degraded = src
		}
	}
	if degraded.CredibilityScore != 0 {
		t.Fatalf("empty source credibility = %v, want 0", degraded.CredibilityScore)
	}
	if len(result.Bibliography.Entries) != 2 {
		t.Fatalf("bibliography = %v, want both sources cited", result.Bibliography.Entries)
	}
	if len(result.Report.Sections) == 0 {
		t.Fatal("report must still be structurally complete")
	}
}

func TestRunCancelledContext(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := eng.Run(ctx, housingRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Fatal("cancelled run must not surface partial results")
	}
}

type stubEnricher struct {
	payload *EnrichedExtraction
	err     error
	calls   int
}

func (s *stubEnricher) ExtractFacts(_ context.Context, _, _ string) (*EnrichedExtraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func TestRunEnricherOverlay(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{payload: &EnrichedExtraction{
		KeyFacts: []Fact{{
			Claim: "Housing prices increased 14% per enriched analysis", Confidence: 0.9, Category: FactStatistic,
		}},
		Summary:    "Enriched summary.",
		MainTopics: []string{"housing"},
	}}
	eng := NewEngine(DefaultConfig(), stub)

	req := Request{
		Query: "housing",
		Sources: []Source{{
			ID: "s1", URL: "https://example.com", Title: "T", CredibilityScore: 0.8,
			Content: "Housing prices increased 12% this year.",
		}},
	}
	result, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("enricher calls = %d, want 1", stub.calls)
	}
	evidence := result.Synthesis.KeyThemes[0].Evidence
	if len(evidence) != 1 || !strings.Contains(evidence[0].Claim, "14% per enriched analysis") {
		t.Fatalf("evidence = %v, want the enriched fact", evidence)
	}
}

func TestRunEnricherFailureFallsBack(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{err: errors.New("upstream timeout")}
	eng := NewEngine(DefaultConfig(), stub)

	req := Request{
		Query: "housing",
		Sources: []Source{{
			ID: "s1", URL: "https://example.com", Title: "T", CredibilityScore: 0.8,
			Content: "Housing prices increased 12% this year.",
		}},
	}
	result, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "enrichment unavailable") {
		t.Fatalf("warnings = %v, want an enrichment fallback note", result.Warnings)
	}
	evidence := result.Synthesis.KeyThemes[0].Evidence
	if len(evidence) != 1 || !strings.Contains(evidence[0].Claim, "12%") {
		t.Fatalf("evidence = %v, want the heuristic fact", evidence)
	}
}

func TestRunEnricherInvalidPayloadDiscarded(t *testing.T) {
	t.Parallel()

	stub := &stubEnricher{payload: &EnrichedExtraction{
		KeyFacts: []Fact{{Claim: "Out of range", Confidence: 2.0}},
	}}
	eng := NewEngine(DefaultConfig(), stub)

	req := Request{
		Query: "housing",
		Sources: []Source{{
			ID: "s1", URL: "https://example.com", Title: "T", CredibilityScore: 0.8,
			Content: "Housing prices increased 12% this year.",
		}},
	}
	result, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "enrichment unavailable") {
		t.Fatalf("warnings = %v, want the discard note", result.Warnings)
	}
	evidence := result.Synthesis.KeyThemes[0].Evidence
	if !strings.Contains(evidence[0].Claim, "12%") {
		t.Fatalf("evidence = %v, want heuristic facts after discard", evidence)
	}
}

func TestRunKeepsCallerFacts(t *testing.T) {
	t.Parallel()
	eng := NewEngine(DefaultConfig(), nil)

	supplied := Fact{Claim: "Hand-checked: prices increased 9% in the metro market", Confidence: 0.95, Category: FactStatistic}
	req := Request{
		Query: "housing",
		Sources: []Source{{
			ID: "s1", URL: "https://example.com", Title: "T", CredibilityScore: 0.8,
			Content: "Housing prices increased 12% this year.",
			KeyFacts: []Fact{supplied},
		}},
	}
	result, err := eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	evidence := result.Synthesis.KeyThemes[0].Evidence
	if len(evidence) != 1 || evidence[0].Claim != supplied.Claim {
		t.Fatalf("evidence = %v, want the caller-supplied fact kept", evidence)
	}
}

func TestSplitAuthors(t *testing.T) {
	t.Parallel()

	got := splitAuthors("Jane Doe, Bob Smith and Carol White")
	want := []string{"Jane Doe", "Bob Smith", "Carol White"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitAuthors = %v, want %v", got, want)
	}
}
