package enrich

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/researcher/internal/research/core"
)

func TestParseExtractionFenced(t *testing.T) {
	raw := "```json\n" +
		`{
  "keyFacts": [
    {"claim": " Housing prices increased 12% in 2024. ", "confidence": 0.9, "category": "Statistic", "entities": [" National Housing Board ", ""]}
  ],
  "summary": "  Prices climbed sharply last year.  ",
  "credibilityAssessment": 0.8,
  "mainTopics": ["Housing", " Economics ", ""],
  "sentiment": "Negative"
}` + "\n```"

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction returned error: %v", err)
	}
	if len(got.KeyFacts) != 1 {
		t.Fatalf("expected 1 fact, got %#v", got.KeyFacts)
	}
	fact := got.KeyFacts[0]
	if fact.Claim != "Housing prices increased 12% in 2024." {
		t.Fatalf("unexpected claim %q", fact.Claim)
	}
	if fact.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", fact.Confidence)
	}
	if fact.Category != core.FactStatistic {
		t.Fatalf("unexpected category %q", fact.Category)
	}
	if len(fact.Entities) != 1 || fact.Entities[0] != "National Housing Board" {
		t.Fatalf("unexpected entities %#v", fact.Entities)
	}
	if got.Summary != "Prices climbed sharply last year." {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
	if got.CredibilityAssessment != 0.8 {
		t.Fatalf("unexpected credibility %v", got.CredibilityAssessment)
	}
	if len(got.MainTopics) != 2 || got.MainTopics[0] != "housing" || got.MainTopics[1] != "economics" {
		t.Fatalf("unexpected topics %#v", got.MainTopics)
	}
	if got.Sentiment != "negative" {
		t.Fatalf("unexpected sentiment %q", got.Sentiment)
	}
}

func TestParseExtractionProseWrapped(t *testing.T) {
	raw := `Here is the structured extraction you asked for:

{"keyFacts": [{"claim": "Rents rose 5%.", "confidence": 0.7, "category": "statistic"}], "summary": "Rents rose.", "credibilityAssessment": 0.6, "mainTopics": ["rents"], "sentiment": "neutral"}

Let me know if you need a different format.`

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction returned error: %v", err)
	}
	if len(got.KeyFacts) != 1 || got.KeyFacts[0].Claim != "Rents rose 5%." {
		t.Fatalf("unexpected facts %#v", got.KeyFacts)
	}
	if got.KeyFacts[0].Entities != nil {
		t.Fatalf("expected nil entities, got %#v", got.KeyFacts[0].Entities)
	}
}

func TestParseExtractionNoJSON(t *testing.T) {
	_, err := parseExtraction("I was unable to extract anything from this source.")
	if err == nil {
		t.Fatal("expected error for response without JSON")
	}
	if !strings.Contains(err.Error(), "model response") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseExtractionMalformedPayload(t *testing.T) {
	_, err := parseExtraction(`{"keyFacts": "not an array"}`)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), "malformed extraction payload") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMapCategory(t *testing.T) {
	cases := []struct {
		in   string
		want core.FactCategory
	}{
		{"Statistic", core.FactStatistic},
		{" quote ", core.FactQuote},
		{"DEFINITION", core.FactDefinition},
		{"relationship", core.FactRelationship},
		{"claim", core.FactClaim},
		{"", core.FactCategory("")},
		{"opinion", core.FactCategory("opinion")},
	}
	for _, tc := range cases {
		if got := mapCategory(tc.in); got != tc.want {
			t.Fatalf("mapCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
