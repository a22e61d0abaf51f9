package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
)

type extractionPayload struct {
	KeyFacts []struct {
		Claim      string   `json:"claim"`
		Confidence float64  `json:"confidence"`
		Category   string   `json:"category"`
		Evidence   string   `json:"evidence"`
		Entities   []string `json:"entities"`
	} `json:"keyFacts"`
	Summary               string   `json:"summary"`
	CredibilityAssessment float64  `json:"credibilityAssessment"`
	MainTopics            []string `json:"mainTopics"`
	Sentiment             string   `json:"sentiment"`
}

// parseExtraction pulls the JSON object out of a model response, which may
// be fenced or wrapped in prose, and maps it onto the pipeline types. It
// normalizes whitespace and case but leaves semantic validation to the
// caller so a bad payload is discarded as a whole.
func parseExtraction(raw string) (*core.EnrichedExtraction, error) {
	jsonStr, err := helpers.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("model response: %w", err)
	}
	var payload extractionPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}

	out := &core.EnrichedExtraction{
		Summary:               strings.TrimSpace(payload.Summary),
		CredibilityAssessment: payload.CredibilityAssessment,
		Sentiment:             strings.ToLower(strings.TrimSpace(payload.Sentiment)),
	}
	for _, topic := range payload.MainTopics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		out.MainTopics = append(out.MainTopics, strings.ToLower(topic))
	}
	for _, f := range payload.KeyFacts {
		fact := core.Fact{
			Claim:      strings.TrimSpace(f.Claim),
			Confidence: f.Confidence,
			Category:   mapCategory(f.Category),
			Evidence:   strings.TrimSpace(f.Evidence),
		}
		for _, entity := range f.Entities {
			entity = strings.TrimSpace(entity)
			if entity == "" {
				continue
			}
			fact.Entities = append(fact.Entities, entity)
		}
		out.KeyFacts = append(out.KeyFacts, fact)
	}
	return out, nil
}

// mapCategory lowercases the model's category. Unknown values pass through
// unchanged so validation can reject the payload instead of silently
// recategorizing it.
func mapCategory(raw string) core.FactCategory {
	return core.FactCategory(strings.ToLower(strings.TrimSpace(raw)))
}
