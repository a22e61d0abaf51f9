package core

import "time"

// Config carries the tunable thresholds and lexicons of the synthesis
// pipeline. Defaults reproduce the documented heuristics; the application
// config layer overrides individual values. Rule priority orders (theme
// buckets, fact categories, report outline) are fixed invariants and are not
// configurable.
type Config struct {
	// Engine.
	MaxWorkers    int
	EnrichTimeout time.Duration

	// Quality assessment.
	BaseCredibility        float64
	HighAuthorityBonus     float64
	MediumAuthorityBonus   float64
	SourceTypeBonus        map[SourceType]float64
	FactualityBonus        float64
	BiasPenalty            float64
	HighAuthorityDomains   []string
	MediumAuthorityDomains []string
	FactualityTokens       []string
	BiasTokens             []string
	FreshDays              int
	RecentDays             int

	// Structured extraction.
	MinSentenceRunes  int
	MaxFactsPerSource int
	TopTopicCount     int
	MinTopicRunes     int

	// Consensus classification.
	ClaimPrefixRunes      int
	ConflictingRatio      float64
	StrongMinConfidence   float64
	StrongMinSources      int
	ModerateMinConfidence float64
	ModerateMinSources    int

	// Timeline and statistics windows, in bytes around the match.
	TimelineWindow    int
	StatContextWindow int

	// Controversy polarity lexicons.
	PositiveTerms []string
	NegativeTerms []string

	// Report metadata.
	ReadingWPM int
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:    4,
		EnrichTimeout: 20 * time.Second,

		BaseCredibility:      0.5,
		HighAuthorityBonus:   0.3,
		MediumAuthorityBonus: 0.15,
		SourceTypeBonus: map[SourceType]float64{
			SourceTypeAcademic:   0.2,
			SourceTypeGovernment: 0.15,
			SourceTypeNews:       0.1,
		},
		FactualityBonus: 0.05,
		BiasPenalty:     0.1,
		HighAuthorityDomains: []string{
			".edu", ".gov", ".mil", ".ac.uk",
			"nature.com", "science.org", "reuters.com", "apnews.com",
			"bbc.co.uk", "bbc.com", "nytimes.com", "wsj.com", "economist.com",
		},
		MediumAuthorityDomains: []string{
			".org",
			"theguardian.com", "washingtonpost.com", "bloomberg.com", "ft.com",
			"npr.org", "scientificamerican.com", "wired.com",
		},
		FactualityTokens: []string{"study", "data", "citation", "peer-review"},
		BiasTokens: []string{
			"opinion", "editorial", "op-ed", "sponsored", "advertisement", "promoted",
		},
		FreshDays:  7,
		RecentDays: 90,

		MinSentenceRunes:  10,
		MaxFactsPerSource: 20,
		TopTopicCount:     10,
		MinTopicRunes:     4,

		ClaimPrefixRunes:      50,
		ConflictingRatio:      0.7,
		StrongMinConfidence:   0.8,
		StrongMinSources:      3,
		ModerateMinConfidence: 0.6,
		ModerateMinSources:    2,

		TimelineWindow:    100,
		StatContextWindow: 50,

		PositiveTerms: []string{
			"increase", "increased", "growth", "grew", "improve", "improved",
			"benefit", "gain", "rise", "rose", "surge", "positive", "success",
		},
		NegativeTerms: []string{
			"decrease", "decreased", "decline", "declined", "drop", "dropped",
			"fall", "fell", "loss", "negative", "risk", "concern", "failure",
		},

		ReadingWPM: 200,
	}
}
