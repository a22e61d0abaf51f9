package core

// Synthesizer merges per-source extractions into cross-source themes, a
// timeline, aggregated statistics and detected controversies. It holds no
// per-run state; one instance can serve many runs concurrently.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer creates a Synthesizer with the given thresholds.
func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Synthesize runs every aggregation stage over the sources. Sources must
// already carry their key facts and credibility scores. All collections in
// the result are non-nil; absence of dates, figures or disagreements yields
// empty slices.
func (s *Synthesizer) Synthesize(query string, sources []Source) Synthesis {
	themes := s.identifyThemes(sources)
	timeline := s.buildTimeline(sources)
	stats := s.aggregateStatistics(sources)
	controversies := s.detectControversies(sources)

	return Synthesis{
		KeyThemes:     themes,
		Timeline:      timeline,
		Statistics:    stats,
		Controversies: controversies,
		Narrative:     s.composeNarrative(query, themes, timeline, stats),
	}
}
