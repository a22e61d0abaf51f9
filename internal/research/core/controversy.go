package core

import "strings"

// detectControversies finds theme buckets where contributing sources take
// textually opposed positions. For every bucket with at least two sources,
// each source's highest-confidence claim in that bucket becomes its position;
// the bucket is flagged when the positions contain both a positive and a
// negative polarity term somewhere across the group. Coarse but deterministic.
func (s *Synthesizer) detectControversies(sources []Source) []Controversy {
	type stance struct {
		sourceID   string
		claim      string
		confidence float64
	}
	byTheme := make(map[string][]stance)

	for _, src := range sources {
		best := make(map[string]*stance)
		for _, fact := range src.KeyFacts {
			label := bucketFor(fact.Claim)
			cur, ok := best[label]
			if !ok || fact.Confidence > cur.confidence {
				best[label] = &stance{
					sourceID:   src.ID,
					claim:      fact.Claim,
					confidence: fact.Confidence,
				}
			}
		}
		for _, label := range themeOrder() {
			if st, ok := best[label]; ok {
				byTheme[label] = append(byTheme[label], *st)
			}
		}
	}

	out := make([]Controversy, 0)
	for _, label := range themeOrder() {
		stances := byTheme[label]
		if len(stances) < 2 {
			continue
		}
		positive, negative := false, false
		for _, st := range stances {
			pos, neg := s.polarity(st.claim)
			positive = positive || pos
			negative = negative || neg
		}
		if !positive || !negative {
			continue
		}
		positions := make([]Position, 0, len(stances))
		for _, st := range stances {
			positions = append(positions, Position{
				SourceID:  st.sourceID,
				Statement: st.claim,
			})
		}
		out = append(out, Controversy{Topic: label, Positions: positions})
	}
	return out
}

// polarity reports whether the text contains any positive or negative
// lexicon term, matched on whole words.
func (s *Synthesizer) polarity(text string) (positive, negative bool) {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		words[w] = struct{}{}
	}
	for _, term := range s.cfg.PositiveTerms {
		if _, ok := words[term]; ok {
			positive = true
			break
		}
	}
	for _, term := range s.cfg.NegativeTerms {
		if _, ok := words[term]; ok {
			negative = true
			break
		}
	}
	return positive, negative
}
