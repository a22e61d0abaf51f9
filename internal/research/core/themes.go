package core

import (
	"strings"
	"unicode/utf8"
)

// themeBucket assigns facts to a labeled topical bucket. Buckets are checked
// in order and the first whose keyword list intersects the claim wins, so the
// table order is the priority order.
type themeBucket struct {
	label    string
	keywords []string
}

var themeBuckets = []themeBucket{
	{"Economic Impact", []string{
		"economy", "economic", "price", "prices", "cost", "costs", "market",
		"markets", "financial", "revenue", "profit", "trade", "jobs",
		"employment", "wage", "wages", "income", "inflation", "investment",
		"tax", "gdp", "budget",
	}},
	{"Health & Safety", []string{
		"health", "medical", "disease", "safety", "hospital", "treatment",
		"vaccine", "drug", "mental", "wellness", "injury", "mortality",
		"illness", "patient", "doctor", "epidemic",
	}},
	{"Technology", []string{
		"technology", "software", "digital", "internet", "computer",
		"artificial intelligence", "algorithm", "automation", "cyber",
		"innovation", "robot", "startup", "platform", "machine learning",
	}},
	{"Environmental", []string{
		"environment", "environmental", "climate", "carbon", "emission",
		"emissions", "pollution", "renewable", "energy", "sustainability",
		"ecosystem", "wildlife", "warming", "drought",
	}},
	{"Social Impact", []string{
		"social", "community", "education", "cultural", "society", "housing",
		"inequality", "demographic", "population", "migration", "family",
		"urban", "school", "crime",
	}},
}

const generalThemeLabel = "General"

// bucketFor returns the label of the first bucket whose keywords appear in
// the claim, else the general fallback. Single keywords must match a whole
// word; multi-word keywords match as phrases.
func bucketFor(claim string) string {
	lower := strings.ToLower(claim)
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[w] = struct{}{}
	}
	for _, bucket := range themeBuckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(keyword, " ") {
				if strings.Contains(lower, keyword) {
					return bucket.label
				}
				continue
			}
			if _, ok := words[keyword]; ok {
				return bucket.label
			}
		}
	}
	return generalThemeLabel
}

// themeOrder lists every bucket label in priority order, general last. Themes
// are emitted in this order so output is stable across runs.
func themeOrder() []string {
	order := make([]string, 0, len(themeBuckets)+1)
	for _, bucket := range themeBuckets {
		order = append(order, bucket.label)
	}
	return append(order, generalThemeLabel)
}

// identifyThemes groups every fact across sources into keyword buckets and
// classifies per-theme consensus. Evidence confidence is the fact confidence
// scaled by the owning source's credibility. Sources and their facts are
// walked in input order, so evidence order is stable.
func (s *Synthesizer) identifyThemes(sources []Source) []Theme {
	grouped := make(map[string][]Evidence)
	groupSources := make(map[string]map[string]struct{})

	for _, src := range sources {
		for _, fact := range src.KeyFacts {
			label := bucketFor(fact.Claim)
			grouped[label] = append(grouped[label], Evidence{
				SourceID:   src.ID,
				Claim:      fact.Claim,
				Confidence: fact.Confidence * src.CredibilityScore,
			})
			if groupSources[label] == nil {
				groupSources[label] = make(map[string]struct{})
			}
			groupSources[label][src.ID] = struct{}{}
		}
	}

	themes := make([]Theme, 0, len(grouped))
	for _, label := range themeOrder() {
		evidence, ok := grouped[label]
		if !ok {
			continue
		}
		themes = append(themes, Theme{
			Label:     label,
			Evidence:  evidence,
			Consensus: s.classifyConsensus(evidence, len(groupSources[label])),
		})
	}
	return themes
}

// classifyConsensus grades agreement across a theme's evidence. Claims are
// compared by normalized prefix: when most claims are distinct the sources
// are talking past each other or disagreeing, which marks the theme as
// conflicting. A theme backed by a single source can never conflict; it falls
// through to the confidence ladder.
func (s *Synthesizer) classifyConsensus(evidence []Evidence, distinctSources int) Consensus {
	if len(evidence) == 0 {
		return ConsensusWeak
	}

	unique := make(map[string]struct{}, len(evidence))
	total := 0.0
	for _, ev := range evidence {
		unique[claimKey(ev.Claim, s.cfg.ClaimPrefixRunes)] = struct{}{}
		total += ev.Confidence
	}
	avg := total / float64(len(evidence))

	ratio := float64(len(unique)) / float64(len(evidence))
	if distinctSources >= 2 && ratio > s.cfg.ConflictingRatio {
		return ConsensusConflicting
	}
	if avg > s.cfg.StrongMinConfidence && distinctSources >= s.cfg.StrongMinSources {
		return ConsensusStrong
	}
	if avg > s.cfg.ModerateMinConfidence && distinctSources >= s.cfg.ModerateMinSources {
		return ConsensusModerate
	}
	return ConsensusWeak
}

// claimKey normalizes a claim for agreement comparison: lowercased, trimmed
// and truncated to a fixed rune prefix.
func claimKey(claim string, prefixRunes int) string {
	claim = strings.ToLower(strings.TrimSpace(claim))
	if utf8.RuneCountInString(claim) <= prefixRunes {
		return claim
	}
	runes := []rune(claim)
	return string(runes[:prefixRunes])
}
