package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

// composeNarrative renders a short deterministic overview of the synthesis:
// a line naming the best-supported themes, up to three timeline entries and
// up to three statistics, always in that order. Free-text generation is an
// optional enrichment outside this package; this template is the contract.
func (s *Synthesizer) composeNarrative(query string, themes []Theme, timeline []TimelineEvent, stats []Statistic) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Research into %q identified %d %s across the collected sources.",
		query, len(themes), pluralize(len(themes), "theme", "themes")))

	var leading []string
	for _, theme := range themes {
		if theme.Consensus == ConsensusStrong || theme.Consensus == ConsensusModerate {
			leading = append(leading, theme.Label)
		}
		if len(leading) == 3 {
			break
		}
	}
	if len(leading) > 0 {
		parts = append(parts, fmt.Sprintf("The clearest cross-source agreement formed around %s.", joinNatural(leading)))
	} else {
		parts = append(parts, "No strong cross-source agreement emerged.")
	}

	if len(timeline) > 0 {
		entries := make([]string, 0, 3)
		for _, ev := range timeline {
			entries = append(entries, fmt.Sprintf("%s (%s)", ev.Date, helpers.Snippet(ev.Event, 80)))
			if len(entries) == 3 {
				break
			}
		}
		parts = append(parts, "Key developments: "+strings.Join(entries, "; ")+".")
	}

	if len(stats) > 0 {
		top := topStatistics(stats, 3)
		entries := make([]string, 0, len(top))
		for _, st := range top {
			entries = append(entries, fmt.Sprintf("%s [%s]", helpers.Snippet(st.Metric, 60), st.Value))
		}
		parts = append(parts, "Notable figures: "+strings.Join(entries, "; ")+".")
	}

	return strings.Join(parts, " ")
}

// topStatistics returns up to n statistics ordered by confidence descending,
// earlier entries winning ties.
func topStatistics(stats []Statistic, n int) []Statistic {
	sorted := make([]Statistic, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
