package core

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var statPattern = regexp.MustCompile(
	`(?i)[$€£¥]\s?\d[\d,]*(?:\.\d+)?\s*(?:million|billion|thousand|trillion)?|\d[\d,]*(?:\.\d+)?\s*(?:%|percent|million|billion|thousand|trillion)`)

// aggregateStatistics pulls numeric figures with units out of every source,
// pairing each with its surrounding context as the metric description. The
// figure's confidence is the credibility of the source it came from.
// Duplicate (metric, value) pairs keep the highest-confidence instance; ties
// keep the first seen.
func (s *Synthesizer) aggregateStatistics(sources []Source) []Statistic {
	byKey := make(map[string]int)
	out := make([]Statistic, 0)

	for _, src := range sources {
		for _, loc := range statPattern.FindAllStringIndex(src.Content, -1) {
			value := strings.TrimSpace(src.Content[loc[0]:loc[1]])
			metric := statContext(src.Content, loc[0], loc[1], s.cfg.StatContextWindow)
			if metric == "" {
				continue
			}
			key := metric + "\x00" + value

			idx, seen := byKey[key]
			if !seen {
				byKey[key] = len(out)
				out = append(out, Statistic{
					Metric:     metric,
					Value:      value,
					SourceID:   src.ID,
					Confidence: src.CredibilityScore,
				})
				continue
			}
			if src.CredibilityScore > out[idx].Confidence {
				out[idx].SourceID = src.ID
				out[idx].Confidence = src.CredibilityScore
			}
		}
	}
	return out
}

// statContext grabs a window of text around the matched figure and collapses
// it to a single line.
func statContext(text string, start, end, window int) string {
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}
