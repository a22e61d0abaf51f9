package core

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

var timelineDatePattern = regexp.MustCompile(
	`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+(?:\d{1,2},?\s+)?\d{4}\b`)

var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"January 2006",
}

// buildTimeline scans every source for month-name dates and lifts the
// surrounding sentence as the event description. Mentions of the same date
// string are merged: source ids are unioned and the longer description wins.
// The result is sorted ascending by parsed date.
func (s *Synthesizer) buildTimeline(sources []Source) []TimelineEvent {
	byDate := make(map[string]*TimelineEvent)
	var order []string

	for _, src := range sources {
		for _, loc := range timelineDatePattern.FindAllStringIndex(src.Content, -1) {
			dateStr := src.Content[loc[0]:loc[1]]
			when, ok := parseMonthDate(dateStr)
			if !ok {
				continue
			}
			sentence := dateSentence(src.Content, loc[0], loc[1], s.cfg.TimelineWindow)

			ev, seen := byDate[dateStr]
			if !seen {
				byDate[dateStr] = &TimelineEvent{
					Date:      dateStr,
					Event:     sentence,
					SourceIDs: []string{src.ID},
					When:      when,
				}
				order = append(order, dateStr)
				continue
			}
			if !containsString(ev.SourceIDs, src.ID) {
				ev.SourceIDs = append(ev.SourceIDs, src.ID)
			}
			if len(sentence) > len(ev.Event) {
				ev.Event = sentence
			}
		}
	}

	out := make([]TimelineEvent, 0, len(order))
	for _, dateStr := range order {
		out = append(out, *byDate[dateStr])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].When.Before(out[j].When)
	})
	return out
}

func parseMonthDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateSentence returns the sentence containing the date match, searching a
// fixed window around it so a date deep inside a large document does not pull
// in unrelated text.
func dateSentence(text string, start, end, window int) string {
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

	dateStr := text[start:end]
	for _, part := range sentenceSplit.Split(text[lo:hi], -1) {
		part = strings.TrimSpace(part)
		if part != "" && strings.Contains(part, dateStr) {
			return part
		}
	}
	return strings.TrimSpace(text[lo:hi])
}

func containsString(list []string, want string) bool {
	for _, have := range list {
		if have == want {
			return true
		}
	}
	return false
}
