package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// citeMarker is the in-text placeholder replaced by EmbedCitations.
var citeMarker = regexp.MustCompile(`\[CITE:([^\]]+)\]`)

// undatedSort stands in for missing publish dates in chronological order.
var undatedSort = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// citationStyle is implemented once per supported style. Inline rendering
// receives resolved records with their 1-based registry positions; numeric
// styles use the position, textual styles use the author list.
type citationStyle interface {
	name() string
	inline(refs []inlineRef, page string, nextFootnote func() int) string
	entry(rec CitationRecord, index int) string
}

type inlineRef struct {
	record CitationRecord
	index  int
}

// CitationFormatter owns the citation registry for one report. Records keep
// their insertion position, which numeric styles use as the citation index,
// so callers must register sources in a fixed, reproducible order. Not safe
// for concurrent use; build one per run.
type CitationFormatter struct {
	style     citationStyle
	records   []CitationRecord
	positions map[string]int
	footnote  int
}

// NewCitationFormatter creates a formatter for the named style. The style
// must be one of apa, mla, chicago, harvard, ieee or nature.
func NewCitationFormatter(styleName string) (*CitationFormatter, error) {
	style, ok := styleRegistry[strings.ToLower(strings.TrimSpace(styleName))]
	if !ok {
		return nil, &InputError{Reason: fmt.Sprintf("unknown citation style %q", styleName)}
	}
	return &CitationFormatter{
		style:     style,
		positions: make(map[string]int),
	}, nil
}

// StyleName reports the active style.
func (f *CitationFormatter) StyleName() string {
	return f.style.name()
}

// AddSource registers a citation record. Re-registering an id replaces the
// stored record but keeps its original position.
func (f *CitationFormatter) AddSource(rec CitationRecord) {
	if pos, ok := f.positions[rec.ID]; ok {
		f.records[pos] = rec
		return
	}
	f.positions[rec.ID] = len(f.records)
	f.records = append(f.records, rec)
}

// Record returns the registered record for id.
func (f *CitationFormatter) Record(id string) (CitationRecord, bool) {
	pos, ok := f.positions[id]
	if !ok {
		return CitationRecord{}, false
	}
	return f.records[pos], true
}

// FormatInline renders the in-text citation for the given registered ids in
// the active style. Unknown ids are skipped; if none resolve, the result is
// empty. The page reference is honored by styles that cite pages.
func (f *CitationFormatter) FormatInline(ids []string, page string) string {
	refs := f.resolve(ids)
	if len(refs) == 0 {
		return ""
	}
	return f.style.inline(refs, page, f.nextFootnote)
}

// EmbedCitations replaces [CITE:id1,id2] markers with the style-appropriate
// inline form. Markers whose ids are all unknown are removed.
func (f *CitationFormatter) EmbedCitations(text string) string {
	return citeMarker.ReplaceAllStringFunc(text, func(marker string) string {
		inner := citeMarker.FindStringSubmatch(marker)[1]
		var ids []string
		for _, id := range strings.Split(inner, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return f.FormatInline(ids, "")
	})
}

// Bibliography renders every registered record in the requested order.
// Records failing validation are reported in Warnings but still formatted
// best-effort; validation never blocks generation.
func (f *CitationFormatter) Bibliography(order SortOrder) Bibliography {
	sorted := f.sortedRecords(order)

	bib := Bibliography{
		Style:     f.style.name(),
		SortOrder: order,
		Entries:   make([]BibliographyEntry, 0, len(sorted)),
		Warnings:  []string{},
	}
	for _, rec := range sorted {
		if warning := validateRecord(rec); warning != nil {
			bib.Warnings = append(bib.Warnings, warning.String())
		}
		bib.Entries = append(bib.Entries, BibliographyEntry{
			ID:        rec.ID,
			Formatted: f.style.entry(rec, f.positions[rec.ID]+1),
		})
	}
	return bib
}

func (f *CitationFormatter) resolve(ids []string) []inlineRef {
	refs := make([]inlineRef, 0, len(ids))
	for _, id := range ids {
		if pos, ok := f.positions[id]; ok {
			refs = append(refs, inlineRef{record: f.records[pos], index: pos + 1})
		}
	}
	return refs
}

func (f *CitationFormatter) nextFootnote() int {
	f.footnote++
	return f.footnote
}

func (f *CitationFormatter) sortedRecords(order SortOrder) []CitationRecord {
	sorted := make([]CitationRecord, len(f.records))
	copy(sorted, f.records)

	switch order {
	case SortAlphabetical:
		sort.SliceStable(sorted, func(i, j int) bool {
			return alphaSortKey(sorted[i]) < alphaSortKey(sorted[j])
		})
	case SortChronological:
		sort.SliceStable(sorted, func(i, j int) bool {
			return publishedOr(sorted[i], undatedSort).After(publishedOr(sorted[j], undatedSort))
		})
	case SortAppearance:
		// insertion order, unchanged
	}
	return sorted
}

// alphaSortKey orders by first author surname, falling back to the title for
// authorless records.
func alphaSortKey(rec CitationRecord) string {
	if len(rec.Authors) > 0 {
		return strings.ToLower(surnameOf(rec.Authors[0]))
	}
	return strings.ToLower(rec.Title)
}

func publishedOr(rec CitationRecord, fallback time.Time) time.Time {
	if rec.PublishedAt != nil && !rec.PublishedAt.IsZero() {
		return *rec.PublishedAt
	}
	return fallback
}

// validateRecord enumerates required fields a record is missing, or nil when
// it is complete enough to cite cleanly.
func validateRecord(rec CitationRecord) *CitationWarning {
	var missing []string
	if strings.TrimSpace(rec.Title) == "" {
		missing = append(missing, "title")
	}
	if len(rec.Authors) == 0 {
		missing = append(missing, "authors")
	}
	if rec.PublishedAt == nil && rec.AccessedAt == nil {
		missing = append(missing, "dates")
	}
	if len(missing) == 0 {
		return nil
	}
	return &CitationWarning{RecordID: rec.ID, Missing: missing}
}
