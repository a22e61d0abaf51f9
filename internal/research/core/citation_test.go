package core

import (
	"strings"
	"testing"
	"time"
)

func mustFormatter(t *testing.T, style string) *CitationFormatter {
	t.Helper()
	f, err := NewCitationFormatter(style)
	if err != nil {
		t.Fatalf("NewCitationFormatter(%q): %v", style, err)
	}
	return f
}

func datePtr(year int, month time.Month, day int) *time.Time {
	ts := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &ts
}

func doeRecord() CitationRecord {
	return CitationRecord{
		ID:          "s1",
		Type:        CitationWeb,
		Title:       "Report X",
		Authors:     []string{"Jane A. Doe"},
		URL:         "https://x.org",
		PublishedAt: datePtr(2023, time.May, 1),
	}
}

func TestNewCitationFormatterUnknownStyle(t *testing.T) {
	t.Parallel()

	_, err := NewCitationFormatter("vancouver")
	if err == nil {
		t.Fatal("expected error for unknown style")
	}
	if !IsInputError(err) {
		t.Fatalf("error %v, want InputError", err)
	}
}

func TestEntryStylePrefixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		style  string
		prefix string
	}{
		{"apa", "Doe, J."},
		{"mla", "Doe, Jane A."},
		{"chicago", "Doe, Jane A."},
		{"harvard", "Doe, J.A."},
		{"ieee", "[1] J. A. Doe"},
		{"nature", "1. Doe, J. A."},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.style, func(t *testing.T) {
			t.Parallel()
			f := mustFormatter(t, tc.style)
			f.AddSource(doeRecord())

			bib := f.Bibliography(SortAppearance)
			if len(bib.Entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(bib.Entries))
			}
			if !strings.HasPrefix(bib.Entries[0].Formatted, tc.prefix) {
				t.Fatalf("%s entry = %q, want prefix %q", tc.style, bib.Entries[0].Formatted, tc.prefix)
			}
		})
	}
}

func TestInlineForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		style string
		page  string
		want  string
	}{
		{"apa", "", "(Doe, 2023)"},
		{"apa", "14", "(Doe, 2023, p. 14)"},
		{"harvard", "", "(Doe 2023)"},
		{"mla", "14", "(Doe 14)"},
		{"mla", "", "(Doe)"},
		{"ieee", "", "[1]"},
		{"nature", "", "1"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.style+"_"+tc.page, func(t *testing.T) {
			t.Parallel()
			f := mustFormatter(t, tc.style)
			f.AddSource(doeRecord())

			if got := f.FormatInline([]string{"s1"}, tc.page); got != tc.want {
				t.Fatalf("inline = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChicagoFootnotesIncrement(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "chicago")
	f.AddSource(doeRecord())

	if got := f.FormatInline([]string{"s1"}, ""); got != "¹" {
		t.Fatalf("first footnote = %q, want ¹", got)
	}
	if got := f.FormatInline([]string{"s1"}, ""); got != "²" {
		t.Fatalf("second footnote = %q, want ²", got)
	}
}

func TestNumericInlineMultipleRecords(t *testing.T) {
	t.Parallel()

	second := CitationRecord{ID: "s2", Title: "Report Y", Authors: []string{"Bob Smith"}, PublishedAt: datePtr(2021, time.March, 2)}

	f := mustFormatter(t, "ieee")
	f.AddSource(doeRecord())
	f.AddSource(second)
	if got := f.FormatInline([]string{"s1", "s2"}, ""); got != "[1], [2]" {
		t.Fatalf("ieee inline = %q, want [1], [2]", got)
	}

	n := mustFormatter(t, "nature")
	n.AddSource(doeRecord())
	n.AddSource(second)
	if got := n.FormatInline([]string{"s1", "s2"}, ""); got != "1,2" {
		t.Fatalf("nature inline = %q, want 1,2", got)
	}
}

func TestAPAAuthorJoining(t *testing.T) {
	t.Parallel()

	two := apaAuthors([]string{"Jane A. Doe", "Bob Smith"})
	if two != "Doe, J. A., & Smith, B." {
		t.Fatalf("two authors = %q", two)
	}

	eight := apaAuthors([]string{
		"A One", "B Two", "C Three", "D Four",
		"E Five", "F Six", "G Seven", "H Eight",
	})
	if !strings.Contains(eight, "...") {
		t.Fatalf("eight authors = %q, want ellipsis truncation", eight)
	}
	if !strings.HasSuffix(eight, "Eight, H.") {
		t.Fatalf("eight authors = %q, want final author kept", eight)
	}
	if strings.Contains(eight, "Seven") {
		t.Fatalf("eight authors = %q, seventh author should be elided", eight)
	}
}

func TestInlineEtAlThreshold(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")
	f.AddSource(CitationRecord{
		ID:          "many",
		Title:       "Group Study",
		Authors:     []string{"A One", "B Two", "C Three"},
		PublishedAt: datePtr(2022, time.June, 1),
	})

	if got := f.FormatInline([]string{"many"}, ""); got != "(One et al., 2022)" {
		t.Fatalf("inline = %q, want et al. form", got)
	}
}

func TestBibliographySortAlphabetical(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")
	f.AddSource(CitationRecord{ID: "z", Title: "Z Report", Authors: []string{"Charlie Zulu"}, PublishedAt: datePtr(2020, 1, 1)})
	f.AddSource(CitationRecord{ID: "b", Title: "B Report", Authors: []string{"Alice Brown"}, PublishedAt: datePtr(2021, 1, 1)})
	f.AddSource(CitationRecord{ID: "a", Title: "A Report", Authors: []string{"Bob Adams"}, PublishedAt: datePtr(2022, 1, 1)})

	bib := f.Bibliography(SortAlphabetical)
	var ids []string
	for _, entry := range bib.Entries {
		ids = append(ids, entry.ID)
	}
	if strings.Join(ids, ",") != "a,b,z" {
		t.Fatalf("alphabetical order = %v, want surname order Adams, Brown, Zulu", ids)
	}
}

func TestBibliographySortChronological(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")
	f.AddSource(CitationRecord{ID: "old", Title: "Old", Authors: []string{"A Author"}, PublishedAt: datePtr(2019, 1, 1)})
	f.AddSource(CitationRecord{ID: "new", Title: "New", Authors: []string{"B Author"}, PublishedAt: datePtr(2024, 1, 1)})
	f.AddSource(CitationRecord{ID: "undated", Title: "Undated", Authors: []string{"C Author"}})

	bib := f.Bibliography(SortChronological)
	var ids []string
	for _, entry := range bib.Entries {
		ids = append(ids, entry.ID)
	}
	if strings.Join(ids, ",") != "new,old,undated" {
		t.Fatalf("chronological order = %v, want newest first with undated last", ids)
	}
}

func TestBibliographySortAppearance(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "ieee")
	f.AddSource(CitationRecord{ID: "first", Title: "First", Authors: []string{"Z Author"}, PublishedAt: datePtr(2019, 1, 1)})
	f.AddSource(CitationRecord{ID: "second", Title: "Second", Authors: []string{"A Author"}, PublishedAt: datePtr(2024, 1, 1)})

	bib := f.Bibliography(SortAppearance)
	if bib.Entries[0].ID != "first" || bib.Entries[1].ID != "second" {
		t.Fatalf("appearance order changed: %v", bib.Entries)
	}
	if !strings.HasPrefix(bib.Entries[0].Formatted, "[1]") {
		t.Fatalf("entry = %q, want positional index [1]", bib.Entries[0].Formatted)
	}
}

func TestBibliographyWarningsNeverBlock(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")
	f.AddSource(CitationRecord{ID: "bare"})
	f.AddSource(doeRecord())

	bib := f.Bibliography(SortAppearance)
	if len(bib.Entries) != 2 {
		t.Fatalf("got %d entries, want both formatted despite warnings", len(bib.Entries))
	}
	if len(bib.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", bib.Warnings)
	}
	want := "citation bare missing title, authors, dates"
	if bib.Warnings[0] != want {
		t.Fatalf("warning = %q, want %q", bib.Warnings[0], want)
	}
}

func TestEmbedCitations(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")
	f.AddSource(doeRecord())

	got := f.EmbedCitations("Prices rose sharply [CITE:s1] before stabilizing.")
	want := "Prices rose sharply (Doe, 2023) before stabilizing."
	if got != want {
		t.Fatalf("embedded = %q, want %q", got, want)
	}
}

func TestEmbedCitationsUnknownIDs(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "apa")

	got := f.EmbedCitations("Claim [CITE:ghost] here.")
	if got != "Claim  here." {
		t.Fatalf("embedded = %q, want marker removed", got)
	}
}

func TestAddSourceReplacesKeepingPosition(t *testing.T) {
	t.Parallel()
	f := mustFormatter(t, "ieee")
	f.AddSource(doeRecord())
	f.AddSource(CitationRecord{ID: "s2", Title: "Second", Authors: []string{"Bob Smith"}})

	updated := doeRecord()
	updated.Title = "Report X, Revised"
	f.AddSource(updated)

	if got := f.FormatInline([]string{"s1"}, ""); got != "[1]" {
		t.Fatalf("inline after replace = %q, want original position [1]", got)
	}
	rec, ok := f.Record("s1")
	if !ok || rec.Title != "Report X, Revised" {
		t.Fatalf("record = %+v, want replaced title", rec)
	}
}
