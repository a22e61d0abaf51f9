package core

import (
	"strings"
	"testing"
	"time"
)

func sampleSynthesis() Synthesis {
	return Synthesis{
		KeyThemes: []Theme{{
			Label: "Economic Impact",
			Evidence: []Evidence{
				{SourceID: "s1", Claim: "Prices increased 12% since 2020", Confidence: 0.64},
				{SourceID: "s2", Claim: "Rents rose in parallel with purchase prices", Confidence: 0.56},
			},
			Consensus: ConsensusModerate,
		}},
		Timeline: []TimelineEvent{
			{Date: "March 5, 2024", Event: "The council approved the plan", SourceIDs: []string{"s1"}},
		},
		Statistics: []Statistic{
			{Metric: "Median rent rose 15% year over year", Value: "15%", SourceID: "s1", Confidence: 0.9},
		},
		Controversies: []Controversy{{
			Topic: "Economic Impact",
			Positions: []Position{
				{SourceID: "s1", Statement: "Prices increased"},
				{SourceID: "s3", Statement: "Prices decreased"},
			},
		}},
		Narrative: "Narrative summary sentence.",
	}
}

func sampleSources() []Source {
	return []Source{
		{ID: "s1", SourceType: SourceTypeNews},
		{ID: "s2", SourceType: SourceTypeAcademic},
		{ID: "s3", SourceType: SourceTypeBlog},
	}
}

func TestBuildOutlineOrder(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	report := b.Build("remote work housing", sampleSynthesis(), sampleSources(), nil)

	var ids []string
	for _, sec := range report.Sections {
		ids = append(ids, sec.ID)
	}
	want := "introduction,key_findings,analysis_discussion,timeline,controversies,conclusion_recommendations"
	if strings.Join(ids, ",") != want {
		t.Fatalf("outline = %v, want %s", ids, want)
	}
}

func TestBuildSkipsEmptySections(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	syn := sampleSynthesis()
	syn.Timeline = []TimelineEvent{}
	syn.Controversies = []Controversy{}

	report := b.Build("q", syn, sampleSources(), nil)
	for _, sec := range report.Sections {
		if sec.ID == "timeline" || sec.ID == "controversies" {
			t.Fatalf("section %q rendered despite empty input", sec.ID)
		}
	}
	if len(report.Sections) != 4 {
		t.Fatalf("got %d sections, want 4", len(report.Sections))
	}
}

func TestBuildThemeSubsections(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	report := b.Build("q", sampleSynthesis(), sampleSources(), nil)

	var findings *Section
	for i := range report.Sections {
		if report.Sections[i].ID == "key_findings" {
			findings = &report.Sections[i]
		}
	}
	if findings == nil {
		t.Fatal("key_findings section missing")
	}
	if len(findings.Subsections) != 1 {
		t.Fatalf("got %d subsections, want 1", len(findings.Subsections))
	}
	sub := findings.Subsections[0]
	if sub.ID != "theme_economic_impact" {
		t.Fatalf("subsection id = %q, want theme_economic_impact", sub.ID)
	}
	if sub.Title != "Economic Impact" {
		t.Fatalf("subsection title = %q", sub.Title)
	}
	if !strings.Contains(sub.Body, "consensus is moderate") {
		t.Fatalf("subsection body = %q, want consensus statement", sub.Body)
	}
	if strings.Contains(sub.Body, "[CITE:") {
		t.Fatalf("subsection body = %q, markers must be stripped without a formatter", sub.Body)
	}
}

func TestThemesByPriority(t *testing.T) {
	t.Parallel()

	themes := []Theme{
		{Label: "A", Consensus: ConsensusStrong, Evidence: make([]Evidence, 2)},      // 4*2 = 8
		{Label: "B", Consensus: ConsensusConflicting, Evidence: make([]Evidence, 5)}, // 1*5 = 5
		{Label: "C", Consensus: ConsensusModerate, Evidence: make([]Evidence, 3)},    // 3*3 = 9
	}
	sorted := themesByPriority(themes)
	var labels []string
	for _, theme := range sorted {
		labels = append(labels, theme.Label)
	}
	if strings.Join(labels, "") != "CAB" {
		t.Fatalf("priority order = %v, want C, A, B", labels)
	}
}

func TestOverallConfidence(t *testing.T) {
	t.Parallel()

	themes := []Theme{
		{Consensus: ConsensusStrong, Evidence: make([]Evidence, 2)},
		{Consensus: ConsensusConflicting, Evidence: make([]Evidence, 2)},
	}
	if got := overallConfidence(themes); !closeTo(got, 0.6) {
		t.Fatalf("confidence = %v, want 0.6", got)
	}
	if got := overallConfidence(nil); !closeTo(got, 0.5) {
		t.Fatalf("confidence = %v, want default 0.5 with no themes", got)
	}
}

func TestReadingMinutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		words, wpm, want int
	}{
		{0, 200, 0},
		{199, 200, 1},
		{200, 200, 1},
		{201, 200, 2},
		{999, 200, 5},
	}
	for _, tc := range tests {
		if got := readingMinutes(tc.words, tc.wpm); got != tc.want {
			t.Fatalf("readingMinutes(%d, %d) = %d, want %d", tc.words, tc.wpm, got, tc.want)
		}
	}
}

func TestBuildMetadata(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())
	fixed := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	f := mustFormatter(t, "apa")
	f.AddSource(doeRecord())

	report := b.Build("q", sampleSynthesis(), sampleSources(), f)

	md := report.Metadata
	if !md.GeneratedAt.Equal(fixed) {
		t.Fatalf("generated at = %v, want %v", md.GeneratedAt, fixed)
	}
	if md.SourceCount != 3 {
		t.Fatalf("source count = %d, want 3", md.SourceCount)
	}
	if md.CitationStyle != "apa" {
		t.Fatalf("citation style = %q, want apa", md.CitationStyle)
	}
	if !closeTo(md.Confidence, 0.7) {
		t.Fatalf("confidence = %v, want 0.7 for a single moderate theme", md.Confidence)
	}
	if md.WordCount == 0 || md.ReadingMinutes == 0 {
		t.Fatalf("word count %d / reading minutes %d must be non-zero", md.WordCount, md.ReadingMinutes)
	}
}

func TestBuildEmbedsCitations(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	f := mustFormatter(t, "apa")
	rec := doeRecord() // registered under id s1, matching the evidence source
	f.AddSource(rec)

	report := b.Build("q", sampleSynthesis(), sampleSources(), f)

	var body string
	for _, sec := range report.Sections {
		if sec.ID == "key_findings" {
			body = sec.Subsections[0].Body
		}
	}
	if !strings.Contains(body, "(Doe, 2023)") {
		t.Fatalf("body = %q, want embedded apa citation", body)
	}
	if strings.Contains(body, "[CITE:") {
		t.Fatalf("body = %q, markers must all be resolved", body)
	}
}

func TestExecutiveSummary(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	report := b.Build("remote work housing", sampleSynthesis(), sampleSources(), nil)
	sum := report.ExecutiveSummary

	if !strings.Contains(sum, `"remote work housing"`) {
		t.Fatalf("summary = %q, want the query", sum)
	}
	if !strings.Contains(sum, "Economic Impact") {
		t.Fatalf("summary = %q, want the top theme", sum)
	}
	if !strings.Contains(sum, "Headline figures:") {
		t.Fatalf("summary = %q, want headline figures", sum)
	}
	if !strings.Contains(sum, "1 area of active disagreement was detected.") {
		t.Fatalf("summary = %q, want controversy count", sum)
	}
}

func TestExecutiveSummaryNoFindings(t *testing.T) {
	t.Parallel()
	b := NewReportBuilder(DefaultConfig())

	report := b.Build("quiet topic", Synthesis{
		KeyThemes:     []Theme{},
		Timeline:      []TimelineEvent{},
		Statistics:    []Statistic{},
		Controversies: []Controversy{},
	}, nil, nil)

	if !strings.Contains(report.ExecutiveSummary, "No material disagreements") {
		t.Fatalf("summary = %q, want the quiet fallback", report.ExecutiveSummary)
	}
	if !closeTo(report.Metadata.Confidence, 0.5) {
		t.Fatalf("confidence = %v, want default 0.5", report.Metadata.Confidence)
	}
	if len(report.Sections) != 4 {
		t.Fatalf("got %d sections, want 4 without timeline and controversies", len(report.Sections))
	}
}
