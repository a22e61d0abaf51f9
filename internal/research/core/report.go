package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

// consensusPriority orders themes in the report outline.
var consensusPriority = map[Consensus]int{
	ConsensusStrong:      4,
	ConsensusModerate:    3,
	ConsensusWeak:        2,
	ConsensusConflicting: 1,
}

// consensusConfidence maps consensus tiers to the weights behind the
// report's overall confidence figure.
var consensusConfidence = map[Consensus]float64{
	ConsensusStrong:      0.9,
	ConsensusModerate:    0.7,
	ConsensusWeak:        0.5,
	ConsensusConflicting: 0.3,
}

var strayMarker = regexp.MustCompile(`\s*\[CITE:[^\]]+\]`)

// ReportBuilder renders a Synthesis into a hierarchical report with a fixed
// outline. Section bodies come from per-section template functions, never
// free text, so identical input produces an identical report.
type ReportBuilder struct {
	cfg Config
	now func() time.Time
}

// NewReportBuilder creates a builder with the given configuration.
func NewReportBuilder(cfg Config) *ReportBuilder {
	return &ReportBuilder{cfg: cfg, now: time.Now}
}

type reportContext struct {
	query   string
	syn     Synthesis
	sources []Source
	themes  []Theme // sorted by outline priority
}

type sectionDef struct {
	id      string
	title   string
	include func(*reportContext) bool
	render  func(*reportContext) string
}

var sectionDefs = []sectionDef{
	{"introduction", "Introduction", nil, renderIntroduction},
	{"key_findings", "Key Findings", nil, renderKeyFindings},
	{"analysis_discussion", "Analysis & Discussion", nil, renderAnalysis},
	{"timeline", "Timeline", func(ctx *reportContext) bool { return len(ctx.syn.Timeline) > 0 }, renderTimeline},
	{"controversies", "Controversies", func(ctx *reportContext) bool { return len(ctx.syn.Controversies) > 0 }, renderControversies},
	{"conclusion_recommendations", "Conclusion & Recommendations", nil, renderConclusion},
}

// Build assembles the full report. When a formatter is supplied, inline
// citation markers emitted by the templates are resolved through it;
// otherwise they are stripped.
func (b *ReportBuilder) Build(query string, syn Synthesis, sources []Source, formatter *CitationFormatter) Report {
	ctx := &reportContext{
		query:   query,
		syn:     syn,
		sources: sources,
		themes:  themesByPriority(syn.KeyThemes),
	}

	finish := func(text string) string {
		if formatter != nil {
			return formatter.EmbedCitations(text)
		}
		return strayMarker.ReplaceAllString(text, "")
	}

	sections := make([]Section, 0, len(sectionDefs))
	var rendered []string
	for _, def := range sectionDefs {
		if def.include != nil && !def.include(ctx) {
			continue
		}
		sec := Section{ID: def.id, Title: def.title, Body: finish(def.render(ctx))}
		if def.id == "key_findings" {
			for i, theme := range ctx.themes {
				sub := themeSection(theme, i)
				sub.Body = finish(sub.Body)
				sec.Subsections = append(sec.Subsections, sub)
				rendered = append(rendered, sub.Body)
			}
		}
		sections = append(sections, sec)
		rendered = append(rendered, sec.Body)
	}

	summary := finish(executiveSummary(ctx))
	rendered = append(rendered, summary)

	words := helpers.WordCount(strings.Join(rendered, " "))
	styleName := ""
	if formatter != nil {
		styleName = formatter.StyleName()
	}

	return Report{
		Title:            "Research Report: " + query,
		ExecutiveSummary: summary,
		Sections:         sections,
		Metadata: ReportMetadata{
			GeneratedAt:    b.now().UTC(),
			WordCount:      words,
			ReadingMinutes: readingMinutes(words, b.cfg.ReadingWPM),
			Confidence:     overallConfidence(syn.KeyThemes),
			SourceCount:    len(sources),
			CitationStyle:  styleName,
		},
	}
}

func themesByPriority(themes []Theme) []Theme {
	sorted := make([]Theme, len(themes))
	copy(sorted, themes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return themePriority(sorted[i]) > themePriority(sorted[j])
	})
	return sorted
}

func themePriority(t Theme) int {
	return consensusPriority[t.Consensus] * len(t.Evidence)
}

// overallConfidence is the evidence-weighted average of the consensus
// weights, defaulting to 0.5 when no themes carry evidence.
func overallConfidence(themes []Theme) float64 {
	var weighted, total float64
	for _, theme := range themes {
		n := float64(len(theme.Evidence))
		weighted += consensusConfidence[theme.Consensus] * n
		total += n
	}
	if total == 0 {
		return 0.5
	}
	return weighted / total
}

func readingMinutes(words, wpm int) int {
	if words == 0 || wpm <= 0 {
		return 0
	}
	return (words + wpm - 1) / wpm
}

func renderIntroduction(ctx *reportContext) string {
	intro := fmt.Sprintf("This report examines %q, drawing on %d %s.",
		ctx.query, len(ctx.sources), pluralize(len(ctx.sources), "source", "sources"))
	if kinds := sourceTypeSpread(ctx.sources); len(kinds) > 0 {
		intro += fmt.Sprintf(" The material spans %s records.", joinNatural(kinds))
	}
	intro += " The sections below set out the principal findings, their supporting evidence and the points on which sources disagree."
	return intro
}

func renderKeyFindings(ctx *reportContext) string {
	if len(ctx.themes) == 0 {
		return "No recurring themes emerged from the collected sources."
	}
	return fmt.Sprintf("The synthesis identified %d recurring %s, ordered below by the weight of their supporting evidence. Each subsection states the theme's consensus level and its strongest findings.",
		len(ctx.themes), pluralize(len(ctx.themes), "theme", "themes"))
}

func renderAnalysis(ctx *reportContext) string {
	counts := map[Consensus]int{}
	for _, theme := range ctx.themes {
		counts[theme.Consensus]++
	}
	distribution := fmt.Sprintf("Agreement across themes: %d strong, %d moderate, %d weak, %d conflicting.",
		counts[ConsensusStrong], counts[ConsensusModerate], counts[ConsensusWeak], counts[ConsensusConflicting])
	if ctx.syn.Narrative == "" {
		return distribution
	}
	return ctx.syn.Narrative + " " + distribution
}

func renderTimeline(ctx *reportContext) string {
	lines := make([]string, 0, len(ctx.syn.Timeline))
	for _, ev := range ctx.syn.Timeline {
		lines = append(lines, fmt.Sprintf("- %s: %s", ev.Date, helpers.Snippet(ev.Event, 160)))
	}
	return strings.Join(lines, "\n")
}

func renderControversies(ctx *reportContext) string {
	blocks := make([]string, 0, len(ctx.syn.Controversies))
	for _, c := range ctx.syn.Controversies {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Sources take opposing positions on %s:", c.Topic))
		for _, pos := range c.Positions {
			sb.WriteString(fmt.Sprintf("\n- %s: %s", pos.SourceID, helpers.Snippet(pos.Statement, 140)))
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}

func renderConclusion(ctx *reportContext) string {
	conf := overallConfidence(ctx.syn.KeyThemes)
	band := "limited"
	switch {
	case conf >= 0.75:
		band = "high"
	case conf >= 0.55:
		band = "moderate"
	}
	out := fmt.Sprintf("The assembled evidence supports the principal findings with %s confidence (%.2f).", band, conf)
	if len(ctx.syn.Controversies) > 0 {
		out += " Claims under active disagreement should be weighed against each source's credibility before being relied on."
	}
	out += " Themes with weak or conflicting consensus warrant further corroboration, ideally from primary data."
	return out
}

// themeSection renders one Key Findings subsection. Representative evidence
// is quoted with a citation marker naming its source, resolved later against
// the active citation style.
func themeSection(theme Theme, idx int) Section {
	distinct := map[string]struct{}{}
	for _, ev := range theme.Evidence {
		distinct[ev.SourceID] = struct{}{}
	}

	top := make([]Evidence, len(theme.Evidence))
	copy(top, theme.Evidence)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Confidence > top[j].Confidence })
	if len(top) > 3 {
		top = top[:3]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d %s of evidence across %d %s support this theme; consensus is %s.",
		len(theme.Evidence), pluralize(len(theme.Evidence), "piece", "pieces"),
		len(distinct), pluralize(len(distinct), "source", "sources"),
		theme.Consensus))
	if len(top) > 0 {
		sb.WriteString(" Representative findings:")
		for _, ev := range top {
			sb.WriteString(fmt.Sprintf(" %q [CITE:%s]", helpers.Snippet(ev.Claim, 180), ev.SourceID))
		}
	}

	return Section{
		ID:    fmt.Sprintf("theme_%s", slugify(theme.Label)),
		Title: theme.Label,
		Body:  sb.String(),
	}
}

func executiveSummary(ctx *reportContext) string {
	parts := []string{fmt.Sprintf("Research on %q identified %d key %s across %d %s.",
		ctx.query, len(ctx.themes), pluralize(len(ctx.themes), "theme", "themes"),
		len(ctx.sources), pluralize(len(ctx.sources), "source", "sources"))}

	var leading []string
	for _, theme := range ctx.themes {
		leading = append(leading, theme.Label)
		if len(leading) == 3 {
			break
		}
	}
	if len(leading) > 0 {
		parts = append(parts, fmt.Sprintf("The most substantiated %s %s.",
			pluralize(len(leading), "theme is", "themes are"), joinNatural(leading)))
	}

	if top := topStatistics(ctx.syn.Statistics, 2); len(top) > 0 {
		figures := make([]string, 0, len(top))
		for _, st := range top {
			figures = append(figures, fmt.Sprintf("%s [%s]", helpers.Snippet(st.Metric, 60), st.Value))
		}
		parts = append(parts, "Headline figures: "+strings.Join(figures, "; ")+".")
	}

	if n := len(ctx.syn.Controversies); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s of active disagreement %s detected.",
			n, pluralize(n, "area", "areas"), pluralize(n, "was", "were")))
	} else {
		parts = append(parts, "No material disagreements were detected among the sources.")
	}

	return strings.Join(parts, " ")
}

// sourceTypeSpread lists the distinct source types present, in a fixed
// canonical order.
func sourceTypeSpread(sources []Source) []string {
	present := map[SourceType]bool{}
	for _, src := range sources {
		present[src.SourceType] = true
	}
	var out []string
	for _, st := range []SourceType{
		SourceTypeAcademic, SourceTypeGovernment, SourceTypeNews,
		SourceTypeCommercial, SourceTypeBlog, SourceTypeSocial, SourceTypeUnknown,
	} {
		if present[st] {
			out = append(out, string(st))
		}
	}
	return out
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
