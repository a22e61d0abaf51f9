package core

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

// Extractor produces per-source quality assessments and structured
// extractions. It is stateless apart from its configuration and safe for
// concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor creates a new Extractor with the given thresholds.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// factRule classifies a sentence into a fact category. Rules are checked in
// order and are independent: a sentence matching several rules emits one fact
// per match. The table order and per-category confidences are fixed
// invariants of the pipeline.
type factRule struct {
	category   FactCategory
	confidence float64
	pattern    *regexp.Regexp
}

var factRules = []factRule{
	{FactStatistic, 0.80, regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:%|percent|million|billion|thousand)|[$€£¥]\s?\d`)},
	{FactQuote, 0.70, regexp.MustCompile(`"[^"]{2,}"|“[^”]{2,}”`)},
	{FactDefinition, 0.75, regexp.MustCompile(`(?i)\b(?:is defined as|refers to|is known as|means that)\b`)},
	{FactRelationship, 0.65, regexp.MustCompile(`(?i)\b(?:leads to|because of|results in|caused by|due to|depends on)\b`)},
}

// sourceTypeRule maps URL evidence to a source type, first match wins.
type sourceTypeRule struct {
	sourceType SourceType
	markers    []string
}

var sourceTypeRules = []sourceTypeRule{
	{SourceTypeGovernment, []string{".gov", ".mil"}},
	{SourceTypeAcademic, []string{".edu", ".ac.uk", "arxiv.org", "doi.org", "researchgate.net", "jstor.org", "nature.com", "science.org"}},
	{SourceTypeNews, []string{"reuters.com", "apnews.com", "bbc.", "nytimes.com", "wsj.com", "theguardian.com", "washingtonpost.com", "bloomberg.com", "npr.org", "cnn.com", "news."}},
	{SourceTypeSocial, []string{"twitter.com", "x.com", "reddit.com", "facebook.com", "linkedin.com", "tiktok.com", "youtube.com"}},
	{SourceTypeBlog, []string{"medium.com", "substack.com", "blogspot.", "wordpress.", "blog.", "dev.to"}},
}

var (
	entityRunPattern    = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)+\b`)
	entityOrgPattern    = regexp.MustCompile(`\b[A-Z][a-zA-Z]*\s+(?:Inc|Corp|Ltd|LLC|Company|University|Institute|Agency|Association)\b\.?`)
	entityDatePattern   = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,?\s+\d{4})?\b`)
	entityNumberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?%|\b\d+(?:\.\d+)?\s*(?:percent|million|billion|thousand)\b|[$€£¥]\s?\d[\d,.]*`)
	urlPattern          = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	wordPattern         = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]*`)
	sentenceSplit       = regexp.MustCompile(`[.!?]+`)
)

// Words too common to be useful topics, regardless of frequency.
var topicStopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {}, "being": {},
	"between": {}, "both": {}, "could": {}, "does": {}, "during": {}, "each": {},
	"from": {}, "have": {}, "however": {}, "into": {}, "more": {}, "most": {},
	"other": {}, "over": {}, "said": {}, "same": {}, "says": {}, "should": {},
	"since": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"those": {}, "through": {}, "under": {}, "until": {}, "very": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {},
}

// AssessQuality scores one source's credibility and freshness from its URL,
// text and optional publish date. Empty text scores credibility 0. The method
// never panics outward; a recovered panic yields a zeroed assessment.
func (x *Extractor) AssessQuality(rawURL, text string, publishedAt *time.Time) (q SourceQuality) {
	defer func() {
		if r := recover(); r != nil {
			q = SourceQuality{SourceType: SourceTypeUnknown, Freshness: FreshnessDated}
		}
	}()

	domain := helpers.Domain(rawURL)
	q.SourceType = classifySourceType(domain)
	q.Freshness = x.freshness(publishedAt)

	if strings.TrimSpace(text) == "" {
		q.CredibilityScore = 0
		return q
	}

	score := x.cfg.BaseCredibility

	q.DomainAuthority = x.domainAuthority(domain)
	score += q.DomainAuthority
	score += x.cfg.SourceTypeBonus[q.SourceType]

	lower := strings.ToLower(text)
	for _, token := range x.cfg.FactualityTokens {
		if strings.Contains(lower, token) {
			q.FactualitySignals = append(q.FactualitySignals, token)
			score += x.cfg.FactualityBonus
		}
	}
	for _, token := range x.cfg.BiasTokens {
		if strings.Contains(lower, token) {
			q.BiasSignals = append(q.BiasSignals, token)
			score -= x.cfg.BiasPenalty
		}
	}

	q.CredibilityScore = clamp01(score)
	return q
}

// ExtractStructured pulls facts, topics, named entities, referenced URLs and
// a short summary out of one source's text. Empty input yields an empty
// extraction; a recovered panic yields a degraded one. The pipeline is never
// aborted for a single bad source.
func (x *Extractor) ExtractStructured(text, rawURL string) (ex Extraction) {
	ex = Extraction{
		KeyFacts:      []Fact{},
		MainTopics:    []string{},
		NamedEntities: []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			ex = Extraction{
				KeyFacts:      []Fact{},
				MainTopics:    []string{},
				NamedEntities: []string{},
				Degraded:      true,
			}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return ex
	}

	ex.NamedEntities = extractEntities(text)
	ex.MainTopics = x.extractTopics(text)
	ex.Citations = extractURLs(text)

	sentences := splitSentences(text, x.cfg.MinSentenceRunes)
	for _, sentence := range sentences {
		if len(ex.KeyFacts) >= x.cfg.MaxFactsPerSource {
			break
		}
		for _, rule := range factRules {
			if len(ex.KeyFacts) >= x.cfg.MaxFactsPerSource {
				break
			}
			match := rule.pattern.FindString(sentence)
			if match == "" {
				continue
			}
			ex.KeyFacts = append(ex.KeyFacts, Fact{
				Claim:      sentence,
				Confidence: rule.confidence,
				Category:   rule.category,
				Evidence:   match,
				Entities:   entitiesIn(sentence, ex.NamedEntities),
			})
		}
	}

	ex.Summary = summarize(sentences)
	return ex
}

// freshness buckets the publish date; unknown dates count as dated.
func (x *Extractor) freshness(publishedAt *time.Time) Freshness {
	if publishedAt == nil || publishedAt.IsZero() {
		return FreshnessDated
	}
	age := time.Since(*publishedAt)
	switch {
	case age <= time.Duration(x.cfg.FreshDays)*24*time.Hour:
		return FreshnessFresh
	case age <= time.Duration(x.cfg.RecentDays)*24*time.Hour:
		return FreshnessRecent
	default:
		return FreshnessDated
	}
}

func (x *Extractor) domainAuthority(domain string) float64 {
	if domain == "" {
		return 0
	}
	if matchesDomainList(domain, x.cfg.HighAuthorityDomains) {
		return x.cfg.HighAuthorityBonus
	}
	if matchesDomainList(domain, x.cfg.MediumAuthorityDomains) {
		return x.cfg.MediumAuthorityBonus
	}
	return 0
}

// matchesDomainList accepts both bare suffixes (".edu") and full domains
// ("reuters.com"), matching subdomains of the latter.
func matchesDomainList(domain string, list []string) bool {
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(domain, entry) {
				return true
			}
			continue
		}
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

func classifySourceType(domain string) SourceType {
	if domain == "" {
		return SourceTypeUnknown
	}
	for _, rule := range sourceTypeRules {
		for _, marker := range rule.markers {
			if matchesMarker(domain, marker) {
				return rule.sourceType
			}
		}
	}
	return SourceTypeCommercial
}

// matchesMarker understands three marker shapes: ".edu" matches by suffix,
// "blog." matches a leading or interior label, and "reuters.com" matches the
// domain or any of its subdomains.
func matchesMarker(domain, marker string) bool {
	switch {
	case strings.HasPrefix(marker, "."):
		return strings.HasSuffix(domain, marker)
	case strings.HasSuffix(marker, "."):
		return strings.HasPrefix(domain, marker) || strings.Contains(domain, "."+marker)
	default:
		return domain == marker || strings.HasSuffix(domain, "."+marker)
	}
}

// splitSentences breaks text on sentence terminators, trimming whitespace and
// discarding fragments shorter than minRunes. Order is preserved.
func splitSentences(text string, minRunes int) []string {
	parts := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) < minRunes {
			continue
		}
		out = append(out, part)
	}
	return out
}

// extractTopics returns the most frequent lowercase words above the length
// floor, ranked by count with first-seen order breaking ties.
func (x *Extractor) extractTopics(text string) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, word := range wordPattern.FindAllString(text, -1) {
		if utf8.RuneCountInString(word) < x.cfg.MinTopicRunes {
			continue
		}
		word = strings.ToLower(word)
		if _, stop := topicStopwords[word]; stop {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = order
			order++
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > x.cfg.TopTopicCount {
		words = words[:x.cfg.TopTopicCount]
	}
	return words
}

// extractEntities runs the coarse named-entity patterns over the text and
// dedupes hits by exact string, preserving first-seen order.
func extractEntities(text string) []string {
	var hits []string
	for _, pattern := range []*regexp.Regexp{
		entityRunPattern, entityOrgPattern, entityDatePattern, entityNumberPattern,
	} {
		hits = append(hits, pattern.FindAllString(text, -1)...)
	}

	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		hit = strings.TrimSpace(strings.TrimSuffix(hit, "."))
		if hit == "" {
			continue
		}
		if _, dup := seen[hit]; dup {
			continue
		}
		seen[hit] = struct{}{}
		out = append(out, hit)
	}
	return out
}

// entitiesIn filters known entities down to the ones mentioned in sentence.
func entitiesIn(sentence string, entities []string) []string {
	var out []string
	for _, entity := range entities {
		if strings.Contains(sentence, entity) {
			out = append(out, entity)
		}
	}
	return out
}

func extractURLs(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// summarize joins the first two sentences, capped for display.
func summarize(sentences []string) string {
	if len(sentences) == 0 {
		return ""
	}
	limit := 2
	if len(sentences) < limit {
		limit = len(sentences)
	}
	return helpers.Truncate(strings.Join(sentences[:limit], ". ")+".", 300)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
