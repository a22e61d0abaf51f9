package core

import (
	"context"
	"time"
)

// SourceType classifies where a retrieved document came from.
type SourceType string

const (
	SourceTypeAcademic   SourceType = "academic"
	SourceTypeNews       SourceType = "news"
	SourceTypeGovernment SourceType = "government"
	SourceTypeCommercial SourceType = "commercial"
	SourceTypeBlog       SourceType = "blog"
	SourceTypeSocial     SourceType = "social"
	SourceTypeUnknown    SourceType = "unknown"
)

// Freshness buckets a source by the age of its publish date.
type Freshness string

const (
	FreshnessFresh  Freshness = "fresh"  // published within the fresh window
	FreshnessRecent Freshness = "recent" // published within the recent window
	FreshnessDated  Freshness = "dated"  // older, or publish date unknown
)

// FactCategory tags the kind of claim a fact carries.
type FactCategory string

const (
	FactStatistic    FactCategory = "statistic"
	FactClaim        FactCategory = "claim"
	FactQuote        FactCategory = "quote"
	FactDefinition   FactCategory = "definition"
	FactRelationship FactCategory = "relationship"
)

// Consensus is the qualitative agreement level among sources for a theme.
type Consensus string

const (
	ConsensusStrong      Consensus = "strong"
	ConsensusModerate    Consensus = "moderate"
	ConsensusWeak        Consensus = "weak"
	ConsensusConflicting Consensus = "conflicting"
)

// Source represents one retrieved document for a research run. Callers may
// supply credibility, source type and key facts from an earlier pass; zero
// values are filled in by the extractor. Sources are copied on ingest and
// never mutated after the run starts.
type Source struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Author           string     `json:"author,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CredibilityScore float64    `json:"credibility_score"`
	SourceType       SourceType `json:"source_type"`
	KeyFacts         []Fact     `json:"key_facts,omitempty"`
}

// Fact is a single extracted claim from one source.
type Fact struct {
	Claim      string       `json:"claim"`
	Confidence float64      `json:"confidence"`
	Category   FactCategory `json:"category"`
	Evidence   string       `json:"evidence,omitempty"`
	Entities   []string     `json:"entities,omitempty"`
}

// SourceQuality is the extractor's credibility assessment for one source.
// The signal slices record which indicators fired, so scores stay explainable.
type SourceQuality struct {
	CredibilityScore  float64    `json:"credibility_score"`
	SourceType        SourceType `json:"source_type"`
	Freshness         Freshness  `json:"freshness"`
	DomainAuthority   float64    `json:"domain_authority"`
	FactualitySignals []string   `json:"factuality_signals,omitempty"`
	BiasSignals       []string   `json:"bias_signals,omitempty"`
}

// Extraction is the structured output of the extractor for one source.
type Extraction struct {
	SourceID      string   `json:"source_id"`
	KeyFacts      []Fact   `json:"key_facts"`
	MainTopics    []string `json:"main_topics"`
	NamedEntities []string `json:"named_entities"`
	Summary       string   `json:"summary"`
	Citations     []string `json:"citations,omitempty"`
	Degraded      bool     `json:"degraded,omitempty"`
}

// Evidence ties one source's claim to a theme.
type Evidence struct {
	SourceID   string  `json:"source_id"`
	Claim      string  `json:"claim"`
	Confidence float64 `json:"confidence"`
}

// Theme groups facts from possibly-many sources under one topical label.
type Theme struct {
	Label     string     `json:"label"`
	Evidence  []Evidence `json:"evidence"`
	Consensus Consensus  `json:"consensus"`
}

// TimelineEvent is a dated event mentioned by one or more sources. At most
// one event exists per distinct date string. When is the parsed date used for
// ordering and is not part of the wire format.
type TimelineEvent struct {
	Date      string    `json:"date"`
	Event     string    `json:"event"`
	SourceIDs []string  `json:"source_ids"`
	When      time.Time `json:"-"`
}

// Statistic is a numeric claim paired with its surrounding context.
type Statistic struct {
	Metric     string  `json:"metric"`
	Value      string  `json:"value"`
	SourceID   string  `json:"source_id"`
	Confidence float64 `json:"confidence"`
}

// Position is one source's stance inside a controversy.
type Position struct {
	SourceID  string `json:"source_id"`
	Statement string `json:"position"`
}

// Controversy marks a topic where at least two sources disagree.
type Controversy struct {
	Topic     string     `json:"topic"`
	Positions []Position `json:"conflicting_positions"`
}

// Synthesis is the cross-source aggregation produced for one run.
type Synthesis struct {
	KeyThemes     []Theme         `json:"key_themes"`
	Timeline      []TimelineEvent `json:"timeline"`
	Statistics    []Statistic     `json:"statistics"`
	Controversies []Controversy   `json:"controversies"`
	Narrative     string          `json:"narrative"`
}

// Section is one node of the hierarchical report outline.
type Section struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Subsections []Section `json:"subsections,omitempty"`
}

// ReportMetadata carries aggregate numbers about a rendered report.
type ReportMetadata struct {
	GeneratedAt    time.Time `json:"generated_at"`
	WordCount      int       `json:"word_count"`
	ReadingMinutes int       `json:"reading_minutes"`
	Confidence     float64   `json:"confidence"`
	SourceCount    int       `json:"source_count"`
	CitationStyle  string    `json:"citation_style"`
}

// Report is the hierarchical research report for one run.
type Report struct {
	Title            string         `json:"title"`
	ExecutiveSummary string         `json:"executive_summary"`
	Sections         []Section      `json:"sections"`
	Metadata         ReportMetadata `json:"metadata"`
}

// CitationType selects the bibliographic template family for a record.
type CitationType string

const (
	CitationWeb     CitationType = "web"
	CitationJournal CitationType = "journal"
	CitationBook    CitationType = "book"
	CitationReport  CitationType = "report"
)

// CitationRecord is one bibliographic entry owned by the citation registry.
type CitationRecord struct {
	ID          string       `json:"id"`
	Type        CitationType `json:"type"`
	Title       string       `json:"title"`
	Authors     []string     `json:"authors"`
	URL         string       `json:"url,omitempty"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	AccessedAt  *time.Time   `json:"accessed_at,omitempty"`
	Publisher   string       `json:"publisher,omitempty"`
	Journal     string       `json:"journal,omitempty"`
	Volume      string       `json:"volume,omitempty"`
	Issue       string       `json:"issue,omitempty"`
	Pages       string       `json:"pages,omitempty"`
}

// SortOrder selects how a bibliography is ordered.
type SortOrder string

const (
	SortAlphabetical  SortOrder = "alphabetical"
	SortChronological SortOrder = "chronological"
	SortAppearance    SortOrder = "appearance"
)

// BibliographyEntry is one formatted reference.
type BibliographyEntry struct {
	ID        string `json:"id"`
	Formatted string `json:"formatted"`
}

// Bibliography is the ordered, formatted reference list for one style.
type Bibliography struct {
	Style     string              `json:"style"`
	SortOrder SortOrder           `json:"sort_order"`
	Entries   []BibliographyEntry `json:"entries"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// NodeType classifies knowledge graph nodes.
type NodeType string

const (
	NodeSource  NodeType = "source"
	NodeConcept NodeType = "concept"
	NodeEntity  NodeType = "entity"
	NodeFact    NodeType = "fact"
)

// EdgeType classifies knowledge graph edges.
type EdgeType string

const (
	EdgeCites       EdgeType = "cites"
	EdgeRelatesTo   EdgeType = "relates_to"
	EdgeContradicts EdgeType = "contradicts"
	EdgeSupports    EdgeType = "supports"
	EdgeContains    EdgeType = "contains"
	EdgeDiscusses   EdgeType = "discusses"
)

// GraphNode is one typed node of the knowledge graph.
type GraphNode struct {
	ID    string            `json:"id"`
	Type  NodeType          `json:"type"`
	Label string            `json:"label"`
	Size  float64           `json:"size"`
	Color string            `json:"color"`
	Data  map[string]string `json:"data,omitempty"`
}

// GraphEdge is one typed edge of the knowledge graph.
type GraphEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
	Label  string   `json:"label,omitempty"`
}

// Cluster is a connected component of the graph used for visual grouping.
type Cluster struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	NodeIDs []string `json:"node_ids"`
}

// KnowledgeGraph is the typed node/edge graph built for one run.
type KnowledgeGraph struct {
	Nodes    []GraphNode `json:"nodes"`
	Edges    []GraphEdge `json:"edges"`
	Clusters []Cluster   `json:"clusters"`
}

// Request is the caller-facing input for one synthesis run.
type Request struct {
	Query         string    `json:"query"`
	Sources       []Source  `json:"sources"`
	CitationStyle string    `json:"citation_style,omitempty"`
	SortOrder     SortOrder `json:"sort_order,omitempty"`
	IncludeGraph  bool      `json:"include_graph,omitempty"`
}

// Result is the complete artifact produced for one synthesis run.
type Result struct {
	Query        string          `json:"query"`
	Report       Report          `json:"report"`
	Synthesis    Synthesis       `json:"synthesis"`
	Bibliography Bibliography    `json:"bibliography"`
	Graph        *KnowledgeGraph `json:"graph,omitempty"`
	Sources      []Source        `json:"sources"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// EnrichedExtraction is the schema an LLM enricher must return. Output that
// fails to parse into it is discarded and the heuristic extractor is used.
type EnrichedExtraction struct {
	KeyFacts              []Fact   `json:"key_facts"`
	Summary               string   `json:"summary"`
	CredibilityAssessment float64  `json:"credibility_assessment"`
	MainTopics            []string `json:"main_topics"`
	Sentiment             string   `json:"sentiment"`
}

// Enricher is the optional LLM collaborator. Implementations must be safe for
// concurrent use; errors and timeouts degrade to the heuristic path.
type Enricher interface {
	ExtractFacts(ctx context.Context, text, url string) (*EnrichedExtraction, error)
}
