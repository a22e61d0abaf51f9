package server

import (
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/research/core"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// ResearchRequest is the payload for a synchronous research run. When Sources
// is empty the server discovers and fetches sources for the query itself.
type ResearchRequest struct {
	Query         string        `json:"query"`
	Sources       []core.Source `json:"sources,omitempty"`
	CitationStyle string        `json:"citation_style,omitempty"`
	SortOrder     string        `json:"sort_order,omitempty"`
	IncludeGraph  bool          `json:"include_graph,omitempty"`
	MaxSources    int           `json:"max_sources,omitempty"`
}

// ResearchResponse wraps a finished run with its archive id. Cached is true
// when the result came from the result cache instead of a fresh run.
type ResearchResponse struct {
	ID       string       `json:"id"`
	Cached   bool         `json:"cached"`
	Warnings []string     `json:"warnings,omitempty"`
	Result   *core.Result `json:"result"`
}

// CreateTopicRequest represents a new saved research topic.
type CreateTopicRequest struct {
	Name          string   `json:"name"`
	Query         string   `json:"query"`
	SourceURLs    []string `json:"source_urls,omitempty"`
	CitationStyle string   `json:"citation_style,omitempty"`
	ScheduleCron  string   `json:"schedule_cron,omitempty"`
}

// UpdateTopicRequest replaces the mutable fields of a topic.
type UpdateTopicRequest struct {
	Name          string   `json:"name"`
	Query         string   `json:"query"`
	SourceURLs    []string `json:"source_urls,omitempty"`
	CitationStyle string   `json:"citation_style,omitempty"`
	ScheduleCron  string   `json:"schedule_cron,omitempty"`
}

// TopicResponse is the API view of a saved topic.
type TopicResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Query         string    `json:"query"`
	SourceURLs    []string  `json:"source_urls"`
	CitationStyle string    `json:"citation_style"`
	ScheduleCron  string    `json:"schedule_cron"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RunResponse is the API view of one scheduled or ad hoc run.
type RunResponse struct {
	ID         string     `json:"id"`
	TopicID    string     `json:"topic_id,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

// ReportListItem is the archive listing view of a stored report.
type ReportListItem struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	WordCount     int       `json:"word_count"`
	SourceCount   int       `json:"source_count"`
	Confidence    float64   `json:"confidence"`
	CitationStyle string    `json:"citation_style"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReportDetail is the full archive view of one stored report. Result holds
// the serialized synthesis artifact exactly as it was archived.
type ReportDetail struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	TopicID       string          `json:"topic_id,omitempty"`
	Query         string          `json:"query"`
	Title         string          `json:"title"`
	CitationStyle string          `json:"citation_style"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Result        json.RawMessage `json:"result"`
}

// SearchHit is one archive search result with its relevance score.
type SearchHit struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}
