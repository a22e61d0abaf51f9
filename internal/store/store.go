package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type Store struct {
	DB *sql.DB
}

// Run statuses persisted for synthesis runs.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Topic is a saved query with a schedule and citation-style preference.
type Topic struct {
	ID            string
	UserID        string
	Name          string
	Query         string
	SourceURLs    []string
	CitationStyle string
	ScheduleCron  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Run records one synthesis attempt, scheduled or ad hoc.
type Run struct {
	ID         string
	TopicID    string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      *string
}

// ReportRecord is an archived synthesis result. Result holds the full
// serialized artifact; the scalar columns exist for listing and search.
type ReportRecord struct {
	ID            string
	RunID         string
	UserID        string
	TopicID       string
	Query         string
	Title         string
	Summary       string
	Result        json.RawMessage
	WordCount     int
	SourceCount   int
	Confidence    float64
	CitationStyle string
	Fingerprint   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReportSummary is the listing projection of a report row.
type ReportSummary struct {
	ID            string
	Query         string
	Title         string
	Summary       string
	WordCount     int
	SourceCount   int
	Confidence    float64
	CitationStyle string
	CreatedAt     time.Time
}

// IndexEntry carries the fields the archive search index is built from.
type IndexEntry struct {
	ID        string
	UserID    string
	Query     string
	Title     string
	Summary   string
	CreatedAt time.Time
}

var (
	metricsOnce    sync.Once
	reportCounter  otelmetric.Int64Counter
	wordCounter    otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	reportCounter, err = meter.Int64Counter("reports_saved_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	wordCounter, err = meter.Int64Counter("report_words_total")
	if err != nil {
		metricsInitErr = err
	}
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Topic operations
func (s *Store) CreateTopic(ctx context.Context, userID, name, query string, sourceURLs []string, citationStyle, scheduleCron string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO topics (user_id, name, query, source_urls, citation_style, schedule_cron) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		userID, name, query, pq.Array(sourceURLs), citationStyle, scheduleCron).Scan(&id)
	return id, err
}

func (s *Store) ListTopics(ctx context.Context, userID string) ([]Topic, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, name, query, source_urls, citation_style, schedule_cron, created_at, updated_at FROM topics WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *Store) GetTopic(ctx context.Context, id string, userID string) (Topic, bool, error) {
	var (
		t    Topic
		urls pq.StringArray
	)
	row := s.DB.QueryRowContext(ctx, `SELECT id, user_id, name, query, source_urls, citation_style, schedule_cron, created_at, updated_at FROM topics WHERE id=$1 AND user_id=$2`, id, userID)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Query, &urls, &t.CitationStyle, &t.ScheduleCron, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Topic{}, false, nil
		}
		return Topic{}, false, err
	}
	t.SourceURLs = []string(urls)
	return t, true, nil
}

func (s *Store) UpdateTopic(ctx context.Context, id, userID, name, query string, sourceURLs []string, citationStyle, scheduleCron string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE topics SET name=$1, query=$2, source_urls=$3, citation_style=$4, schedule_cron=$5, updated_at=NOW() WHERE id=$6 AND user_id=$7`,
		name, query, pq.Array(sourceURLs), citationStyle, scheduleCron, id, userID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteTopic(ctx context.Context, id string, userID string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("topic id required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM topics WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAllTopics returns every saved topic regardless of owner. The scheduler
// uses it together with LatestRunTime to decide which topics are due.
func (s *Store) ListAllTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, name, query, source_urls, citation_style, schedule_cron, created_at, updated_at FROM topics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func scanTopics(rows *sql.Rows) ([]Topic, error) {
	var out []Topic
	for rows.Next() {
		var (
			t    Topic
			urls pq.StringArray
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Query, &urls, &t.CitationStyle, &t.ScheduleCron, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.SourceURLs = []string(urls)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Run operations
func (s *Store) CreateRun(ctx context.Context, userID, topicID, status string) (string, error) {
	var topic interface{}
	if topicID != "" {
		topic = topicID
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO runs (user_id, topic_id, status) VALUES ($1,$2,$3) RETURNING id`, userID, topic, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, errMsg *string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET status=$1, finished_at=NOW(), error=$2 WHERE id=$3`, status, errMsg, runID)
	return err
}

func (s *Store) ListRuns(ctx context.Context, topicID string) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, COALESCE(topic_id::text, ''), status, started_at, finished_at, error FROM runs WHERE topic_id=$1 ORDER BY started_at DESC`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.TopicID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LatestRunTime(ctx context.Context, topicID string) (*time.Time, error) {
	var ts *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(COALESCE(finished_at, started_at)) FROM runs WHERE topic_id=$1`, topicID).Scan(&ts)
	return ts, err
}

// Report operations
func (s *Store) SaveReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	if rec.RunID == "" {
		return ReportRecord{}, fmt.Errorf("run_id must be provided")
	}
	var topic interface{}
	if rec.TopicID != "" {
		topic = rec.TopicID
	}
	fp := helpers.ContentHash(strconv.Itoa(rec.SourceCount) + ":" + rec.Summary)
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO reports (
  run_id, user_id, topic_id, query, title, summary, result,
  word_count, source_count, confidence, citation_style, fingerprint, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
ON CONFLICT (run_id) DO UPDATE SET
  query = EXCLUDED.query,
  title = EXCLUDED.title,
  summary = EXCLUDED.summary,
  result = EXCLUDED.result,
  word_count = EXCLUDED.word_count,
  source_count = EXCLUDED.source_count,
  confidence = EXCLUDED.confidence,
  citation_style = EXCLUDED.citation_style,
  fingerprint = CASE WHEN reports.fingerprint = EXCLUDED.fingerprint THEN reports.fingerprint ELSE EXCLUDED.fingerprint END,
  updated_at = CASE WHEN reports.fingerprint = EXCLUDED.fingerprint THEN reports.updated_at ELSE NOW() END
RETURNING id, created_at, updated_at;
`,
		rec.RunID, rec.UserID, topic, rec.Query, rec.Title, rec.Summary, []byte(rec.Result),
		rec.WordCount, rec.SourceCount, rec.Confidence, rec.CitationStyle, fp,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ReportRecord{}, err
	}
	rec.Fingerprint = fp
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		attrs := []attribute.KeyValue{
			attribute.String("citation_style", rec.CitationStyle),
		}
		if reportCounter != nil {
			reportCounter.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
		}
		if wordCounter != nil && rec.WordCount > 0 {
			wordCounter.Add(ctx, int64(rec.WordCount), otelmetric.WithAttributes(attrs...))
		}
	}
	return rec, nil
}

func (s *Store) GetReport(ctx context.Context, id string, userID string) (ReportRecord, bool, error) {
	var (
		rec    ReportRecord
		result []byte
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT id, run_id, user_id, COALESCE(topic_id::text, ''), query, title, summary, result,
       word_count, source_count, confidence, citation_style, fingerprint, created_at, updated_at
FROM reports
WHERE id=$1 AND user_id=$2`, id, userID)
	if err := row.Scan(&rec.ID, &rec.RunID, &rec.UserID, &rec.TopicID, &rec.Query, &rec.Title, &rec.Summary, &result,
		&rec.WordCount, &rec.SourceCount, &rec.Confidence, &rec.CitationStyle, &rec.Fingerprint, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ReportRecord{}, false, nil
		}
		return ReportRecord{}, false, err
	}
	rec.Result = json.RawMessage(result)
	return rec, true, nil
}

func (s *Store) ListReports(ctx context.Context, userID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, query, title, summary, word_count, source_count, confidence, citation_style, created_at
FROM reports
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportSummary
	for rows.Next() {
		var r ReportSummary
		if err := rows.Scan(&r.ID, &r.Query, &r.Title, &r.Summary, &r.WordCount, &r.SourceCount, &r.Confidence, &r.CitationStyle, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReport(ctx context.Context, id string, userID string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("report id required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reports WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListReportsForIndex returns every report's indexable fields. The archive
// search index is rebuilt from this at startup.
func (s *Store) ListReportsForIndex(ctx context.Context) ([]IndexEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, query, title, summary, created_at FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &e.Title, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
