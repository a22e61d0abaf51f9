package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &Store{DB: db}, mock, func() { _ = db.Close() }
}

func TestCreateUser(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2)`)
	mock.ExpectExec(query).
		WithArgs("user@example.com", "bcrypt-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.CreateUser(context.Background(), "user@example.com", "bcrypt-hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)
	mock.ExpectQuery(query).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", "bcrypt-hash"))

	id, hash, err := st.GetUserByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if id != "user-1" || hash != "bcrypt-hash" {
		t.Fatalf("unexpected row: %q %q", id, hash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateTopic(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`INSERT INTO topics (user_id, name, query, source_urls, citation_style, schedule_cron) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`)
	mock.ExpectQuery(query).
		WithArgs("user-1", "Housing", "housing prices 2024", sqlmock.AnyArg(), "apa", "@daily").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("topic-1"))

	id, err := st.CreateTopic(context.Background(), "user-1", "Housing", "housing prices 2024", []string{"https://example.com/report"}, "apa", "@daily")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if id != "topic-1" {
		t.Fatalf("unexpected id: %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTopic(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, user_id, name, query, source_urls, citation_style, schedule_cron, created_at, updated_at FROM topics WHERE id=$1 AND user_id=$2`)
	mock.ExpectQuery(query).
		WithArgs("topic-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "query", "source_urls", "citation_style", "schedule_cron", "created_at", "updated_at"}).
			AddRow("topic-1", "user-1", "Housing", "housing prices 2024", "{https://example.com/report}", "mla", "@hourly", now, now))

	topic, ok, err := st.GetTopic(context.Background(), "topic-1", "user-1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if !ok {
		t.Fatalf("expected topic to be found")
	}
	if topic.Name != "Housing" || topic.Query != "housing prices 2024" || topic.CitationStyle != "mla" {
		t.Fatalf("unexpected topic: %#v", topic)
	}
	if len(topic.SourceURLs) != 1 || topic.SourceURLs[0] != "https://example.com/report" {
		t.Fatalf("unexpected source urls: %#v", topic.SourceURLs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTopicMissing(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`SELECT id, user_id, name, query, source_urls, citation_style, schedule_cron, created_at, updated_at FROM topics WHERE id=$1 AND user_id=$2`)
	mock.ExpectQuery(query).
		WithArgs("topic-404", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := st.GetTopic(context.Background(), "topic-404", "user-1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if ok {
		t.Fatalf("expected topic to be absent")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateTopicMissing(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`UPDATE topics SET name=$1, query=$2, source_urls=$3, citation_style=$4, schedule_cron=$5, updated_at=NOW() WHERE id=$6 AND user_id=$7`)
	mock.ExpectExec(query).
		WithArgs("Housing", "housing prices 2024", sqlmock.AnyArg(), "apa", "@daily", "topic-404", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateTopic(context.Background(), "topic-404", "user-1", "Housing", "housing prices 2024", nil, "apa", "@daily")
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteTopicMissing(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`DELETE FROM topics WHERE id=$1 AND user_id=$2`)
	mock.ExpectExec(query).
		WithArgs("topic-404", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.DeleteTopic(context.Background(), "topic-404", "user-1"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateRunForTopic(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`INSERT INTO runs (user_id, topic_id, status) VALUES ($1,$2,$3) RETURNING id`)
	mock.ExpectQuery(query).
		WithArgs("user-1", "topic-1", RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))

	id, err := st.CreateRun(context.Background(), "user-1", "topic-1", RunStatusRunning)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id != "run-1" {
		t.Fatalf("unexpected id: %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateRunAdHoc(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`INSERT INTO runs (user_id, topic_id, status) VALUES ($1,$2,$3) RETURNING id`)
	mock.ExpectQuery(query).
		WithArgs("user-1", nil, RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-2"))

	id, err := st.CreateRun(context.Background(), "user-1", "", RunStatusRunning)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id != "run-2" {
		t.Fatalf("unexpected id: %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinishRun(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	msg := "engine: no sources"
	query := regexp.QuoteMeta(`UPDATE runs SET status=$1, finished_at=NOW(), error=$2 WHERE id=$3`)
	mock.ExpectExec(query).
		WithArgs(RunStatusFailed, msg, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.FinishRun(context.Background(), "run-1", RunStatusFailed, &msg); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRuns(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, COALESCE(topic_id::text, ''), status, started_at, finished_at, error FROM runs WHERE topic_id=$1 ORDER BY started_at DESC`)
	mock.ExpectQuery(query).
		WithArgs("topic-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic_id", "status", "started_at", "finished_at", "error"}).
			AddRow("run-2", "topic-1", RunStatusRunning, now, nil, nil).
			AddRow("run-1", "topic-1", RunStatusSucceeded, now.Add(-time.Hour), now.Add(-50*time.Minute), nil))

	runs, err := st.ListRuns(context.Background(), "topic-1")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" || runs[0].FinishedAt != nil {
		t.Fatalf("unexpected first run: %#v", runs[0])
	}
	if runs[1].Status != RunStatusSucceeded || runs[1].FinishedAt == nil {
		t.Fatalf("unexpected second run: %#v", runs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestRunTime(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT MAX(COALESCE(finished_at, started_at)) FROM runs WHERE topic_id=$1`)
	mock.ExpectQuery(query).
		WithArgs("topic-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(now))

	ts, err := st.LatestRunTime(context.Background(), "topic-1")
	if err != nil {
		t.Fatalf("LatestRunTime: %v", err)
	}
	if ts == nil || !ts.Equal(now) {
		t.Fatalf("unexpected timestamp: %v", ts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestRunTimeNoRuns(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`SELECT MAX(COALESCE(finished_at, started_at)) FROM runs WHERE topic_id=$1`)
	mock.ExpectQuery(query).
		WithArgs("topic-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	ts, err := st.LatestRunTime(context.Background(), "topic-1")
	if err != nil {
		t.Fatalf("LatestRunTime: %v", err)
	}
	if ts != nil {
		t.Fatalf("expected nil timestamp, got %v", ts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReportComputesFingerprint(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	rec := ReportRecord{
		RunID:         "run-1",
		UserID:        "user-1",
		Query:         "housing prices 2024",
		Title:         "Research Report: housing prices 2024",
		Summary:       "Housing prices rose twelve percent.",
		Result:        json.RawMessage(`{"query":"housing prices 2024"}`),
		WordCount:     1200,
		SourceCount:   2,
		Confidence:    0.83,
		CitationStyle: "apa",
	}
	wantFP := helpers.ContentHash("2:Housing prices rose twelve percent.")

	query := regexp.QuoteMeta(`
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
`)
	mock.ExpectQuery(query).
		WithArgs(rec.RunID, rec.UserID, nil, rec.Query, rec.Title, rec.Summary, []byte(rec.Result),
			rec.WordCount, rec.SourceCount, rec.Confidence, rec.CitationStyle, wantFP).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("report-1", now, now))

	saved, err := st.SaveReport(context.Background(), rec)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if saved.ID != "report-1" {
		t.Fatalf("unexpected id: %q", saved.ID)
	}
	if saved.Fingerprint != wantFP {
		t.Fatalf("unexpected fingerprint: %q", saved.Fingerprint)
	}
	if !saved.CreatedAt.Equal(now) || !saved.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not populated: %#v", saved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReportRequiresRunID(t *testing.T) {
	st, _, closeFn := newMockStore(t)
	defer closeFn()

	_, err := st.SaveReport(context.Background(), ReportRecord{UserID: "user-1"})
	if err == nil || !strings.Contains(err.Error(), "run_id") {
		t.Fatalf("expected run_id error, got %v", err)
	}
}

func TestGetReport(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	resultJSON := []byte(`{"query":"housing prices 2024","report":{}}`)
	query := regexp.QuoteMeta(`
SELECT id, run_id, user_id, COALESCE(topic_id::text, ''), query, title, summary, result,
       word_count, source_count, confidence, citation_style, fingerprint, created_at, updated_at
FROM reports
WHERE id=$1 AND user_id=$2`)
	mock.ExpectQuery(query).
		WithArgs("report-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "user_id", "topic_id", "query", "title", "summary", "result", "word_count", "source_count", "confidence", "citation_style", "fingerprint", "created_at", "updated_at"}).
			AddRow("report-1", "run-1", "user-1", "", "housing prices 2024", "Research Report: housing prices 2024", "Prices rose.", resultJSON, 1200, 2, 0.83, "apa", "fp", now, now))

	rec, ok, err := st.GetReport(context.Background(), "report-1", "user-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if !ok {
		t.Fatalf("expected report to be found")
	}
	if rec.Query != "housing prices 2024" || rec.WordCount != 1200 || rec.Confidence != 0.83 {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if string(rec.Result) != string(resultJSON) {
		t.Fatalf("unexpected result payload: %s", rec.Result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReportMissing(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`
SELECT id, run_id, user_id, COALESCE(topic_id::text, ''), query, title, summary, result,
       word_count, source_count, confidence, citation_style, fingerprint, created_at, updated_at
FROM reports
WHERE id=$1 AND user_id=$2`)
	mock.ExpectQuery(query).
		WithArgs("report-404", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := st.GetReport(context.Background(), "report-404", "user-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if ok {
		t.Fatalf("expected report to be absent")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListReportsDefaultLimit(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	query := regexp.QuoteMeta(`
SELECT id, query, title, summary, word_count, source_count, confidence, citation_style, created_at
FROM reports
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`)
	mock.ExpectQuery(query).
		WithArgs("user-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "query", "title", "summary", "word_count", "source_count", "confidence", "citation_style", "created_at"}).
			AddRow("report-2", "rents 2024", "Research Report: rents 2024", "Rents climbed.", 900, 3, 0.7, "mla", now).
			AddRow("report-1", "housing prices 2024", "Research Report: housing prices 2024", "Prices rose.", 1200, 2, 0.83, "apa", now.Add(-time.Hour)))

	reports, err := st.ListReports(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].ID != "report-2" || reports[1].ID != "report-1" {
		t.Fatalf("unexpected order: %#v", reports)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReportMissing(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	query := regexp.QuoteMeta(`DELETE FROM reports WHERE id=$1 AND user_id=$2`)
	mock.ExpectExec(query).
		WithArgs("report-404", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.DeleteReport(context.Background(), "report-404", "user-1"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListReportsForIndex(t *testing.T) {
	st, mock, closeFn := newMockStore(t)
	defer closeFn()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, user_id, query, title, summary, created_at FROM reports ORDER BY created_at DESC`)
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "query", "title", "summary", "created_at"}).
			AddRow("report-1", "user-1", "housing prices 2024", "Research Report: housing prices 2024", "Prices rose.", now))

	entries, err := st.ListReportsForIndex(context.Background())
	if err != nil {
		t.Fatalf("ListReportsForIndex: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "user-1" || entries[0].Summary != "Prices rose." {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
