package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/export"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// indexedReport is the document shape fed to the full-text index.
type indexedReport struct {
	Query   string `json:"query"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Archive is an in-memory BM25 index over stored reports. It is rebuilt from
// the database at startup and kept in sync on save and delete.
type Archive struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]store.IndexEntry
}

func NewArchive() (*Archive, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Archive{index: index, meta: make(map[string]store.IndexEntry)}, nil
}

// Load rebuilds the index from every stored report.
func (a *Archive) Load(ctx context.Context, st *store.Store) error {
	entries, err := st.ListReportsForIndex(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := a.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) Add(e store.IndexEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.meta[e.ID] = e
	return a.index.Index(e.ID, indexedReport{Query: e.Query, Title: e.Title, Summary: e.Summary})
}

func (a *Archive) Remove(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.meta, id)
	return a.index.Delete(id)
}

// Search runs a BM25 query and keeps only hits owned by userID.
func (a *Archive) Search(q, userID string, k int) ([]SearchHit, error) {
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := a.index.Search(searchReq)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SearchHit, 0, k)
	for _, hit := range res.Hits {
		e, ok := a.meta[hit.ID]
		if !ok || e.UserID != userID {
			continue
		}
		out = append(out, SearchHit{
			ID: hit.ID, Query: e.Query, Title: e.Title,
			Snippet:   snippet(e.Summary),
			Score:     hit.Score,
			CreatedAt: e.CreatedAt,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= 300 {
		return s
	}
	return string(r[:300]) + "…"
}

type ArchiveHandler struct {
	Store   *store.Store
	Archive *Archive
}

func (h *ArchiveHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
	g.GET("/:id/export", h.export)
	g.DELETE("/:id", h.delete)
}

// List reports
//
//	@Summary	List archived reports for the current user
//	@Tags		reports
//	@Produce	json
//	@Param		limit	query		int	false	"max rows (default 50)"
//	@Success	200		{array}		ReportListItem
//	@Failure	500		{object}	HTTPError
//	@Router		/api/reports [get]
func (h *ArchiveHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := h.Store.ListReports(c.Request().Context(), userID(c), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ReportListItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, ReportListItem{
			ID: r.ID, Query: r.Query, Title: r.Title, Summary: r.Summary,
			WordCount: r.WordCount, SourceCount: r.SourceCount,
			Confidence: r.Confidence, CitationStyle: r.CitationStyle,
			CreatedAt: r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Get report
//
//	@Summary	Fetch one archived report with its full synthesis artifact
//	@Tags		reports
//	@Produce	json
//	@Param		id	path		string	true	"report id"
//	@Success	200	{object}	ReportDetail
//	@Failure	404	{object}	HTTPError
//	@Router		/api/reports/{id} [get]
func (h *ArchiveHandler) get(c echo.Context) error {
	rec, ok, err := h.Store.GetReport(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, ReportDetail{
		ID: rec.ID, RunID: rec.RunID, TopicID: rec.TopicID,
		Query: rec.Query, Title: rec.Title, CitationStyle: rec.CitationStyle,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
		Result: rec.Result,
	})
}

// Export report
//
//	@Summary	Render an archived report as markdown, json or html
//	@Tags		reports
//	@Produce	plain
//	@Param		id		path		string	true	"report id"
//	@Param		format	query		string	false	"markdown|json|html (default markdown)"
//	@Success	200		{string}	string
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/reports/{id}/export [get]
func (h *ArchiveHandler) export(c echo.Context) error {
	rec, ok, err := h.Store.GetReport(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	format := c.QueryParam("format")
	if format == "" {
		format = "markdown"
	}
	switch format {
	case "json":
		return c.JSONBlob(http.StatusOK, rec.Result)
	case "markdown", "html":
		var result core.Result
		if err := json.Unmarshal(rec.Result, &result); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "stored result is unreadable: "+err.Error())
		}
		if format == "html" {
			return c.HTML(http.StatusOK, export.HTML(&result))
		}
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(export.Markdown(&result)))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported format: "+format)
	}
}

// Delete report
//
//	@Summary	Delete an archived report
//	@Tags		reports
//	@Param		id	path	string	true	"report id"
//	@Success	204	{string}	string	"No Content"
//	@Failure	404	{object}	HTTPError
//	@Router		/api/reports/{id} [delete]
func (h *ArchiveHandler) delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.Store.DeleteReport(c.Request().Context(), id, userID(c)); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	_ = h.Archive.Remove(id)
	return c.NoContent(http.StatusNoContent)
}

// Search reports
//
//	@Summary	Full-text search over the current user's archived reports
//	@Tags		reports
//	@Produce	json
//	@Param		q	query		string	true	"query string"
//	@Param		k	query		int		false	"max hits (default 10)"
//	@Success	200	{array}		SearchHit
//	@Failure	400	{object}	HTTPError
//	@Router		/api/reports/search [get]
func (h *ArchiveHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	if k <= 0 {
		k = 10
	}
	hits, err := h.Archive.Search(q, userID(c), k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}
