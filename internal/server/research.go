package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/retrieval"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// ResearchHandler runs one synchronous synthesis per request: gather sources
// when the caller supplies none, run the engine, archive the result and cache
// it under a fingerprint of the request.
type ResearchHandler struct {
	Store        *store.Store
	Archive      *Archive
	Engine       *core.Engine
	Pipeline     *retrieval.Pipeline
	Telemetry    *telemetry.Telemetry
	Cache        *redis.Client
	CacheTTL     time.Duration
	Timeout      time.Duration
	DefaultStyle string
	DefaultOrder string
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("", h.research)
}

// Research
//
//	@Summary		Run a research synthesis for a query
//	@Description	Gathers sources when none are supplied, synthesizes a report and archives it
//	@Tags			research
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ResearchRequest	true	"Research payload"
//	@Success		200		{object}	ResearchResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		500		{object}	HTTPError
//	@Router			/api/research [post]
func (h *ResearchHandler) research(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if req.CitationStyle == "" {
		req.CitationStyle = h.DefaultStyle
	}
	if !validStyle(req.CitationStyle) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown citation style: "+req.CitationStyle)
	}
	if req.SortOrder == "" {
		req.SortOrder = h.DefaultOrder
	}

	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	uid := userID(c)

	key := cacheKey(req)
	if cached, ok := h.cachedResponse(ctx, key); ok {
		cached.Cached = true
		return c.JSON(http.StatusOK, cached)
	}

	sources := req.Sources
	var warnings []string
	if len(sources) == 0 {
		if h.Pipeline == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no sources supplied and source discovery is not configured")
		}
		var err error
		sources, warnings, err = h.Pipeline.Gather(ctx, req.Query, nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, "source discovery failed: "+err.Error())
		}
	}
	if req.MaxSources > 0 && len(sources) > req.MaxSources {
		sources = sources[:req.MaxSources]
	}

	runID, err := h.Store.CreateRun(ctx, uid, "", store.RunStatusRunning)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	started := time.Now()
	result, err := h.Engine.Run(ctx, core.Request{
		Query:         req.Query,
		Sources:       sources,
		CitationStyle: req.CitationStyle,
		SortOrder:     core.SortOrder(req.SortOrder),
		IncludeGraph:  req.IncludeGraph,
	})
	recordRun(h.Telemetry, runID, req.Query, started, result, err)
	if err != nil {
		h.failRun(runID, err)
		if core.IsInputError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	saved, err := archiveRun(ctx, h.Store, h.Archive, runID, uid, "", result)
	if err != nil {
		h.failRun(runID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.FinishRun(ctx, runID, store.RunStatusSucceeded, nil); err != nil {
		log.Printf("[RESEARCH] finish run %s: %v", runID, err)
	}

	resp := ResearchResponse{ID: saved.ID, Warnings: warnings, Result: result}
	h.storeCached(key, resp)
	return c.JSON(http.StatusOK, resp)
}

// archiveRun persists the artifact and keeps the search index in sync.
func archiveRun(ctx context.Context, st *store.Store, idx *Archive, runID, uid, topicID string, result *core.Result) (store.ReportRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return store.ReportRecord{}, err
	}
	rec := store.ReportRecord{
		RunID:         runID,
		UserID:        uid,
		TopicID:       topicID,
		Query:         result.Query,
		Title:         result.Report.Title,
		Summary:       result.Report.ExecutiveSummary,
		Result:        payload,
		WordCount:     result.Report.Metadata.WordCount,
		SourceCount:   result.Report.Metadata.SourceCount,
		Confidence:    result.Report.Metadata.Confidence,
		CitationStyle: result.Report.Metadata.CitationStyle,
	}
	saved, err := st.SaveReport(ctx, rec)
	if err != nil {
		return store.ReportRecord{}, err
	}
	if idx != nil {
		if err := idx.Add(store.IndexEntry{
			ID: saved.ID, UserID: uid,
			Query: saved.Query, Title: saved.Title, Summary: saved.Summary,
			CreatedAt: saved.CreatedAt,
		}); err != nil {
			log.Printf("index report %s: %v", saved.ID, err)
		}
	}
	return saved, nil
}

// failRun is best-effort; the run row should not mask the original error.
// A fresh context is used because the request context may already be dead.
func (h *ResearchHandler) failRun(runID string, cause error) {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Store.FinishRun(ctx, runID, store.RunStatusFailed, &msg); err != nil {
		log.Printf("[RESEARCH] finish run %s: %v", runID, err)
	}
}

func (h *ResearchHandler) cachedResponse(ctx context.Context, key string) (ResearchResponse, bool) {
	var resp ResearchResponse
	if h.Cache == nil {
		return resp, false
	}
	raw, err := h.Cache.Get(ctx, key).Bytes()
	if err != nil {
		return resp, false
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("[RESEARCH] drop unreadable cache entry %s: %v", key, err)
		return ResearchResponse{}, false
	}
	return resp, true
}

func (h *ResearchHandler) storeCached(key string, resp ResearchResponse) {
	if h.Cache == nil || h.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Cache.Set(ctx, key, raw, h.CacheTTL).Err(); err != nil {
		log.Printf("[RESEARCH] cache set %s: %v", key, err)
	}
}

func recordRun(tel *telemetry.Telemetry, runID, query string, started time.Time, result *core.Result, err error) {
	if tel == nil {
		return
	}
	ev := telemetry.RunEvent{
		ID:        runID,
		Query:     query,
		StartTime: started,
		EndTime:   time.Now(),
		Duration:  time.Since(started),
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if result != nil {
		ev.SourceCount = len(result.Sources)
		ev.ThemeCount = len(result.Synthesis.KeyThemes)
		ev.WarningCount = len(result.Warnings)
	}
	tel.RecordRunEvent(ev)
}

// cacheKey fingerprints everything that changes the produced artifact.
func cacheKey(req ResearchRequest) string {
	parts := []string{
		req.Query,
		req.CitationStyle,
		req.SortOrder,
		strconv.FormatBool(req.IncludeGraph),
		strconv.Itoa(req.MaxSources),
	}
	for _, s := range req.Sources {
		id := s.ID
		if id == "" {
			id = s.URL
		}
		parts = append(parts, id)
	}
	return "research:" + helpers.ContentHash(strings.Join(parts, "\n"))
}
