package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

type TopicsHandler struct {
	Store        *store.Store
	DefaultStyle string
}

func (h *TopicsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/runs", h.runs)
}

// Create topic
//
//	@Summary	Save a research query to run on a schedule
//	@Tags		topics
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateTopicRequest	true	"Topic payload"
//	@Success	201		{object}	IDResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/topics [post]
func (h *TopicsHandler) create(c echo.Context) error {
	var req CreateTopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Query = strings.TrimSpace(req.Query)
	if req.Name == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and query required")
	}
	if req.ScheduleCron == "" {
		req.ScheduleCron = "@daily"
	}
	if err := validateCron(req.ScheduleCron); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CitationStyle == "" {
		req.CitationStyle = h.DefaultStyle
	}
	if !validStyle(req.CitationStyle) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown citation style: "+req.CitationStyle)
	}
	id, err := h.Store.CreateTopic(c.Request().Context(), userID(c), req.Name, req.Query, req.SourceURLs, req.CitationStyle, req.ScheduleCron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

// List topics
//
//	@Summary	List the current user's saved topics
//	@Tags		topics
//	@Produce	json
//	@Success	200	{array}		TopicResponse
//	@Failure	500	{object}	HTTPError
//	@Router		/api/topics [get]
func (h *TopicsHandler) list(c echo.Context) error {
	items, err := h.Store.ListTopics(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]TopicResponse, 0, len(items))
	for _, t := range items {
		out = append(out, topicView(t))
	}
	return c.JSON(http.StatusOK, out)
}

// Get topic
//
//	@Summary	Fetch one saved topic
//	@Tags		topics
//	@Produce	json
//	@Param		id	path		string	true	"topic id"
//	@Success	200	{object}	TopicResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/topics/{id} [get]
func (h *TopicsHandler) get(c echo.Context) error {
	t, ok, err := h.Store.GetTopic(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "topic not found")
	}
	return c.JSON(http.StatusOK, topicView(t))
}

// Update topic
//
//	@Summary	Replace the mutable fields of a saved topic
//	@Tags		topics
//	@Accept		json
//	@Param		id		path		string				true	"topic id"
//	@Param		payload	body		UpdateTopicRequest	true	"Topic payload"
//	@Success	204		{string}	string				"No Content"
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/topics/{id} [put]
func (h *TopicsHandler) update(c echo.Context) error {
	var req UpdateTopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Query = strings.TrimSpace(req.Query)
	if req.Name == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and query required")
	}
	if req.ScheduleCron == "" {
		req.ScheduleCron = "@daily"
	}
	if err := validateCron(req.ScheduleCron); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CitationStyle == "" {
		req.CitationStyle = h.DefaultStyle
	}
	if !validStyle(req.CitationStyle) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown citation style: "+req.CitationStyle)
	}
	err := h.Store.UpdateTopic(c.Request().Context(), c.Param("id"), userID(c), req.Name, req.Query, req.SourceURLs, req.CitationStyle, req.ScheduleCron)
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "topic not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete topic
//
//	@Summary	Delete a saved topic
//	@Tags		topics
//	@Param		id	path		string	true	"topic id"
//	@Success	204	{string}	string	"No Content"
//	@Failure	404	{object}	HTTPError
//	@Router		/api/topics/{id} [delete]
func (h *TopicsHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteTopic(c.Request().Context(), c.Param("id"), userID(c)); err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "topic not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// List runs
//
//	@Summary	List runs recorded for a topic, newest first
//	@Tags		topics
//	@Produce	json
//	@Param		id	path		string	true	"topic id"
//	@Success	200	{array}		RunResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/topics/{id}/runs [get]
func (h *TopicsHandler) runs(c echo.Context) error {
	id := c.Param("id")
	_, ok, err := h.Store.GetTopic(c.Request().Context(), id, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "topic not found")
	}
	items, err := h.Store.ListRuns(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]RunResponse, 0, len(items))
	for _, r := range items {
		out = append(out, RunResponse{
			ID: r.ID, TopicID: r.TopicID, Status: r.Status,
			StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Error: r.Error,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func topicView(t store.Topic) TopicResponse {
	return TopicResponse{
		ID: t.ID, Name: t.Name, Query: t.Query,
		SourceURLs:    t.SourceURLs,
		CitationStyle: t.CitationStyle,
		ScheduleCron:  t.ScheduleCron,
		CreatedAt:     t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func validStyle(name string) bool {
	for _, s := range core.SupportedStyles() {
		if s == name {
			return true
		}
	}
	return false
}

func validateCron(spec string) error {
	if spec == "@daily" || spec == "@hourly" {
		return nil
	}
	if _, err := cronexpr.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule_cron: %v", err)
	}
	return nil
}
