package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/enrich"
	"github.com/mohammad-safakhou/researcher/internal/research/retrieval"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// Run wires the store, the synthesis engine, the retrieval pipeline and
// every handler, then blocks serving the HTTP API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := postgresDSN(cfg)
	if err != nil {
		return err
	}
	if err := Migrate("", dsn, "up", 0); err != nil {
		log.Printf("[SERVER] migrate: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry, nil)
	defer tele.Shutdown()

	pipeline, err := retrieval.NewPipeline(cfg.Retrieval, cfg.Authority, tele)
	if err != nil {
		return err
	}

	var enricher core.Enricher
	if cl, err := enrich.New(cfg.LLM, tele); err != nil {
		log.Printf("[SERVER] enrichment disabled: %v", err)
	} else {
		enricher = cl
	}
	engine := core.NewEngine(EngineConfig(cfg), enricher)

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	arch, err := NewArchive()
	if err != nil {
		return err
	}
	if err := arch.Load(ctx, st); err != nil {
		return fmt.Errorf("archive index: %w", err)
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(authMiddleware(auth.Secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: userID(c)})
	})

	research := api.Group("/research")
	research.Use(authMiddleware(auth.Secret))
	rh := &ResearchHandler{
		Store:        st,
		Archive:      arch,
		Engine:       engine,
		Pipeline:     pipeline,
		Telemetry:    tele,
		Cache:        rdb,
		CacheTTL:     cfg.Server.ResultCacheTTL,
		Timeout:      cfg.General.MaxProcessingTime,
		DefaultStyle: cfg.Citations.DefaultStyle,
		DefaultOrder: cfg.Citations.DefaultSortOrder,
	}
	rh.Register(research)

	reports := api.Group("/reports")
	reports.Use(authMiddleware(auth.Secret))
	ah := &ArchiveHandler{Store: st, Archive: arch}
	ah.Register(reports)

	topics := api.Group("/topics")
	topics.Use(authMiddleware(auth.Secret))
	th := &TopicsHandler{Store: st, DefaultStyle: cfg.Citations.DefaultStyle}
	th.Register(topics)

	ops := api.Group("/ops")
	ops.Use(authMiddleware(auth.Secret))
	oh := &OpsHandler{Tel: tele}
	oh.Register(ops)

	sched := &Scheduler{
		Store:        st,
		Stop:         make(chan struct{}),
		Rdb:          rdb,
		Engine:       engine,
		Pipeline:     pipeline,
		Archive:      arch,
		Telemetry:    tele,
		DefaultStyle: cfg.Citations.DefaultStyle,
		DefaultOrder: cfg.Citations.DefaultSortOrder,
		Timeout:      cfg.General.MaxProcessingTime,
	}
	sched.Start()
	defer close(sched.Stop)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// EngineConfig maps application settings onto the synthesis engine defaults.
// Zero values keep the engine's own defaults.
func EngineConfig(cfg *config.Config) core.Config {
	ec := core.DefaultConfig()
	syn := cfg.Synthesis
	if syn.MaxWorkers > 0 {
		ec.MaxWorkers = syn.MaxWorkers
	}
	if syn.EnrichTimeout > 0 {
		ec.EnrichTimeout = syn.EnrichTimeout
	}
	if syn.MaxFactsPerSource > 0 {
		ec.MaxFactsPerSource = syn.MaxFactsPerSource
	}
	if syn.TopTopics > 0 {
		ec.TopTopicCount = syn.TopTopics
	}
	if syn.ConflictingRatio > 0 {
		ec.ConflictingRatio = syn.ConflictingRatio
	}
	if syn.StrongMinConfidence > 0 {
		ec.StrongMinConfidence = syn.StrongMinConfidence
	}
	if syn.StrongMinSources > 0 {
		ec.StrongMinSources = syn.StrongMinSources
	}
	if syn.ModerateMinConfidence > 0 {
		ec.ModerateMinConfidence = syn.ModerateMinConfidence
	}
	if syn.ModerateMinSources > 0 {
		ec.ModerateMinSources = syn.ModerateMinSources
	}
	if syn.FreshDays > 0 {
		ec.FreshDays = syn.FreshDays
	}
	if syn.RecentDays > 0 {
		ec.RecentDays = syn.RecentDays
	}
	if syn.ReadingWPM > 0 {
		ec.ReadingWPM = syn.ReadingWPM
	}
	if cfg.Authority.BaseCredibility > 0 {
		ec.BaseCredibility = cfg.Authority.BaseCredibility
	}
	return ec
}

func postgresDSN(cfg *config.Config) (string, error) {
	if cfg.Storage.Postgres.URL != "" {
		return cfg.Storage.Postgres.URL, nil
	}
	host := cfg.Storage.Postgres.Host
	port := cfg.Storage.Postgres.Port
	user := cfg.Storage.Postgres.User
	pass := cfg.Storage.Postgres.Password
	db := cfg.Storage.Postgres.DBName
	ssl := cfg.Storage.Postgres.SSLMode
	if host == "" || db == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl), nil
}
