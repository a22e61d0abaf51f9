package telemetry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/researcher/config"
)

// Telemetry tracks synthesis runs, source fetches and enrichment calls,
// with cost accounting for the LLM side. Counters are mirrored into
// prometheus so the /metrics endpoint exposes them.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex

	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	fetchTotal   *prometheus.CounterVec
	enrichTokens *prometheus.CounterVec
	enrichCost   *prometheus.CounterVec
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	// Fetch metrics, keyed by provider (brave, serper, http, headless)
	FetchRequests     map[string]int64
	FetchSuccessRates map[string]float64
	FetchAverageTimes map[string]time.Duration

	// Enrichment metrics, keyed by model
	EnrichRequests       map[string]int64
	EnrichTokensUsed     map[string]int64
	EnrichAverageLatency map[string]time.Duration
}

// CostTracker accumulates LLM spend across models.
type CostTracker struct {
	ModelCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// RunEvent describes one completed synthesis run.
type RunEvent struct {
	ID           string
	Query        string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Success      bool
	Error        string
	SourceCount  int
	ThemeCount   int
	WarningCount int
	Cost         float64
	TokensUsed   int64
}

// FetchEvent describes one source discovery or download attempt.
type FetchEvent struct {
	Provider string
	URL      string
	Duration time.Duration
	Success  bool
	Error    string
	Results  int
}

// EnrichEvent describes one enrichment model call.
type EnrichEvent struct {
	Model        string
	Duration     time.Duration
	Success      bool
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// NewTelemetry creates a telemetry instance. Pass nil to register the
// prometheus collectors on the default registry.
func NewTelemetry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			FetchRequests:        make(map[string]int64),
			FetchSuccessRates:    make(map[string]float64),
			FetchAverageTimes:    make(map[string]time.Duration),
			EnrichRequests:       make(map[string]int64),
			EnrichTokensUsed:     make(map[string]int64),
			EnrichAverageLatency: make(map[string]time.Duration),
		},
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
		},
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_runs_total",
			Help: "Synthesis runs by outcome.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "researcher_run_duration_seconds",
			Help:    "End-to-end synthesis run latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_fetch_requests_total",
			Help: "Source fetches by provider and outcome.",
		}, []string{"provider", "status"}),
		enrichTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_enrichment_tokens_total",
			Help: "Tokens consumed by the enrichment model.",
		}, []string{"model", "direction"}),
		enrichCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "researcher_enrichment_cost_dollars_total",
			Help: "Accumulated enrichment spend in dollars.",
		}, []string{"model"}),
	}
	reg.MustRegister(t.runsTotal, t.runDuration, t.fetchTotal, t.enrichTokens, t.enrichCost)

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicLogs()
	}
	return t
}

// RecordRunEvent records a completed synthesis run.
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	status := "success"
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
		status = "failure"
	}
	t.runsTotal.WithLabelValues(status).Inc()
	t.runDuration.Observe(event.Duration.Seconds())

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Run: ID=%s, Success=%t, Duration=%v, Sources=%d, Themes=%d, Warnings=%d, Cost=$%.4f",
		event.ID, event.Success, event.Duration, event.SourceCount, event.ThemeCount, event.WarningCount, event.Cost)
}

// RecordFetchEvent records a source discovery or download attempt.
func (t *Telemetry) RecordFetchEvent(event FetchEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.FetchRequests[event.Provider]++
	requests := t.metrics.FetchRequests[event.Provider]

	status := "success"
	successes := t.metrics.FetchSuccessRates[event.Provider] * float64(requests-1)
	if event.Success {
		successes += 1.0
	} else {
		status = "failure"
	}
	t.metrics.FetchSuccessRates[event.Provider] = successes / float64(requests)
	t.fetchTotal.WithLabelValues(event.Provider, status).Inc()

	currentAvg := t.metrics.FetchAverageTimes[event.Provider]
	if requests == 1 {
		t.metrics.FetchAverageTimes[event.Provider] = event.Duration
	} else {
		total := currentAvg * time.Duration(requests-1)
		t.metrics.FetchAverageTimes[event.Provider] = (total + event.Duration) / time.Duration(requests)
	}

	t.logger.Printf("Fetch: Provider=%s, Success=%t, Duration=%v, Results=%d",
		event.Provider, event.Success, event.Duration, event.Results)
}

// RecordEnrichEvent records an enrichment model call.
func (t *Telemetry) RecordEnrichEvent(event EnrichEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.EnrichRequests[event.Model]++
	requests := t.metrics.EnrichRequests[event.Model]
	tokens := event.InputTokens + event.OutputTokens
	t.metrics.EnrichTokensUsed[event.Model] += tokens

	currentAvg := t.metrics.EnrichAverageLatency[event.Model]
	if requests == 1 {
		t.metrics.EnrichAverageLatency[event.Model] = event.Duration
	} else {
		total := currentAvg * time.Duration(requests-1)
		t.metrics.EnrichAverageLatency[event.Model] = (total + event.Duration) / time.Duration(requests)
	}

	t.enrichTokens.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
	t.enrichTokens.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += tokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.enrichCost.WithLabelValues(event.Model).Add(event.Cost)
	}

	t.logger.Printf("Enrich: Model=%s, Success=%t, Duration=%v, Tokens=%d, Cost=$%.4f",
		event.Model, event.Success, event.Duration, tokens, event.Cost)
}

// GetMetrics returns a metrics snapshot decoupled from the live maps.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.FetchRequests = copyInt64Map(t.metrics.FetchRequests)
	metrics.FetchSuccessRates = copyFloatMap(t.metrics.FetchSuccessRates)
	metrics.FetchAverageTimes = copyDurationMap(t.metrics.FetchAverageTimes)
	metrics.EnrichRequests = copyInt64Map(t.metrics.EnrichRequests)
	metrics.EnrichTokensUsed = copyInt64Map(t.metrics.EnrichTokensUsed)
	metrics.EnrichAverageLatency = copyDurationMap(t.metrics.EnrichAverageLatency)
	return metrics
}

// GetCostSummary returns current cost totals.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  copyFloatMap(t.costTracker.ModelCosts),
	}
	return summary
}

// CostSummary provides a summary of enrichment costs.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
}

// CalculateCost prices a call from per-1K token rates.
func CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}

func (t *Telemetry) startPeriodicLogs() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()

		t.logger.Printf("Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns,
			metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)
	}
}

// Shutdown logs a final report.
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Runs: %d", metrics.TotalRuns)
	if metrics.TotalRuns > 0 {
		t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulRuns)/float64(metrics.TotalRuns)*100)
	}
	t.logger.Printf("  Average Run Time: %v", metrics.AverageRunTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a human-readable performance summary.
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Runs:
  Total: %d
  Successful: %d
  Failed: %d
  Average Duration: %v
  Total Cost: $%.4f
  Total Tokens: %d

Fetch Providers:
`, metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns,
		metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)

	for provider, requests := range metrics.FetchRequests {
		successRate := metrics.FetchSuccessRates[provider]
		avgTime := metrics.FetchAverageTimes[provider]
		report += fmt.Sprintf("  %s: %d requests, %.2f%% success, %v avg time\n",
			provider, requests, successRate*100, avgTime)
	}

	report += "\nEnrichment Models:\n"
	for model, requests := range metrics.EnrichRequests {
		tokens := metrics.EnrichTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	return report
}

func copyInt64Map(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyFloatMap(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyDurationMap(src map[string]time.Duration) map[string]time.Duration {
	dst := make(map[string]time.Duration, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
