package enrich

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
)

func testLLMConfig(baseURL string, retries int) config.LLMConfig {
	return config.LLMConfig{
		Providers: map[string]config.LLMProvider{
			"openai": {
				Type:       "openai",
				APIKey:     "test-key",
				BaseURL:    baseURL,
				MaxRetries: retries,
				Timeout:    5 * time.Second,
				Models: map[string]config.LLMModel{
					"extract": {
						Name:            "extract",
						APIName:         "gpt-4o-mini",
						MaxTokens:       800,
						Temperature:     0.1,
						CostPer1K:       0.01,
						CostPer1KOutput: 0.03,
					},
				},
			},
		},
		Routing: config.LLMRoutingConfig{Extraction: "extract"},
	}
}

func chatReply(content string, promptTokens, completionTokens int64) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	raw, _ := json.Marshal(reply)
	return string(raw)
}

func TestExtractFactsSuccess(t *testing.T) {
	payload := `{"keyFacts": [{"claim": "Prices rose 12% in 2024.", "confidence": 0.85, "category": "statistic", "entities": ["Housing Board"]}], "summary": "Prices rose.", "credibilityAssessment": 0.7, "mainTopics": ["housing"], "sentiment": "neutral"}`

	var gotReq chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(chatReply("```json\n"+payload+"\n```", 200, 100))); err != nil {
			t.Errorf("writing reply: %v", err)
		}
	}))
	defer server.Close()

	tel := telemetry.NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true}, prometheus.NewRegistry())
	client, err := New(testLLMConfig(server.URL, 0), tel)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got, err := client.ExtractFacts(context.Background(), "Prices rose 12% in 2024 according to the Housing Board.", "https://example.com/report")
	if err != nil {
		t.Fatalf("ExtractFacts returned error: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %#v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "keyFacts") {
		t.Fatal("system prompt should embed the extraction schema")
	}
	if !strings.Contains(gotReq.Messages[1].Content, "https://example.com/report") {
		t.Fatal("user prompt should include the source url")
	}
	if len(got.KeyFacts) != 1 || got.KeyFacts[0].Claim != "Prices rose 12% in 2024." {
		t.Fatalf("unexpected facts %#v", got.KeyFacts)
	}
	if got.KeyFacts[0].Category != core.FactStatistic {
		t.Fatalf("unexpected category %q", got.KeyFacts[0].Category)
	}

	summary := tel.GetCostSummary()
	if summary.TotalTokens != 300 {
		t.Fatalf("expected 300 tokens recorded, got %d", summary.TotalTokens)
	}
	wantCost := 200.0/1000*0.01 + 100.0/1000*0.03
	if math.Abs(summary.TotalCost-wantCost) > 1e-9 {
		t.Fatalf("expected cost %v, got %v", wantCost, summary.TotalCost)
	}
}

func TestExtractFactsRetriesThenSucceeds(t *testing.T) {
	payload := `{"keyFacts": [], "summary": "Nothing notable.", "credibilityAssessment": 0.5, "mainTopics": [], "sentiment": "neutral"}`

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte(chatReply(payload, 50, 20))); err != nil {
			t.Errorf("writing reply: %v", err)
		}
	}))
	defer server.Close()

	client, err := New(testLLMConfig(server.URL, 2), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got, err := client.ExtractFacts(context.Background(), "Some source text.", "https://example.com")
	if err != nil {
		t.Fatalf("ExtractFacts returned error: %v", err)
	}
	if got.Summary != "Nothing notable." {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestExtractFactsGivesUpAfterRetries(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(testLLMConfig(server.URL, 1), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = client.ExtractFacts(context.Background(), "Some source text.", "https://example.com")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestExtractFactsEmptyText(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer server.Close()

	client, err := New(testLLMConfig(server.URL, 0), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := client.ExtractFacts(context.Background(), "   ", "https://example.com"); err == nil {
		t.Fatal("expected error for empty text")
	}
	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestExtractFactsNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"choices": [], "usage": {"prompt_tokens": 10, "completion_tokens": 0}}`)); err != nil {
			t.Errorf("writing reply: %v", err)
		}
	}))
	defer server.Close()

	client, err := New(testLLMConfig(server.URL, 0), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = client.ExtractFacts(context.Background(), "Some source text.", "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("expected no-choices error, got %v", err)
	}
}

func TestResolveModel(t *testing.T) {
	base := testLLMConfig("https://api.example.com", 0)

	if _, _, err := resolveModel(config.LLMConfig{}); err == nil {
		t.Fatal("expected error when no route is configured")
	}

	missing := base
	missing.Routing = config.LLMRoutingConfig{Extraction: "absent"}
	if _, _, err := resolveModel(missing); err == nil {
		t.Fatal("expected error when no provider serves the route")
	}

	noKey := testLLMConfig("https://api.example.com", 0)
	provider := noKey.Providers["openai"]
	provider.APIKey = ""
	noKey.Providers["openai"] = provider
	if _, _, err := resolveModel(noKey); err == nil {
		t.Fatal("expected error when the provider has no api key")
	}

	fallback := testLLMConfig("https://api.example.com", 0)
	fallback.Routing = config.LLMRoutingConfig{Fallback: "extract"}
	if _, model, err := resolveModel(fallback); err != nil || model.Name != "extract" {
		t.Fatalf("expected fallback route to resolve, got model %#v err %v", model, err)
	}
}

func TestModelNameFallsBackToName(t *testing.T) {
	c := &Client{model: config.LLMModel{Name: "extract"}}
	if got := c.modelName(); got != "extract" {
		t.Fatalf("expected bare name, got %q", got)
	}
	c.model.APIName = "gpt-4o-mini"
	if got := c.modelName(); got != "gpt-4o-mini" {
		t.Fatalf("expected api name, got %q", got)
	}
}
