package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// Source text beyond this is truncated before prompting; the heuristic
	// extractor still sees the full text.
	maxInputRunes = 20000
)

// Client calls an OpenAI-compatible chat completions API to extract
// structured facts from source text. It implements core.Enricher.
type Client struct {
	provider     config.LLMProvider
	model        config.LLMModel
	instructions string
	schema       string
	httpClient   *http.Client
	retries      int
	backoff      time.Duration
	tel          *telemetry.Telemetry
	logger       *log.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// New resolves the extraction route from the LLM config and returns a
// ready client. Telemetry is optional.
func New(cfg config.LLMConfig, tel *telemetry.Telemetry) (*Client, error) {
	provider, model, err := resolveModel(cfg)
	if err != nil {
		return nil, err
	}

	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := provider.MaxRetries
	if retries < 0 {
		retries = 0
	}
	instructions := cfg.Extraction.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = config.DefaultExtractionInstructions
	}
	schema := cfg.Extraction.Schema
	if strings.TrimSpace(schema) == "" {
		schema = config.DefaultExtractionSchema
	}

	return &Client{
		provider:     provider,
		model:        model,
		instructions: instructions,
		schema:       schema,
		httpClient:   &http.Client{Timeout: timeout},
		retries:      retries,
		backoff:      300 * time.Millisecond,
		tel:          tel,
		logger:       log.New(log.Writer(), "[ENRICH] ", log.LstdFlags),
	}, nil
}

// resolveModel picks the provider that serves the configured extraction
// model, falling back to the fallback route.
func resolveModel(cfg config.LLMConfig) (config.LLMProvider, config.LLMModel, error) {
	route := strings.TrimSpace(cfg.Routing.Extraction)
	if route == "" {
		route = strings.TrimSpace(cfg.Routing.Fallback)
	}
	if route == "" {
		return config.LLMProvider{}, config.LLMModel{}, errors.New("llm.routing.extraction is not configured")
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		provider := cfg.Providers[name]
		model, ok := provider.Models[route]
		if !ok {
			continue
		}
		if strings.TrimSpace(provider.APIKey) == "" {
			return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("provider %s serves model %q but has no api key", name, route)
		}
		return provider, model, nil
	}
	return config.LLMProvider{}, config.LLMModel{}, fmt.Errorf("no configured provider serves model %q", route)
}

// ExtractFacts prompts the model with the source text and parses the
// structured response. Errors are plain; the pipeline treats any failure
// as enrichment being unavailable for that source.
func (c *Client) ExtractFacts(ctx context.Context, text, sourceURL string) (*core.EnrichedExtraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("no text to enrich")
	}

	system := c.instructions + "\n\nSCHEMA:\n" + c.schema
	user := fmt.Sprintf("SOURCE URL: %s\n\nCONTENT:\n%s", sourceURL, helpers.Truncate(text, maxInputRunes))
	reqBody := chatRequest{
		Model: c.modelName(),
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.model.Temperature,
		MaxTokens:   c.model.MaxTokens,
	}

	start := time.Now()
	var resp chatResponse
	err := c.postJSON(ctx, "/chat/completions", reqBody, &resp)
	duration := time.Since(start)
	if err != nil {
		c.recordEvent(duration, false, 0, 0)
		c.logger.Printf("extraction call failed: %v", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		c.recordEvent(duration, false, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		return nil, errors.New("no choices in model response")
	}
	c.recordEvent(duration, true, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return parseExtraction(resp.Choices[0].Message.Content)
}

func (c *Client) modelName() string {
	if strings.TrimSpace(c.model.APIName) != "" {
		return c.model.APIName
	}
	return c.model.Name
}

func (c *Client) recordEvent(duration time.Duration, success bool, in, out int64) {
	if c.tel == nil {
		return
	}
	c.tel.RecordEnrichEvent(telemetry.EnrichEvent{
		Model:        c.modelName(),
		Duration:     duration,
		Success:      success,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         telemetry.CalculateCost(in, out, c.model.CostPer1K, c.model.CostPer1KOutput),
	})
}

// postJSON sends one JSON request with retries and exponential backoff.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	baseURL := strings.TrimRight(c.provider.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	url := baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.provider.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := helpers.ReadAllAndClose(resp.Body)
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return json.Unmarshal(raw, out)
			default:
				lastErr = fmt.Errorf("%s: %s", resp.Status, helpers.Truncate(string(raw), 512))
			}
		}

		if attempt < c.retries {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
