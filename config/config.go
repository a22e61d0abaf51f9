package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Citations CitationsConfig `mapstructure:"citations"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Authority AuthorityConfig `mapstructure:"authority"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Export    ExportConfig    `mapstructure:"export"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	ResultCacheTTL time.Duration `mapstructure:"result_cache_ttl"`
}

// LLMConfig contains LLM provider configurations for fact enrichment
type LLMConfig struct {
	Providers  map[string]LLMProvider `mapstructure:"providers"`
	Routing    LLMRoutingConfig       `mapstructure:"routing"`
	Extraction ExtractionPromptConfig `mapstructure:"extraction"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Extraction string `mapstructure:"extraction"` // structured fact extraction
	Summary    string `mapstructure:"summary"`    // per-source summaries
	Fallback   string `mapstructure:"fallback"`   // fallback model
}

// ExtractionPromptConfig carries the schema and instructions sent to the
// enrichment model. Defaults are compiled in; override for custom prompts.
type ExtractionPromptConfig struct {
	Schema       string `mapstructure:"schema"`
	Instructions string `mapstructure:"instructions"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// SynthesisConfig tunes the consensus and aggregation thresholds.
type SynthesisConfig struct {
	MaxWorkers            int           `mapstructure:"max_workers"`
	EnrichTimeout         time.Duration `mapstructure:"enrich_timeout"`
	MaxFactsPerSource     int           `mapstructure:"max_facts_per_source"`
	TopTopics             int           `mapstructure:"top_topics"`
	ConflictingRatio      float64       `mapstructure:"conflicting_ratio"`
	StrongMinConfidence   float64       `mapstructure:"strong_min_confidence"`
	StrongMinSources      int           `mapstructure:"strong_min_sources"`
	ModerateMinConfidence float64       `mapstructure:"moderate_min_confidence"`
	ModerateMinSources    int           `mapstructure:"moderate_min_sources"`
	FreshDays             int           `mapstructure:"fresh_days"`
	RecentDays            int           `mapstructure:"recent_days"`
	ReadingWPM            int           `mapstructure:"reading_wpm"`
}

// Normalize fills unset synthesis knobs with the documented defaults.
func (s SynthesisConfig) Normalize() SynthesisConfig {
	if s.MaxWorkers <= 0 {
		s.MaxWorkers = 4
	}
	if s.EnrichTimeout <= 0 {
		s.EnrichTimeout = 20 * time.Second
	}
	if s.MaxFactsPerSource <= 0 {
		s.MaxFactsPerSource = 20
	}
	if s.TopTopics <= 0 {
		s.TopTopics = 10
	}
	if s.ConflictingRatio <= 0 {
		s.ConflictingRatio = 0.7
	}
	if s.StrongMinConfidence <= 0 {
		s.StrongMinConfidence = 0.8
	}
	if s.StrongMinSources <= 0 {
		s.StrongMinSources = 3
	}
	if s.ModerateMinConfidence <= 0 {
		s.ModerateMinConfidence = 0.6
	}
	if s.ModerateMinSources <= 0 {
		s.ModerateMinSources = 2
	}
	if s.FreshDays <= 0 {
		s.FreshDays = 7
	}
	if s.RecentDays <= 0 {
		s.RecentDays = 90
	}
	if s.ReadingWPM <= 0 {
		s.ReadingWPM = 200
	}
	return s
}

// Validate ensures the consensus ladder stays monotonic.
func (s SynthesisConfig) Validate() error {
	if s.ConflictingRatio <= 0 || s.ConflictingRatio > 1 {
		return fmt.Errorf("synthesis.conflicting_ratio must be in (0, 1]")
	}
	if s.StrongMinConfidence < s.ModerateMinConfidence {
		return fmt.Errorf("synthesis.strong_min_confidence must be >= moderate_min_confidence")
	}
	if s.StrongMinSources < s.ModerateMinSources {
		return fmt.Errorf("synthesis.strong_min_sources must be >= moderate_min_sources")
	}
	if s.FreshDays > s.RecentDays {
		return fmt.Errorf("synthesis.fresh_days must be <= recent_days")
	}
	return nil
}

// CitationsConfig selects the default bibliography rendering.
type CitationsConfig struct {
	DefaultStyle     string `mapstructure:"default_style"`
	DefaultSortOrder string `mapstructure:"default_sort_order"`
}

var knownStyles = map[string]struct{}{
	"apa": {}, "mla": {}, "chicago": {}, "harvard": {}, "ieee": {}, "nature": {},
}

var knownSortOrders = map[string]struct{}{
	"alphabetical": {}, "chronological": {}, "appearance": {},
}

// Normalize lowercases and defaults the citation settings.
func (c CitationsConfig) Normalize() CitationsConfig {
	c.DefaultStyle = strings.ToLower(strings.TrimSpace(c.DefaultStyle))
	if c.DefaultStyle == "" {
		c.DefaultStyle = "apa"
	}
	c.DefaultSortOrder = strings.ToLower(strings.TrimSpace(c.DefaultSortOrder))
	if c.DefaultSortOrder == "" {
		c.DefaultSortOrder = "alphabetical"
	}
	return c
}

func (c CitationsConfig) Validate() error {
	if _, ok := knownStyles[c.DefaultStyle]; !ok {
		return fmt.Errorf("citations.default_style %q is not supported", c.DefaultStyle)
	}
	if _, ok := knownSortOrders[c.DefaultSortOrder]; !ok {
		return fmt.Errorf("citations.default_sort_order %q is not supported", c.DefaultSortOrder)
	}
	return nil
}

// RetrievalConfig contains source discovery and fetching settings
type RetrievalConfig struct {
	WebSearch WebSearchConfig   `mapstructure:"web_search"`
	Fetch     FetchConfig       `mapstructure:"fetch"`
	Policy    FetchPolicyConfig `mapstructure:"policy"`
}

// WebSearchConfig contains web search provider settings
type WebSearchConfig struct {
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FetchConfig contains page download settings
type FetchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RenderJS        bool          `mapstructure:"render_js"`
	RequestsPerHost float64       `mapstructure:"requests_per_host"`
	Burst           int           `mapstructure:"burst"`
	RobotsCacheTTL  time.Duration `mapstructure:"robots_cache_ttl"`
}

// Normalize applies fetch defaults.
func (f FetchConfig) Normalize() FetchConfig {
	if f.Timeout <= 0 {
		f.Timeout = 20 * time.Second
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = "researcher-bot/1.0"
	}
	if f.MaxBodyBytes <= 0 {
		f.MaxBodyBytes = 4 << 20
	}
	if f.RequestsPerHost <= 0 {
		f.RequestsPerHost = 1
	}
	if f.Burst <= 0 {
		f.Burst = 2
	}
	if f.RobotsCacheTTL <= 0 {
		f.RobotsCacheTTL = time.Hour
	}
	return f
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// FileConfig contains file storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogDir  string `mapstructure:"log_dir"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// ExportConfig controls report rendering to disk.
type ExportConfig struct {
	OutputDir string   `mapstructure:"output_dir"`
	Formats   []string `mapstructure:"formats"`
}

var knownExportFormats = map[string]struct{}{
	"markdown": {}, "json": {}, "html": {},
}

// Normalize dedupes and defaults the export format list.
func (e ExportConfig) Normalize() ExportConfig {
	if strings.TrimSpace(e.OutputDir) == "" {
		e.OutputDir = "./reports"
	}
	seen := make(map[string]struct{}, len(e.Formats))
	var formats []string
	for _, f := range e.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}
	e.Formats = formats
	return e
}

func (e ExportConfig) Validate() error {
	for _, f := range e.Formats {
		if _, ok := knownExportFormats[f]; !ok {
			return fmt.Errorf("export format %q is not supported", f)
		}
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("researcher_config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("citations.default_style", "apa")
	viper.SetDefault("citations.default_sort_order", "alphabetical")
	viper.SetDefault("retrieval.web_search.max_results", 8)
	viper.SetDefault("authority.base_credibility", 0.5)
	viper.SetDefault("authority.max_domain_bonus", 0.3)
	viper.SetDefault("authority.alerts.low_credibility", 0.3)
	viper.SetDefault("llm.extraction.schema", DefaultExtractionSchema)
	viper.SetDefault("llm.extraction.instructions", DefaultExtractionInstructions)
	viper.SetDefault("export.formats", []string{"markdown"})

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RESEARCHER")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (RESEARCHER_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Synthesis = config.Synthesis.Normalize()
	config.Citations = config.Citations.Normalize()
	config.Authority = config.Authority.Normalize()
	config.Retrieval.Fetch = config.Retrieval.Fetch.Normalize()
	config.Retrieval.Policy = config.Retrieval.Policy.Normalize()
	config.Export = config.Export.Normalize()

	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Synthesis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Citations.Validate(); err != nil {
		panic(err)
	}
	if err := config.Authority.Validate(); err != nil {
		panic(err)
	}
	if err := config.Retrieval.Policy.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Export.Validate(); err != nil {
		panic(err)
	}
	return &config
}
