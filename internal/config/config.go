// Package config loads research pipeline settings from YAML with
// environment overrides. Durations are stored as strings ("15s", "2m") and
// parsed by the Get* accessors, which fall back to defaults on bad input.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all research configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Retry    RetryConfig    `yaml:"retry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Search   SearchConfig   `yaml:"search"`
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrowserConfig configures Chrome and the worker pool.
type BrowserConfig struct {
	Bin            string   `yaml:"bin"`
	ControlURL     string   `yaml:"control_url"`
	Headless       bool     `yaml:"headless"`
	Stealth        bool     `yaml:"stealth"`
	PoolSize       int      `yaml:"pool_size"`
	MaxConcurrency int      `yaml:"max_concurrency"`
	BlockResources []string `yaml:"block_resources"`
	UserAgent      string   `yaml:"user_agent"`

	NavigationTimeout string `yaml:"navigation_timeout"`
	SelectorGrace     string `yaml:"selector_grace"`
	// ReplaceTimeout bounds launching a replacement for a broken worker.
	ReplaceTimeout string `yaml:"replace_timeout"`
}

// FetchConfig configures single-URL fetching.
type FetchConfig struct {
	// Budget bounds one fetch including all retries.
	Budget           string `yaml:"budget"`
	ProbeContentType bool   `yaml:"probe_content_type"`
	ProbeTimeout     string `yaml:"probe_timeout"`
	MaxTextChars     int    `yaml:"max_text_chars"`
}

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"` // empty = uncapped
}

// PipelineConfig configures the research stage machine.
type PipelineConfig struct {
	MaxWebPages      int    `yaml:"max_web_pages"`
	MaxDocuments     int    `yaml:"max_documents"`
	BatchConcurrency int    `yaml:"batch_concurrency"`
	InterItemDelay   string `yaml:"inter_item_delay"`
	ExtractDeadline  string `yaml:"extract_deadline"`
	Timeout          string `yaml:"timeout"`

	// RelevancePrefixChars is how much page text the relevance check sees
	// when the search hit carried no snippet.
	RelevancePrefixChars int `yaml:"relevance_prefix_chars"`
	ProgressBuffer       int `yaml:"progress_buffer"`
	// MaxSnippets bounds the search snippets fed to the fallback synthesis.
	MaxSnippets int `yaml:"max_snippets"`
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	Provider   string  `yaml:"provider"` // duckduckgo
	Endpoint   string  `yaml:"endpoint"`
	MaxResults int     `yaml:"max_results"`
	QPS        float64 `yaml:"qps"`
	Timeout    string  `yaml:"timeout"`
	UserAgent  string  `yaml:"user_agent"`
}

// LLMConfig configures the language model client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// MemoryConfig configures the optional memory store.
type MemoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DatabasePath   string `yaml:"database_path"`
	EmbeddingModel string `yaml:"embedding_model"` // empty disables vector search
	SeedLimit      int    `yaml:"seed_limit"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			Stealth:           true,
			PoolSize:          4,
			MaxConcurrency:    3,
			BlockResources:    []string{"images", "fonts", "media"},
			NavigationTimeout: "10s",
			SelectorGrace:     "2s",
			ReplaceTimeout:    "10s",
		},
		Fetch: FetchConfig{
			Budget:           "25s",
			ProbeContentType: true,
			ProbeTimeout:     "3s",
			MaxTextChars:     5000,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   "500ms",
		},
		Pipeline: PipelineConfig{
			MaxWebPages:          5,
			MaxDocuments:         2,
			BatchConcurrency:     3,
			InterItemDelay:       "250ms",
			ExtractDeadline:      "45s",
			Timeout:              "2m",
			RelevancePrefixChars: 1000,
			ProgressBuffer:       64,
			MaxSnippets:          10,
		},
		Search: SearchConfig{
			Provider:   "duckduckgo",
			Endpoint:   "https://html.duckduckgo.com/html/",
			MaxResults: 20,
			QPS:        1,
			Timeout:    "15s",
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "60s",
		},
		Memory: MemoryConfig{
			Enabled:        true,
			DatabasePath:   ".research/memory.db",
			EmbeddingModel: "gemini-embedding-001",
			SeedLimit:      3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	// RESEARCH_GEMINI_API_KEY takes precedence over the generic variable.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("RESEARCH_GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("RESEARCH_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if bin := os.Getenv("RESEARCH_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if n, ok := envInt("RESEARCH_POOL_SIZE"); ok {
		c.Browser.PoolSize = n
	}
	if n, ok := envInt("RESEARCH_MAX_CONCURRENCY"); ok {
		c.Browser.MaxConcurrency = n
	}
	if path := os.Getenv("RESEARCH_MEMORY_PATH"); path != "" {
		c.Memory.DatabasePath = path
	}
	if level := os.Getenv("RESEARCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// GetNavigationTimeout bounds a single page navigation.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 10*time.Second)
}

// GetSelectorGrace bounds the optional readiness wait.
func (c *Config) GetSelectorGrace() time.Duration {
	return parseDuration(c.Browser.SelectorGrace, 2*time.Second)
}

// GetFetchBudget bounds one fetch including retries.
func (c *Config) GetFetchBudget() time.Duration {
	return parseDuration(c.Fetch.Budget, 25*time.Second)
}

// GetProbeTimeout bounds the content-type HEAD probe.
func (c *Config) GetProbeTimeout() time.Duration {
	return parseDuration(c.Fetch.ProbeTimeout, 3*time.Second)
}

// GetRetryBaseDelay returns the delay after the first failure.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.Retry.BaseDelay, 500*time.Millisecond)
}

// GetRetryMaxDelay returns the backoff cap, zero when uncapped.
func (c *Config) GetRetryMaxDelay() time.Duration {
	return parseDuration(c.Retry.MaxDelay, 0)
}

// GetInterItemDelay returns the batch stagger step.
func (c *Config) GetInterItemDelay() time.Duration {
	return parseDuration(c.Pipeline.InterItemDelay, 250*time.Millisecond)
}

// GetExtractDeadline bounds the whole Extracting stage.
func (c *Config) GetExtractDeadline() time.Duration {
	return parseDuration(c.Pipeline.ExtractDeadline, 45*time.Second)
}

// GetPipelineTimeout bounds one research run.
func (c *Config) GetPipelineTimeout() time.Duration {
	return parseDuration(c.Pipeline.Timeout, 2*time.Minute)
}

// GetReplaceTimeout bounds creating a replacement worker.
func (c *Config) GetReplaceTimeout() time.Duration {
	return parseDuration(c.Browser.ReplaceTimeout, 10*time.Second)
}

// GetSearchTimeout bounds one search request.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 15*time.Second)
}

// GetLLMTimeout bounds one language model call.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// Validate checks ranges and that timeouts nest: the shortest timeout in a
// chain wins, so an inner timeout at or above its outer one is dead config.
func (c *Config) Validate() error {
	var errs []error

	if c.Browser.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("browser.pool_size must be >= 1, got %d", c.Browser.PoolSize))
	}
	if c.Browser.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("browser.max_concurrency must be >= 1, got %d", c.Browser.MaxConcurrency))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Pipeline.MaxWebPages < 0 || c.Pipeline.MaxDocuments < 0 || c.Pipeline.MaxSnippets < 0 {
		errs = append(errs, errors.New("pipeline caps must be >= 0"))
	}
	if c.Pipeline.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_concurrency must be >= 1, got %d", c.Pipeline.BatchConcurrency))
	}
	if c.Fetch.MaxTextChars < 0 {
		errs = append(errs, errors.New("fetch.max_text_chars must be >= 0"))
	}

	for field, raw := range map[string]string{
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.selector_grace":     c.Browser.SelectorGrace,
		"browser.replace_timeout":    c.Browser.ReplaceTimeout,
		"fetch.budget":               c.Fetch.Budget,
		"fetch.probe_timeout":        c.Fetch.ProbeTimeout,
		"retry.base_delay":           c.Retry.BaseDelay,
		"retry.max_delay":            c.Retry.MaxDelay,
		"pipeline.inter_item_delay":  c.Pipeline.InterItemDelay,
		"pipeline.extract_deadline":  c.Pipeline.ExtractDeadline,
		"pipeline.timeout":           c.Pipeline.Timeout,
		"search.timeout":             c.Search.Timeout,
		"llm.timeout":                c.LLM.Timeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	nav := c.GetNavigationTimeout()
	budget := c.GetFetchBudget()
	deadline := c.GetExtractDeadline()
	total := c.GetPipelineTimeout()
	if nav >= budget {
		errs = append(errs, fmt.Errorf("navigation timeout %v must be shorter than fetch budget %v", nav, budget))
	}
	if budget >= deadline {
		errs = append(errs, fmt.Errorf("fetch budget %v must be shorter than extract deadline %v", budget, deadline))
	}
	if deadline >= total {
		errs = append(errs, fmt.Errorf("extract deadline %v must be shorter than pipeline timeout %v", deadline, total))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	return errors.Join(errs...)
}
