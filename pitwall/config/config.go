package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/pitwall/pitwall"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Harness    HarnessConfig    `mapstructure:"harness"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Live       LiveConfig       `mapstructure:"live"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Rulebook   RulebookConfig   `mapstructure:"rulebook"`
	Search     SearchConfig     `mapstructure:"search"`
}

// ServerConfig stores HTTP listener settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Environment    string   `mapstructure:"environment"` // "production" switches logs to JSON
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
}

// LLMConfig stores chat model settings for the OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxNewTokens int     `mapstructure:"max_new_tokens"`
}

// HarnessConfig stores turn orchestrator settings.
type HarnessConfig struct {
	MaxTurns           int `mapstructure:"max_turns"`            // capability round trips per request
	ToolTimeoutSeconds int `mapstructure:"tool_timeout_seconds"` // per capability call
	ToolConcurrency    int `mapstructure:"tool_concurrency"`     // worker pool size for blocking handlers

	// Rate limiting of concurrent chat requests
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedTools     []string `mapstructure:"allowed_tools"` // empty means every registered capability

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// ToolTimeout returns the per-call timeout.
func (h HarnessConfig) ToolTimeout() time.Duration {
	return time.Duration(h.ToolTimeoutSeconds) * time.Second
}

// EnrichmentConfig stores enrichment cache settings.
type EnrichmentConfig struct {
	LoadTimeoutSeconds int `mapstructure:"load_timeout_seconds"`
	CompletionBufferH  int `mapstructure:"completion_buffer_hours"`
}

func (e EnrichmentConfig) LoadTimeout() time.Duration {
	return time.Duration(e.LoadTimeoutSeconds) * time.Second
}

func (e EnrichmentConfig) CompletionBuffer() time.Duration {
	return time.Duration(e.CompletionBufferH) * time.Hour
}

// SchedulerConfig stores background refill settings.
type SchedulerConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	StartupDelaySeconds    int  `mapstructure:"startup_delay_seconds"`
	IntervalSeconds        int  `mapstructure:"interval_seconds"`
	InterRoundDelaySeconds int  `mapstructure:"inter_round_delay_seconds"`
	RoundTimeoutSeconds    int  `mapstructure:"round_timeout_seconds"`
}

func (s SchedulerConfig) StartupDelay() time.Duration {
	return time.Duration(s.StartupDelaySeconds) * time.Second
}

func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

func (s SchedulerConfig) InterRoundDelay() time.Duration {
	return time.Duration(s.InterRoundDelaySeconds) * time.Second
}

func (s SchedulerConfig) RoundTimeout() time.Duration {
	return time.Duration(s.RoundTimeoutSeconds) * time.Second
}

// LiveConfig stores live gateway settings.
type LiveConfig struct {
	PollIntervalSeconds   float64 `mapstructure:"poll_interval_seconds"`
	ReceiveTimeoutSeconds float64 `mapstructure:"receive_timeout_seconds"`
	OpenF1BaseURL         string  `mapstructure:"openf1_base_url"`
}

func (l LiveConfig) PollInterval() time.Duration {
	return seconds(l.PollIntervalSeconds)
}

func (l LiveConfig) ReceiveTimeout() time.Duration {
	return seconds(l.ReceiveTimeoutSeconds)
}

// UpstreamConfig stores settings shared by the upstream HTTP clients.
type UpstreamConfig struct {
	ErgastBaseURL      string        `mapstructure:"ergast_base_url"`
	HTTPTimeoutSeconds int           `mapstructure:"http_timeout_seconds"`
	CacheCapacity      int           `mapstructure:"cache_capacity"`
	CacheTTLSeconds    int           `mapstructure:"cache_ttl_seconds"`
	RateLimitCapacity  int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefill    time.Duration `mapstructure:"rate_limit_refill_rate"`
}

func (u UpstreamConfig) HTTPTimeout() time.Duration {
	return time.Duration(u.HTTPTimeoutSeconds) * time.Second
}

// RulebookConfig stores regulation search settings.
type RulebookConfig struct {
	SourceDir string `mapstructure:"source_dir"`
	TopK      int    `mapstructure:"top_k"`
	Watch     bool   `mapstructure:"watch"`
}

// SearchConfig stores web search credentials.
type SearchConfig struct {
	TavilyAPIKey  string `mapstructure:"tavily_api_key"`
	TavilyBaseURL string `mapstructure:"tavily_base_url"`
}

// legacyEnv maps flat environment names onto nested keys.
var legacyEnv = map[string]string{
	"harness.tool_timeout_seconds":        "TOOL_TIMEOUT_SECONDS",
	"harness.max_turns":                   "MAX_AGENT_TURNS",
	"enrichment.load_timeout_seconds":     "FASTF1_TIMEOUT_SECONDS",
	"upstream.http_timeout_seconds":       "OPENF1_HTTP_TIMEOUT_SECONDS",
	"live.poll_interval_seconds":          "WS_POLL_INTERVAL",
	"live.receive_timeout_seconds":        "WS_RECEIVE_TIMEOUT",
	"scheduler.startup_delay_seconds":     "PREFETCH_STARTUP_DELAY",
	"scheduler.interval_seconds":          "PREFETCH_INTERVAL",
	"scheduler.inter_round_delay_seconds": "PREFETCH_INTER_RACE_DELAY",
	"scheduler.round_timeout_seconds":     "PREFETCH_RACE_TIMEOUT_SECONDS",
	"server.environment":                  "ENVIRONMENT",
	"server.allowed_origins":              "ALLOWED_ORIGINS",
	"llm.model":                           "LLM_MODEL_NAME",
	"llm.temperature":                     "LLM_TEMPERATURE",
	"llm.api_key":                         "LLM_API_KEY",
	"rulebook.top_k":                      "RULEBOOK_TOP_K",
	"search.tavily_api_key":               "TAVILY_API_KEY",
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// harness.max_turns becomes HARNESS_MAX_TURNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)

	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", internal.DefaultListenAddr)
	v.SetDefault("server.allowed_origins", internal.DefaultAllowOrigins)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.type", internal.DefaultDatabaseType)

	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_new_tokens", 2048)

	v.SetDefault("harness.max_turns", 5)
	v.SetDefault("harness.tool_timeout_seconds", 30)
	v.SetDefault("harness.tool_concurrency", 4)
	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_capacity", 20)
	v.SetDefault("harness.rate_limit_refill_rate", "3s")
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.allowed_tools", []string{})
	v.SetDefault("harness.enable_tracing", true)

	v.SetDefault("enrichment.load_timeout_seconds", 60)
	v.SetDefault("enrichment.completion_buffer_hours", 3)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.startup_delay_seconds", 30)
	v.SetDefault("scheduler.interval_seconds", 1800)
	v.SetDefault("scheduler.inter_round_delay_seconds", 5)
	v.SetDefault("scheduler.round_timeout_seconds", 60)

	v.SetDefault("live.poll_interval_seconds", 8)
	v.SetDefault("live.receive_timeout_seconds", 0.1)
	v.SetDefault("live.openf1_base_url", "https://api.openf1.org/v1")

	v.SetDefault("upstream.ergast_base_url", "https://api.jolpi.ca/ergast/f1")
	v.SetDefault("upstream.http_timeout_seconds", 10)
	v.SetDefault("upstream.cache_capacity", 512)
	v.SetDefault("upstream.cache_ttl_seconds", 600)
	v.SetDefault("upstream.rate_limit_capacity", 4)
	v.SetDefault("upstream.rate_limit_refill_rate", "250ms")

	v.SetDefault("rulebook.source_dir", internal.DefaultRulebookDir)
	v.SetDefault("rulebook.top_k", 6)
	v.SetDefault("rulebook.watch", false)

	v.SetDefault("search.tavily_base_url", "https://api.tavily.com")
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
