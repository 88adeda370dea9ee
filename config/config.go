package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohammad-safakhou/researchchat/internal/budget"
)

// Config holds all configuration for the research chat service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address          string        `mapstructure:"address"`
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	RunLedgerEnabled bool          `mapstructure:"run_ledger_enabled"`
}

func (s ServerConfig) Normalize() ServerConfig {
	if strings.TrimSpace(s.Address) == "" {
		s.Address = ":10001"
	}
	if s.SessionTimeout <= 0 {
		s.SessionTimeout = 5 * time.Minute
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}
	return s
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, anthropic, google
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig picks the model alias serving each tier. Fast serves
// planning, relevance and reflection; Deep writes the report.
type LLMRoutingConfig struct {
	Fast string `mapstructure:"fast"`
	Deep string `mapstructure:"deep"`
}

// ResolvedModel is a routing alias resolved to its provider entry.
type ResolvedModel struct {
	Provider string
	Alias    string
	Settings LLMProvider
	Model    LLMModel
}

// ErrModelNotFound is returned when a routing alias matches no provider model.
var ErrModelNotFound = errors.New("model alias not configured")

// Resolve finds the provider that declares alias. Aliases may be qualified as
// "provider/alias" to disambiguate.
func (c LLMConfig) Resolve(alias string) (ResolvedModel, error) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return ResolvedModel{}, ErrModelNotFound
	}
	if name, model, ok := strings.Cut(alias, "/"); ok {
		if p, found := c.Providers[name]; found {
			if m, found := p.Models[model]; found {
				return ResolvedModel{Provider: name, Alias: model, Settings: p, Model: m}, nil
			}
		}
		return ResolvedModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, alias)
	}
	for name, p := range c.Providers {
		if m, ok := p.Models[alias]; ok {
			return ResolvedModel{Provider: name, Alias: alias, Settings: p, Model: m}, nil
		}
	}
	return ResolvedModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, alias)
}

var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

func (c LLMConfig) Normalize() LLMConfig {
	for name, p := range c.Providers {
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Type == "" {
			p.Type = strings.ToLower(name)
		}
		if p.APIKey == "" {
			if env, ok := providerKeyEnv[p.Type]; ok {
				p.APIKey = os.Getenv(env)
			}
		}
		if p.Timeout <= 0 {
			p.Timeout = 60 * time.Second
		}
		for alias, m := range p.Models {
			if m.APIName == "" {
				m.APIName = alias
			}
			p.Models[alias] = m
		}
		c.Providers[name] = p
	}
	if strings.TrimSpace(c.Routing.Deep) == "" {
		c.Routing.Deep = c.Routing.Fast
	}
	return c
}

func (c LLMConfig) Validate() error {
	for name, p := range c.Providers {
		switch p.Type {
		case "openai", "anthropic", "google":
		default:
			return fmt.Errorf("llm.providers.%s.type %q unsupported", name, p.Type)
		}
	}
	if strings.TrimSpace(c.Routing.Fast) == "" {
		return fmt.Errorf("llm.routing.fast is required")
	}
	if _, err := c.Resolve(c.Routing.Fast); err != nil {
		return fmt.Errorf("llm.routing.fast: %w", err)
	}
	if _, err := c.Resolve(c.Routing.Deep); err != nil {
		return fmt.Errorf("llm.routing.deep: %w", err)
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider string            `mapstructure:"provider"` // tavily, brave, serper
	APIKey   string            `mapstructure:"api_key"`
	BaseURL  string            `mapstructure:"base_url"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Cache    SearchCacheConfig `mapstructure:"cache"`
}

// SearchCacheConfig toggles the Redis-backed search cache
type SearchCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

var searchKeyEnv = map[string]string{
	"tavily": "TAVILY_API_KEY",
	"brave":  "BRAVE_API_KEY",
	"serper": "SERPER_API_KEY",
}

func (s SearchConfig) Normalize() SearchConfig {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = "tavily"
	}
	if s.APIKey == "" {
		if env, ok := searchKeyEnv[s.Provider]; ok {
			s.APIKey = os.Getenv(env)
		}
	}
	if s.Timeout <= 0 {
		s.Timeout = 20 * time.Second
	}
	if s.Cache.TTL <= 0 {
		s.Cache.TTL = time.Hour
	}
	return s
}

func (s SearchConfig) Validate() error {
	if _, ok := searchKeyEnv[s.Provider]; !ok {
		return fmt.Errorf("search.provider %q unsupported", s.Provider)
	}
	return nil
}

// ResearchConfig overrides the built-in loop budgets per response mode
type ResearchConfig struct {
	Concise  budget.Limits `mapstructure:"concise"`
	Research budget.Limits `mapstructure:"research"`
}

// Limits returns the effective limits for mode.
func (r ResearchConfig) Limits(mode budget.Mode) budget.Limits {
	override := r.Concise
	if mode == budget.ModeResearch {
		override = r.Research
	}
	if override.IsZero() {
		return budget.Defaults(mode)
	}
	return budget.Merge(budget.Defaults(mode), override)
}

func (r ResearchConfig) Validate() error {
	for _, mode := range []budget.Mode{budget.ModeConcise, budget.ModeResearch} {
		if err := r.Limits(mode).Validate(); err != nil {
			return fmt.Errorf("research.%s: %w", mode, err)
		}
	}
	return nil
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Normalize() TelemetryConfig {
	if strings.TrimSpace(t.ServiceName) == "" {
		t.ServiceName = "researchchat"
	}
	return t
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
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

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// LoadConfig reads config.json from path (or the default search locations),
// overlays RESEARCHCHAT_* environment variables and validates the result. A
// missing config file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server = cfg.Server.Normalize()
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Search = cfg.Search.Normalize()
	cfg.Telemetry = cfg.Telemetry.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	if c.Search.Cache.Enabled {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Server.RunLedgerEnabled {
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.session_timeout", "5m")
	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.api_key", "")
	v.SetDefault("llm.providers.openai.models.fast.api_name", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.models.deep.api_name", "gpt-4o")
	v.SetDefault("llm.routing.fast", "openai/fast")
	_ = v.BindEnv("llm.routing.deep")
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.timeout", "20s")
	v.SetDefault("search.cache.enabled", false)
	v.SetDefault("search.cache.ttl", "1h")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "researchchat")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.postgres.url", "")
}
