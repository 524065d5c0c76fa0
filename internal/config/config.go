package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the designdex API configuration.
type Config struct {
	HTTP           HTTPConfig           `yaml:"http"`
	Redis          RedisConfig          `yaml:"redis"`
	Postgres       PostgresConfig       `yaml:"postgres"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	LLM            LLMConfig            `yaml:"llm"`
	ExpansionCache ExpansionCacheConfig `yaml:"expansion_cache"`
	Search         SearchConfig         `yaml:"search"`
	Popularity     PopularityConfig     `yaml:"popularity"`
	Workers        WorkersConfig        `yaml:"workers"`
	Auth           AuthConfig           `yaml:"auth"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. An empty list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxImageBytes   int64 `yaml:"max_image_bytes"`
}

// RedisConfig holds vector index and key-value connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// PostgresConfig holds concept and impression store settings.
type PostgresConfig struct {
	DSN              string `yaml:"dsn"`
	MaxConns         int32  `yaml:"max_conns"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
	Migrate          bool   `yaml:"migrate"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	MaxBatchSize     int    `yaml:"max_batch_size"`
	CacheTTLHours    int    `yaml:"cache_ttl_hours"` // query embedding cache
}

// LLMConfig holds the expansion provider settings.
type LLMConfig struct {
	Driver      string  `yaml:"driver"` // openai, langchain (default: openai)
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// ExpansionCacheConfig selects the durable cache tier.
type ExpansionCacheConfig struct {
	Driver       string `yaml:"driver"` // redis, badger (default: redis)
	BadgerPath   string `yaml:"badger_path"`
	WriteTimeout int    `yaml:"write_timeout_sec"`
}

// SearchConfig holds pipeline budgets.
type SearchConfig struct {
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	WidePool          int `yaml:"wide_pool"`
	PerCategoryPool   int `yaml:"per_category_pool"`
	NarrowPool        int `yaml:"narrow_pool"`
	BalancePerCat     int `yaml:"balance_per_category"`
}

// PopularityConfig controls the popularity window.
type PopularityConfig struct {
	TopN         int `yaml:"top_n"`
	LookbackDays int `yaml:"lookback_days"`
}

// WorkersConfig sizes the background task pool.
type WorkersConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// MaxLookbackDays caps the popularity window.
const MaxLookbackDays = 90

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxImageBytes <= 0 {
		c.HTTP.MaxImageBytes = 8 << 20
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Redis.HNSWM <= 0 {
		c.Redis.HNSWM = 16
	}
	if c.Redis.HNSWEFConstruct <= 0 {
		c.Redis.HNSWEFConstruct = 200
	}
	if c.Postgres.ReadinessTimeout <= 0 {
		c.Postgres.ReadinessTimeout = 10
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 64
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24
	}
	if c.LLM.Driver == "" {
		c.LLM.Driver = "openai"
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 10
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 400
	}
	if c.ExpansionCache.Driver == "" {
		c.ExpansionCache.Driver = "redis"
	}
	if c.ExpansionCache.WriteTimeout <= 0 {
		c.ExpansionCache.WriteTimeout = 5
	}
	if c.Search.RequestTimeoutSec <= 0 {
		c.Search.RequestTimeoutSec = 25
	}
	if c.Search.WidePool <= 0 {
		c.Search.WidePool = 400
	}
	if c.Search.PerCategoryPool <= 0 {
		c.Search.PerCategoryPool = 120
	}
	if c.Search.NarrowPool <= 0 {
		c.Search.NarrowPool = 60
	}
	if c.Search.BalancePerCat <= 0 {
		c.Search.BalancePerCat = 10
	}
	if c.Popularity.TopN <= 0 {
		c.Popularity.TopN = 20
	}
	if c.Popularity.LookbackDays <= 0 {
		c.Popularity.LookbackDays = 30
	}
	if c.Workers.PoolSize <= 0 {
		c.Workers.PoolSize = 64
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	switch c.LLM.Driver {
	case "openai", "langchain":
	default:
		return fmt.Errorf("llm.driver must be \"openai\" or \"langchain\", got %q", c.LLM.Driver)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.ExpansionCache.Driver {
	case "redis":
	case "badger":
		if c.ExpansionCache.BadgerPath == "" {
			return fmt.Errorf("expansion_cache.badger_path is required for the badger driver")
		}
	default:
		return fmt.Errorf("expansion_cache.driver must be \"redis\" or \"badger\", got %q", c.ExpansionCache.Driver)
	}
	if c.Popularity.LookbackDays > MaxLookbackDays {
		return fmt.Errorf("popularity.lookback_days must be at most %d, got %d", MaxLookbackDays, c.Popularity.LookbackDays)
	}
	if c.Search.NarrowPool > c.Search.WidePool {
		return fmt.Errorf("search.narrow_pool (%d) must not exceed search.wide_pool (%d)",
			c.Search.NarrowPool, c.Search.WidePool)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := env + ".yaml"

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
