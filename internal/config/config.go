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

// Config holds the finsight API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Models    ModelsConfig    `yaml:"models"`
	Edgar     EdgarConfig     `yaml:"edgar"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ModelsConfig holds the model provider settings.
type ModelsConfig struct {
	APIKey    string          `yaml:"api_key"`
	BaseURL   string          `yaml:"base_url"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LLMConfig holds extraction/generation model settings.
type LLMConfig struct {
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EdgarConfig holds the EDGAR document provider settings. The SEC requires a
// descriptive User-Agent with contact information on every request.
type EdgarConfig struct {
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// IngestionConfig holds watch list and pipeline concurrency settings.
type IngestionConfig struct {
	Tickers         []string `yaml:"tickers"`
	PollIntervalSec int      `yaml:"poll_interval_sec"` // 0 disables the periodic poll
	ExtractWorkers  int      `yaml:"extract_workers"`
	IndexWorkers    int      `yaml:"index_workers"`
}

// RetrievalConfig holds hybrid retrieval tuning.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	TopN           int     `yaml:"top_n"`
	RelevanceFloor float64 `yaml:"relevance_floor"`
	HNSWM          int     `yaml:"hnsw_m"`
	HNSWEFConstr   int     `yaml:"hnsw_ef_construction"`
	// TraceFusion enables per-hit fusion debug logging on the query path.
	TraceFusion bool `yaml:"trace_fusion"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		// Synthesis holds the connection through a model call.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Models.Embedding.Model == "" {
		c.Models.Embedding.Model = "text-embedding-3-small"
	}
	if c.Models.Embedding.Dimensions <= 0 {
		c.Models.Embedding.Dimensions = 1536
	}
	if c.Models.LLM.Model == "" {
		c.Models.LLM.Model = "gpt-4o-mini"
	}
	if c.Edgar.RequestsPerSecond <= 0 {
		c.Edgar.RequestsPerSecond = 8
	}
	if c.Ingestion.ExtractWorkers <= 0 {
		c.Ingestion.ExtractWorkers = 4
	}
	if c.Ingestion.IndexWorkers <= 0 {
		c.Ingestion.IndexWorkers = 2
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 20
	}
	if c.Retrieval.TopN <= 0 {
		c.Retrieval.TopN = 8
	}
	if c.Retrieval.RelevanceFloor <= 0 {
		c.Retrieval.RelevanceFloor = 0.016
	}
	if c.Retrieval.HNSWM <= 0 {
		c.Retrieval.HNSWM = 16
	}
	if c.Retrieval.HNSWEFConstr <= 0 {
		c.Retrieval.HNSWEFConstr = 200
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "finsight:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Edgar.UserAgent == "" {
		return fmt.Errorf("edgar.user_agent is required (SEC fair-access policy)")
	}
	if c.Retrieval.TopN > c.Retrieval.TopK {
		return fmt.Errorf("retrieval.top_n (%d) must not exceed retrieval.top_k (%d)",
			c.Retrieval.TopN, c.Retrieval.TopK)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
