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

// Config holds the quarry API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Cache     CacheConfig     `yaml:"cache"`
	Answer    AnswerConfig    `yaml:"answer"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	// CandidateCount is how many candidates each strategy contributes per
	// scope before fusion. Must be >= top_k to leave room for RRF to reorder.
	CandidateCount int `yaml:"candidate_count"`
}

// RerankConfig holds cross-encoder settings.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	// ModelDir is where downloaded ONNX models are stored.
	ModelDir string `yaml:"model_dir"`
	// MaxCandidates caps the shortlist fed to the cross-encoder; this is the
	// cost-control lever since rerank cost is linear in candidates.
	MaxCandidates int `yaml:"max_candidates"`
	CacheTTLSec   int `yaml:"cache_ttl_sec"`
}

// ExpansionConfig holds query expansion settings.
type ExpansionConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DictPath      string `yaml:"dict_path"`
	MaxExpansions int    `yaml:"max_expansions"`
	LLM           bool   `yaml:"llm"`
	LLMModel      string `yaml:"llm_model"`
	LLMMaxTerms   int    `yaml:"llm_max_terms"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	BaseTTLSec int  `yaml:"base_ttl_sec"`
	MaxTTLSec  int  `yaml:"max_ttl_sec"`
}

// AnswerConfig holds QA pipeline settings.
type AnswerConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// AuthConfig holds API authentication settings. Keys map token -> caller
// identity; the identity feeds the result cache key for tenant isolation.
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// StorageConfig holds key namespace settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
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
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 5
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 20
	}
	if c.Search.CandidateCount <= 0 {
		c.Search.CandidateCount = 20
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = "BAAI/bge-reranker-base"
	}
	if c.Rerank.ModelDir == "" {
		c.Rerank.ModelDir = "models"
	}
	if c.Rerank.MaxCandidates <= 0 {
		c.Rerank.MaxCandidates = 10
	}
	if c.Rerank.CacheTTLSec <= 0 {
		c.Rerank.CacheTTLSec = 7200
	}
	if c.Expansion.MaxExpansions <= 0 {
		c.Expansion.MaxExpansions = 3
	}
	if c.Expansion.LLMModel == "" {
		c.Expansion.LLMModel = "gpt-4o-mini"
	}
	if c.Expansion.LLMMaxTerms <= 0 {
		c.Expansion.LLMMaxTerms = 5
	}
	if c.Cache.BaseTTLSec <= 0 {
		c.Cache.BaseTTLSec = 3600
	}
	if c.Cache.MaxTTLSec <= 0 {
		c.Cache.MaxTTLSec = 7200
	}
	if c.Answer.Model == "" {
		c.Answer.Model = "gpt-4o-mini"
	}
	if c.Answer.MaxTokens <= 0 {
		c.Answer.MaxTokens = 1024
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "quarry:"
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
	if c.Search.CandidateCount < c.Search.MaxTopK {
		return fmt.Errorf(
			"search.candidate_count (%d) must be >= search.max_top_k (%d)",
			c.Search.CandidateCount, c.Search.MaxTopK,
		)
	}
	if c.Cache.MaxTTLSec < c.Cache.BaseTTLSec {
		return fmt.Errorf(
			"cache.max_ttl_sec (%d) must be >= cache.base_ttl_sec (%d)",
			c.Cache.MaxTTLSec, c.Cache.BaseTTLSec,
		)
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
