// Package config holds calm's single canonical configuration object:
// network endpoints, storage paths, timeouts, embedding model identifiers,
// clustering parameters, and GHAP check-in cadence. Fields are yaml-tagged
// for file-based configuration and overridable via CALM_-prefixed
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"calm/internal/logging"
)

// Config holds all calm configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Network    NetworkConfig    `yaml:"network"`
	Paths      PathsConfig      `yaml:"paths"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Clustering ClusteringConfig `yaml:"clustering"`
	GHAP       GHAPConfig       `yaml:"ghap"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig mirrors the shape the logging package reads independently
// from <storage_root>/config.json, kept as a separate type (rather than an
// import of internal/logging) to avoid a circular import: logging must not
// depend on config, since config depends on logging for its own boot logs.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// NetworkConfig holds HTTP and vector-store endpoint settings.
type NetworkConfig struct {
	HTTPHost       string `yaml:"http_host"`
	HTTPPort       int    `yaml:"http_port"`
	VectorStoreURL string `yaml:"vector_store_url"`
}

// PathsConfig holds every on-disk location calm reads or writes.
type PathsConfig struct {
	StorageRoot string `yaml:"storage_root"`
	PIDFile     string `yaml:"pid_file"`
	LogFile     string `yaml:"log_file"`
	JournalDir  string `yaml:"journal_dir"`
}

// TimeoutsConfig holds every configurable timeout, as duration strings
// (e.g. "30s") so the YAML file stays human-editable rather than storing
// raw nanosecond ints.
type TimeoutsConfig struct {
	Verification string `yaml:"verification"`
	HTTPCall     string `yaml:"http_call"`
	VectorStore  string `yaml:"vector_store"`
}

// EmbeddingConfig configures the two embedding roles: fast (384-d, code)
// and quality (768-d, semantic).
type EmbeddingConfig struct {
	FastProvider   string `yaml:"fast_provider"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	QualityProvider string `yaml:"quality_provider"`
	GenAIAPIKey     string `yaml:"genai_api_key"`
	GenAIModel      string `yaml:"genai_model"`
	TaskType        string `yaml:"task_type"`
}

// ClusteringConfig configures the HDBSCAN-style clusterer and value
// validator.
type ClusteringConfig struct {
	MinClusterSize int     `yaml:"min_cluster_size"`
	MinSamples     int     `yaml:"min_samples"`
	TauAccept      float64 `yaml:"tau_accept"`
}

// GHAPConfig configures the observation state machine's tool-count
// check-in cadence.
type GHAPConfig struct {
	CheckInFrequency int `yaml:"check_in_frequency"`
}

// DefaultConfig returns calm's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "calm",
		Version: "0.1.0",

		Network: NetworkConfig{
			HTTPHost:       "127.0.0.1",
			HTTPPort:       8420,
			VectorStoreURL: "http://localhost:6334",
		},

		Paths: PathsConfig{
			StorageRoot: "~/.calm",
			PIDFile:     "~/.calm/calm.pid",
			LogFile:     "~/.calm/calm.log",
			JournalDir:  "~/.calm/journal",
		},

		Timeouts: TimeoutsConfig{
			Verification: "10s",
			HTTPCall:     "30s",
			VectorStore:  "15s",
		},

		Embedding: EmbeddingConfig{
			FastProvider:    "ollama",
			OllamaEndpoint:  "http://localhost:11434",
			OllamaModel:     "nomic-embed-code",
			QualityProvider: "genai",
			GenAIModel:      "gemini-embedding-001",
			TaskType:        "SEMANTIC_SIMILARITY",
		},

		Clustering: ClusteringConfig{
			MinClusterSize: 5,
			MinSamples:     3,
			TauAccept:      0.55,
		},

		GHAP: GHAPConfig{
			CheckInFrequency: 5,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults if
// the file does not exist, then applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			cfg.expandPaths()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	logging.Boot("config loaded: storage_root=%s vector_store_url=%s", cfg.Paths.StorageRoot, cfg.Network.VectorStoreURL)
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// WriteLoggingConfig writes the logging section as <storage_root>/config.json,
// the file internal/logging.Initialize reads independently at startup. Must
// run before logging.Initialize is called, since logging has no dependency
// on this package and cannot read the YAML form directly.
func (c *Config) WriteLoggingConfig() error {
	type configFile struct {
		Logging LoggingConfig `json:"logging"`
	}
	path := filepath.Join(c.Paths.StorageRoot, "config.json")
	if err := os.MkdirAll(c.Paths.StorageRoot, 0755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	data, err := json.MarshalIndent(configFile{Logging: c.Logging}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal logging config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write logging config: %w", err)
	}
	return nil
}

// expandPaths resolves a leading "~" in every path field to the user's
// home directory, so later byte-for-byte round-trip comparisons in
// ExportShell/tests operate on absolute paths.
func (c *Config) expandPaths() {
	c.Paths.StorageRoot = expandHome(c.Paths.StorageRoot)
	c.Paths.PIDFile = expandHome(c.Paths.PIDFile)
	c.Paths.LogFile = expandHome(c.Paths.LogFile)
	c.Paths.JournalDir = expandHome(c.Paths.JournalDir)
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) > 1 && p[1] == '/' {
		return filepath.Join(home, p[2:])
	}
	return p
}

// VerificationTimeout returns the verification timeout as a duration,
// defaulting to 10s on a malformed value.
func (c *Config) VerificationTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.Verification, 10*time.Second)
}

// HTTPCallTimeout returns the HTTP-call timeout as a duration.
func (c *Config) HTTPCallTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.HTTPCall, 30*time.Second)
}

// VectorStoreTimeout returns the vector-store timeout as a duration.
func (c *Config) VectorStoreTimeout() time.Duration {
	return parseDurationOr(c.Timeouts.VectorStore, 15*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnvOverrides applies CALM_-prefixed environment variable overrides,
// one explicit check per variable rather than reflection-based field
// walking.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CALM_HTTP_HOST"); v != "" {
		c.Network.HTTPHost = v
	}
	if v := os.Getenv("CALM_VECTOR_STORE_URL"); v != "" {
		c.Network.VectorStoreURL = v
	}
	if v := os.Getenv("CALM_STORAGE_ROOT"); v != "" {
		c.Paths.StorageRoot = v
	}
	if v := os.Getenv("CALM_PID_FILE"); v != "" {
		c.Paths.PIDFile = v
	}
	if v := os.Getenv("CALM_LOG_FILE"); v != "" {
		c.Paths.LogFile = v
	}
	if v := os.Getenv("CALM_JOURNAL_DIR"); v != "" {
		c.Paths.JournalDir = v
	}
	if v := os.Getenv("CALM_OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("CALM_OLLAMA_MODEL"); v != "" {
		c.Embedding.OllamaModel = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("CALM_GENAI_MODEL"); v != "" {
		c.Embedding.GenAIModel = v
	}
	if v := os.Getenv("CALM_CHECK_IN_FREQUENCY"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.GHAP.CheckInFrequency = n
		}
	}
	if v := os.Getenv("CALM_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("non-positive value: %s", s)
	}
	return n, nil
}
