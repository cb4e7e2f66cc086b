// Package config provides configuration loading and structs for the niteru server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects and configures the vector store backend.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
	// IndexType selects the in-process nearest-neighbor index for the sqlite driver.
	IndexType string `yaml:"index_type"`
	// HNSW creates a pgvector HNSW index for the postgres driver.
	HNSW bool `yaml:"hnsw"`
}

// EmbeddingConfig holds audio embedding model settings.
type EmbeddingConfig struct {
	ModelPath   string        `yaml:"model_path"`
	Dimensions  int           `yaml:"dimensions"`
	SampleRate  int           `yaml:"sample_rate"`
	MaxDuration time.Duration `yaml:"max_duration"`
	CacheSize   int           `yaml:"cache_size"`
	// CacheDir enables the persistent embedding cache when set.
	CacheDir string `yaml:"cache_dir"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers       int           `yaml:"workers"`
	TempDir       string        `yaml:"temp_dir"`
	Resolver      string        `yaml:"resolver"`
	YTDLPPath     string        `yaml:"ytdlp_path"`
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	CommitTimeout time.Duration `yaml:"commit_timeout"`
}

// SearchConfig holds similarity query settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
	// Ambiguity is the policy when (title, artist) matches several records: "first" or "error".
	Ambiguity string `yaml:"ambiguity"`
}

// CatalogConfig holds Last.fm dataset and keyword index settings.
type CatalogConfig struct {
	LastFMBaseURL    string   `yaml:"lastfm_base_url"`
	LastFMAPIKey     string   `yaml:"lastfm_api_key"`
	Genres           []string `yaml:"genres"`
	PerGenre         int      `yaml:"per_genre"`
	KeywordIndexPath string   `yaml:"keyword_index_path"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.CacheDir != "" {
		cfg.Embedding.CacheDir = expandPath(cfg.Embedding.CacheDir, configDir)
	}
	cfg.Ingest.TempDir = expandPath(cfg.Ingest.TempDir, configDir)
	cfg.Catalog.KeywordIndexPath = expandPath(cfg.Catalog.KeywordIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a config built only from the environment and defaults.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyEnv overrides cfg with environment variables. DATABASE_URL switches the store to postgres.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		cfg.Storage.Driver = "postgres"
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		cfg.Catalog.LastFMAPIKey = v
	}
	if v := os.Getenv("LASTFM_BASE_URL"); v != "" {
		cfg.Catalog.LastFMBaseURL = v
	}
	if v := os.Getenv("NITERU_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", c.Storage.Driver)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	switch c.Search.Ambiguity {
	case AmbiguityFirst, AmbiguityError:
	default:
		return fmt.Errorf("unknown search.ambiguity: %s (supported: first, error)", c.Search.Ambiguity)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
