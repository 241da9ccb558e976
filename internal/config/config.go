package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete reposeek configuration.
// It can be loaded from .reposeek/config.yml with environment variable overrides.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Indexing  IndexingConfig  `yaml:"indexing" mapstructure:"indexing"`
	Updates   UpdatesConfig   `yaml:"updates" mapstructure:"updates"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Forge     ForgeConfig     `yaml:"forge" mapstructure:"forge"`
	Graph     GraphConfig     `yaml:"graph" mapstructure:"graph"`
}

// StorageConfig defines where repository clones, metadata and vector data live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"` // Override default ~/.reposeek
}

// IndexingConfig configures the full-ingestion pipeline.
type IndexingConfig struct {
	FileBatchSize      int      `yaml:"file_batch_size" mapstructure:"file_batch_size"`           // files per processing batch
	EmbeddingBatchSize int      `yaml:"embedding_batch_size" mapstructure:"embedding_batch_size"` // chunk contents per provider call
	IncludeExtensions  []string `yaml:"include_extensions" mapstructure:"include_extensions"`     // empty means use defaults
	ExcludePatterns    []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`         // glob patterns to skip
}

// UpdatesConfig configures the incremental-update coordinator.
type UpdatesConfig struct {
	ChangeFileThreshold int `yaml:"change_file_threshold" mapstructure:"change_file_threshold"` // max files per incremental update
	HistoryLimit        int `yaml:"history_limit" mapstructure:"history_limit"`                 // newest-first ring of history entries
}

// WatchConfig configures local-watch mode.
type WatchConfig struct {
	RenameWindowMs int `yaml:"rename_window_ms" mapstructure:"rename_window_ms"` // pending-unlink lifetime
	DebounceMs     int `yaml:"debounce_ms" mapstructure:"debounce_ms"`           // quiet period before dispatching events
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`     // "http" or "mock"
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`     // embedding service endpoint URL
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"` // embedding vector dimensions
}

// ForgeConfig configures the remote forge commit API client.
type ForgeConfig struct {
	APIBaseURL string `yaml:"api_base_url" mapstructure:"api_base_url"` // e.g. https://api.github.com
	Token      string `yaml:"token" mapstructure:"token"`               // optional bearer token
	TimeoutSec int    `yaml:"timeout_sec" mapstructure:"timeout_sec"`
}

// GraphConfig configures the optional structural graph.
type GraphConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DefaultExtensions is the extension set applied when a repository has no
// include_extensions configured.
var DefaultExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs",
	".c", ".cpp", ".cc", ".h", ".hpp", ".php", ".rb", ".java",
	".md", ".rst",
}

// DefaultExcludePatterns is always merged with per-repository exclude patterns.
var DefaultExcludePatterns = []string{
	"node_modules/**",
	"vendor/**",
	".git/**",
	"dist/**",
	"build/**",
	"target/**",
	"__pycache__/**",
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "", // Empty means use default ~/.reposeek
		},
		Indexing: IndexingConfig{
			FileBatchSize:      50,
			EmbeddingBatchSize: 100,
			IncludeExtensions:  []string{},
			ExcludePatterns:    []string{},
		},
		Updates: UpdatesConfig{
			ChangeFileThreshold: 500,
			HistoryLimit:        10,
		},
		Watch: WatchConfig{
			RenameWindowMs: 500,
			DebounceMs:     300,
		},
		Embedding: EmbeddingConfig{
			Provider:   "http",
			Endpoint:   "http://127.0.0.1:8121/embed",
			Dimensions: 384,
		},
		Forge: ForgeConfig{
			APIBaseURL: "https://api.github.com",
			TimeoutSec: 30,
		},
		Graph: GraphConfig{
			Enabled: true,
		},
	}
}

// ResolveDataDir returns the effective data directory, creating it if needed.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.Storage.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".reposeek")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// RenameWindow returns the pending-unlink lifetime as a duration.
func (c *Config) RenameWindow() time.Duration {
	return time.Duration(c.Watch.RenameWindowMs) * time.Millisecond
}

// Debounce returns the watch debounce interval as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// ForgeTimeout returns the forge client timeout as a duration.
func (c *Config) ForgeTimeout() time.Duration {
	return time.Duration(c.Forge.TimeoutSec) * time.Second
}
