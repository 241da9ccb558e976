package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (REPOSEEK_*)
// 2. Config file (.reposeek/config.yml or .reposeek/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".reposeek")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// Enable environment variable overrides
	v.SetEnvPrefix("REPOSEEK")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., REPOSEEK_EMBEDDING_ENDPOINT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("storage.data_dir")
	v.BindEnv("indexing.file_batch_size")
	v.BindEnv("indexing.embedding_batch_size")
	v.BindEnv("updates.change_file_threshold")
	v.BindEnv("updates.history_limit")
	v.BindEnv("watch.rename_window_ms")
	v.BindEnv("watch.debounce_ms")
	v.BindEnv("embedding.provider")
	v.BindEnv("embedding.endpoint")
	v.BindEnv("embedding.dimensions")
	v.BindEnv("forge.api_base_url")
	v.BindEnv("forge.token")
	v.BindEnv("forge.timeout_sec")
	v.BindEnv("graph.enabled")

	setDefaults(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("storage.data_dir", defaults.Storage.DataDir)

	v.SetDefault("indexing.file_batch_size", defaults.Indexing.FileBatchSize)
	v.SetDefault("indexing.embedding_batch_size", defaults.Indexing.EmbeddingBatchSize)
	v.SetDefault("indexing.include_extensions", defaults.Indexing.IncludeExtensions)
	v.SetDefault("indexing.exclude_patterns", defaults.Indexing.ExcludePatterns)

	v.SetDefault("updates.change_file_threshold", defaults.Updates.ChangeFileThreshold)
	v.SetDefault("updates.history_limit", defaults.Updates.HistoryLimit)

	v.SetDefault("watch.rename_window_ms", defaults.Watch.RenameWindowMs)
	v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	v.SetDefault("embedding.provider", defaults.Embedding.Provider)
	v.SetDefault("embedding.endpoint", defaults.Embedding.Endpoint)
	v.SetDefault("embedding.dimensions", defaults.Embedding.Dimensions)

	v.SetDefault("forge.api_base_url", defaults.Forge.APIBaseURL)
	v.SetDefault("forge.token", defaults.Forge.Token)
	v.SetDefault("forge.timeout_sec", defaults.Forge.TimeoutSec)

	v.SetDefault("graph.enabled", defaults.Graph.Enabled)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
