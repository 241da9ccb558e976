package config

import (
	"fmt"
	"strings"
)

// Validate checks a configuration for values the pipelines cannot work with.
func Validate(cfg *Config) error {
	if cfg.Indexing.FileBatchSize <= 0 {
		return fmt.Errorf("indexing.file_batch_size must be positive, got %d", cfg.Indexing.FileBatchSize)
	}
	if cfg.Indexing.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("indexing.embedding_batch_size must be positive, got %d", cfg.Indexing.EmbeddingBatchSize)
	}
	if cfg.Updates.ChangeFileThreshold <= 0 {
		return fmt.Errorf("updates.change_file_threshold must be positive, got %d", cfg.Updates.ChangeFileThreshold)
	}
	if cfg.Updates.HistoryLimit <= 0 {
		return fmt.Errorf("updates.history_limit must be positive, got %d", cfg.Updates.HistoryLimit)
	}
	if cfg.Watch.RenameWindowMs <= 0 {
		return fmt.Errorf("watch.rename_window_ms must be positive, got %d", cfg.Watch.RenameWindowMs)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	switch cfg.Embedding.Provider {
	case "http", "mock":
	default:
		return fmt.Errorf("embedding.provider must be \"http\" or \"mock\", got %q", cfg.Embedding.Provider)
	}
	for _, ext := range cfg.Indexing.IncludeExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("include_extensions entries must start with a dot, got %q", ext)
		}
	}
	return nil
}
