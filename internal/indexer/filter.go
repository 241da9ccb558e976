package indexer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/maypok86/otter"

	"github.com/reposeek/reposeek/internal/config"
)

// FileFilter decides which repository files participate in indexing, by
// extension allow-list and exclude globs. Compiled globs are cached across
// operations since the same patterns recur on every update.
type FileFilter struct {
	globs otter.Cache[string, glob.Glob]
}

// NewFileFilter creates a filter with a shared compiled-glob cache.
func NewFileFilter() (*FileFilter, error) {
	cache, err := otter.MustBuilder[string, glob.Glob](512).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build glob cache: %w", err)
	}
	return &FileFilter{globs: cache}, nil
}

// Allow reports whether relPath passes the extension allow-list and the
// exclude patterns. An empty extensions slice falls back to the default set.
func (f *FileFilter) Allow(relPath string, includeExtensions, excludePatterns []string) bool {
	extensions := includeExtensions
	if len(extensions) == 0 {
		extensions = config.DefaultExtensions
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	matched := false
	for _, allowed := range extensions {
		if ext == strings.ToLower(allowed) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	normalized := filepath.ToSlash(relPath)
	for _, pattern := range excludePatterns {
		g, err := f.compiled(pattern)
		if err != nil {
			// Unparseable patterns never exclude anything.
			continue
		}
		if g.Match(normalized) {
			return false
		}
	}
	return true
}

// ScanFiles walks root and returns the slash-separated relative paths that
// pass the filter, invoking onFile per accepted file for progress counting.
func (f *FileFilter) ScanFiles(root string, includeExtensions, excludePatterns []string, onFile func(count int)) ([]string, error) {
	patterns := append(append([]string(nil), config.DefaultExcludePatterns...), excludePatterns...)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !f.Allow(rel, includeExtensions, patterns) {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if onFile != nil {
			onFile(len(files))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

func (f *FileFilter) compiled(pattern string) (glob.Glob, error) {
	if g, ok := f.globs.Get(pattern); ok {
		return g, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	f.globs.Set(pattern, g)
	return g, nil
}
