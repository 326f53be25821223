// internal/discovery/discovery.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Config controls which parts of the tree are enumerated.
type Config struct {
	// SkipDirs are directory base names that are not descended into
	// (e.g. ".git", "_backup"). Empty means every directory is walked.
	SkipDirs []string `mapstructure:"skip_dirs"`
}

// Enumerator lists candidate parent files under a base directory.
type Enumerator struct {
	cfg    Config
	logger *zap.Logger
	skip   map[string]struct{}
}

// NewEnumerator creates an Enumerator. A nil logger is replaced with a no-op one.
func NewEnumerator(cfg Config, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(cfg.SkipDirs))
	for _, d := range cfg.SkipDirs {
		if d = strings.TrimSpace(d); d != "" {
			skip[d] = struct{}{}
		}
	}
	return &Enumerator{cfg: cfg, logger: logger.Named("discovery"), skip: skip}
}

// Enumerate walks root recursively and returns every non-directory entry in
// the lexical order filepath.WalkDir visits them. root must be an existing
// directory. Unreadable subdirectories are logged and skipped.
func (e *Enumerator) Enumerate(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access base directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			e.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, ok := e.skip[d.Name()]; ok && path != root {
				e.logger.Debug("Skipping directory", zap.String("path", path))
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to enumerate %q: %w", root, err)
	}

	e.logger.Debug("Enumerated files", zap.String("root", root), zap.Int("count", len(files)))
	return files, nil
}
