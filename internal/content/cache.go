// Package content implements the local filesystem cache for fetched bodies.
// A link whose body is cached can resume classification without refetching.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the content cache.
type Config struct {
	// BaseDir is the root directory where fetched bodies are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Cache writes fetched bodies to the local filesystem, one file per link.
type Cache struct {
	baseDir string
}

// New creates a filesystem-backed content cache rooted at cfg.BaseDir.
func New(cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Cache{baseDir: cfg.BaseDir}, nil
}

// Put stores the body for a link and returns the cache ref to persist on the
// task. Re-putting the same link overwrites the previous body.
func (c *Cache) Put(linkID string, body []byte) (string, error) {
	ref, err := c.resolve(linkID)
	if err != nil {
		return "", err
	}
	full := filepath.Join(c.baseDir, ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(full, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write cached body: %w", err)
	}
	return ref, nil
}

// Get reads a previously cached body by its ref.
func (c *Cache) Get(ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("content ref is required")
	}
	full := filepath.Join(c.baseDir, ref)

	// Verify the resolved path stays inside the cache root.
	cleanBase := filepath.Clean(c.baseDir)
	cleanFull := filepath.Clean(full)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return nil, fmt.Errorf("path traversal detected")
	}

	data, err := os.ReadFile(cleanFull)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached body: %w", err)
	}
	return data, nil
}

func (c *Cache) resolve(linkID string) (string, error) {
	if strings.TrimSpace(linkID) == "" {
		return "", fmt.Errorf("link id is required")
	}
	if len(linkID) < 2 || linkID != filepath.Base(linkID) || strings.HasPrefix(linkID, ".") {
		return "", fmt.Errorf("invalid link id %q", linkID)
	}
	// Shard by the first two id characters to keep directories small.
	return filepath.Join(linkID[:2], linkID+".body"), nil
}
