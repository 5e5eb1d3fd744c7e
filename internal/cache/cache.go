package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spboyer/loadeval/internal/models"
)

// Cache stores scored records on disk so unchanged file pairs are not
// scored twice.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a new cache instance with the specified directory
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// CacheKey generates the cache key for scoring one item.
// The key is based on:
// - the metric identity
// - the item name
// - reference and candidate file contents
func CacheKey(metricName string, item models.WorkItem, referencePath, candidatePath string) (string, error) {
	h := sha256.New()

	if err := writeString(h, metricName); err != nil {
		return "", err
	}
	if err := writeString(h, string(item)); err != nil {
		return "", err
	}
	if err := hashFile(h, referencePath); err != nil {
		return "", fmt.Errorf("hashing reference %s: %w", referencePath, err)
	}
	if err := writeString(h, ""); err != nil {
		return "", err
	}
	if err := hashFile(h, candidatePath); err != nil {
		return "", fmt.Errorf("hashing candidate %s: %w", candidatePath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached record if it exists
func (c *Cache) Get(key string) (*models.ResultRecord, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		// Cache miss
		return nil, false
	}

	var record models.ResultRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}

	return &record, true
}

// Put stores a record in the cache
func (c *Cache) Put(key string, record *models.ResultRecord) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	if err := os.WriteFile(c.cachePath(key), data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Clear removes all cached results
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Safety check: only remove directories that look like a cache
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if filepath.Ext(entry.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func writeString(w io.Writer, s string) error {
	// null byte delimiter keeps adjacent fields from colliding
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	return nil
}
