package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// cacheExt is the extension of cache files.
const cacheExt = ".html"

// Cache is a flat directory of fetched pages keyed by URL.
// Each file is named after the lowercase hex SHA-256 of the URL and holds
// the raw page text without any framing.
//
// Writes are not locked: the same URL always maps to the same file, and
// concurrent writers store the same bytes.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. The directory is created on the
// first Store.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the cache key of rawURL.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Path returns the file path used for rawURL.
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.dir, Key(rawURL)+cacheExt)
}

// Load returns the cached text for rawURL.
// A missing entry is reported with ok == false and no error; any other read
// failure wraps ErrCacheIO.
func (c *Cache) Load(rawURL string) (text string, ok bool, err error) {
	data, err := os.ReadFile(c.Path(rawURL))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: failed to read cache entry for %s: %w", ErrCacheIO, rawURL, err)
	}
	return string(data), true, nil
}

// Store writes text as the cache entry for rawURL.
func (c *Cache) Store(rawURL, text string) error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("%w: failed to create cache directory: %w", ErrCacheIO, err)
	}
	if err := os.WriteFile(c.Path(rawURL), []byte(text), 0600); err != nil {
		return fmt.Errorf("%w: failed to write cache entry for %s: %w", ErrCacheIO, rawURL, err)
	}
	return nil
}
