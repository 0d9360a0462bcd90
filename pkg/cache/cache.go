// Package cache keeps small, slow-changing API responses (the sign-in config
// and the designation list) on disk between memberctl runs.
//
// Entries live in the XDG cache directory, one JSON file per key, named by
// the SHA-256 of the key so any URL can be used as a key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// DefaultTTL is used when no TTL is given.
const DefaultTTL = time.Hour

// ErrCacheMiss is returned when no entry exists for a key.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a directory of JSON entries.
type Cache struct {
	// BaseDir is the cache directory (defaults to XDG cache dir)
	BaseDir string
	// DefaultTTL applies when IsValid is given 0.
	DefaultTTL time.Duration

	now func() time.Time
}

// Entry is one cached response.
type Entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// New creates a cache under $XDG_CACHE_HOME/<appName>.
func New(appName string) (*Cache, error) {
	return NewAt(filepath.Join(xdg.CacheHome, appName))
}

// NewAt creates a cache in dir.
func NewAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{BaseDir: dir, DefaultTTL: DefaultTTL, now: time.Now}, nil
}

// Get returns the entry for key.
func (c *Cache) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return &entry, nil
}

// Set stores v as JSON under key.
func (c *Cache) Set(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	data, err := json.MarshalIndent(&Entry{Key: key, Data: raw, FetchedAt: c.now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := os.WriteFile(c.path(key), data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache) Clear(_ context.Context) error {
	entries, err := os.ReadDir(c.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			path := filepath.Join(c.BaseDir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove cache file %s: %w", entry.Name(), err)
			}
		}
	}

	return nil
}

// IsValid reports whether entry is younger than ttl.
func (c *Cache) IsValid(entry *Entry, ttl time.Duration) bool {
	if entry == nil {
		return false
	}
	if ttl == 0 {
		ttl = c.DefaultTTL
	}
	return c.now().Sub(entry.FetchedAt) < ttl
}

// Fetch returns the cached value for key when it is younger than ttl, and
// otherwise calls fetch and caches its result. A failing cache never fails
// the call.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if c != nil {
		if entry, err := c.Get(ctx, key); err == nil && c.IsValid(entry, ttl) {
			var v T
			if err := json.Unmarshal(entry.Data, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if c != nil {
		_ = c.Set(ctx, key, v)
	}
	return v, nil
}

func (c *Cache) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.BaseDir, hex.EncodeToString(hash[:])+".json")
}
