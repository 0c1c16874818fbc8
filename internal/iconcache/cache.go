// Package iconcache stores achievement and trophy icons on disk, grouped per
// title under a single root directory.
package iconcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cache manages the local icon directory.
type Cache struct {
	root     string
	maxSize  int64 // Maximum cache size in bytes
	mu       sync.RWMutex
	sizes    map[string]int64     // Map of file path to file size
	lastUsed map[string]time.Time // LRU tracking
}

// CacheOptions configures the icon cache.
type CacheOptions struct {
	Root    string // Directory to store icons
	MaxSize int64  // Maximum cache size in bytes (0 = unlimited)
}

// DefaultCacheOptions returns default cache options.
func DefaultCacheOptions() CacheOptions {
	homeDir, _ := os.UserHomeDir()
	return CacheOptions{
		Root: filepath.Join(homeDir, ".achievement-sync", "icons"),
	}
}

// NewCache creates the root directory if needed and indexes existing icons.
func NewCache(options CacheOptions) (*Cache, error) {
	if options.Root == "" {
		return nil, errors.New("icon cache root is empty")
	}
	if err := os.MkdirAll(options.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create icon cache directory: %w", err)
	}

	cache := &Cache{
		root:     options.Root,
		maxSize:  options.MaxSize,
		sizes:    make(map[string]int64),
		lastUsed: make(map[string]time.Time),
	}

	if err := cache.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan icon cache directory: %w", err)
	}

	return cache, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the directory holding icons for titleID.
func (c *Cache) Dir(titleID string) string {
	return filepath.Join(c.root, titleID)
}

// Path returns where the icon name for titleID is (or would be) stored.
func (c *Cache) Path(titleID, name string) string {
	return filepath.Join(c.root, titleID, name)
}

// EnsureDir creates the icon directory for titleID.
func (c *Cache) EnsureDir(titleID string) (string, error) {
	if err := validName(titleID); err != nil {
		return "", err
	}
	dir := c.Dir(titleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create icon directory: %w", err)
	}
	return dir, nil
}

// Exists reports whether the icon is cached.
func (c *Cache) Exists(titleID, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sizes[c.Path(titleID, name)]
	return ok
}

// Put writes data as the icon name for titleID, replacing any previous copy.
// Returns the stored path.
func (c *Cache) Put(titleID, name string, data []byte) (string, error) {
	return c.store(titleID, name, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
}

// CopyFile copies src into the cache unless the icon is already present.
// Returns the cached path.
func (c *Cache) CopyFile(titleID, name, src string) (string, error) {
	path := c.Path(titleID, name)
	if c.Exists(titleID, name) {
		c.touch(path)
		return path, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open icon source: %w", err)
	}
	defer func() { _ = in.Close() }()

	return c.store(titleID, name, func(w io.Writer) (int64, error) {
		return io.Copy(w, in)
	})
}

// store writes through a temp file in the title directory and renames it into place.
func (c *Cache) store(titleID, name string, write func(io.Writer) (int64, error)) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	dir, err := c.EnsureDir(titleID)
	if err != nil {
		return "", err
	}
	cachePath := filepath.Join(dir, name)

	tempFile, err := os.CreateTemp(dir, "icon-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	size, err := write(tempFile)
	if err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to write icon: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sizes, cachePath)
	if err := c.ensureSpace(size); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to ensure cache space: %w", err)
	}

	if err := os.Rename(tempPath, cachePath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to move icon into place: %w", err)
	}

	c.sizes[cachePath] = size
	c.lastUsed[cachePath] = time.Now()
	return cachePath, nil
}

func (c *Cache) touch(path string) {
	c.mu.Lock()
	c.lastUsed[path] = time.Now()
	c.mu.Unlock()
}

// ensureSpace evicts least recently used icons to make room for neededSize bytes.
// Must be called with c.mu locked.
func (c *Cache) ensureSpace(neededSize int64) error {
	if c.maxSize == 0 {
		return nil // Unlimited cache size
	}

	var currentSize int64
	for _, size := range c.sizes {
		currentSize += size
	}
	if currentSize+neededSize <= c.maxSize {
		return nil
	}

	paths := make([]string, 0, len(c.sizes))
	for path := range c.sizes {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return c.lastUsed[paths[i]].Before(c.lastUsed[paths[j]])
	})

	for _, path := range paths {
		if currentSize+neededSize <= c.maxSize {
			break
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to evict cached icon: %w", err)
		}
		currentSize -= c.sizes[path]
		delete(c.sizes, path)
		delete(c.lastUsed, path)
	}

	return nil
}

// Clear removes every cached icon and the per-title directories.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("failed to read icon cache: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.root, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}

	c.sizes = make(map[string]int64)
	c.lastUsed = make(map[string]time.Time)
	return nil
}

// CacheStats contains statistics about the cache.
type CacheStats struct {
	TotalFiles int
	TotalSize  int64
	MaxSize    int64
	Titles     int
	Root       string
}

// Stats returns statistics about the cache.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalSize int64
	titles := make(map[string]struct{})
	for path, size := range c.sizes {
		totalSize += size
		titles[filepath.Dir(path)] = struct{}{}
	}

	return CacheStats{
		TotalFiles: len(c.sizes),
		TotalSize:  totalSize,
		MaxSize:    c.maxSize,
		Titles:     len(titles),
		Root:       c.root,
	}
}

// scan indexes icons already on disk. Leftover temp files are removed.
func (c *Cache) scan() error {
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".tmp" {
			_ = os.Remove(path)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		c.sizes[path] = info.Size()
		c.lastUsed[path] = info.ModTime()
		return nil
	})
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) {
		return fmt.Errorf("invalid icon cache name %q", name)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
		return fmt.Errorf("invalid icon cache name %q", name)
	}
	return nil
}
