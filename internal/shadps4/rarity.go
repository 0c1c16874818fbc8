package shadps4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultRarityTTL is how long a rarity cache stays fresh.
const DefaultRarityTTL = 30 * 24 * time.Hour

// RarityCache holds community rarity per trophy name for one game. It lives
// next to the trophy data as trophy00/rarity_cache.json.
type RarityCache struct {
	GameName       string             `json:"gameName"`
	LastUpdated    time.Time          `json:"lastUpdated"`
	TrophyRarities map[string]float64 `json:"trophyRarities"`
}

// Timestamps written without an offset are taken as local time.
var localLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON accepts RFC 3339 timestamps and offset-less local ones.
func (c *RarityCache) UnmarshalJSON(data []byte) error {
	type plain RarityCache
	var raw struct {
		plain
		LastUpdated string `json:"lastUpdated"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = RarityCache(raw.plain)

	if raw.LastUpdated == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw.LastUpdated); err == nil {
		c.LastUpdated = t
		return nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw.LastUpdated, time.Local); err == nil {
			c.LastUpdated = t
			return nil
		}
	}
	return fmt.Errorf("rarity cache lastUpdated %q: unrecognized time format", raw.LastUpdated)
}

// IsStale reports whether the cache must be refreshed: it is missing, holds no
// rarities, or is older than ttl.
func (c *RarityCache) IsStale(now time.Time, ttl time.Duration) bool {
	if c == nil || len(c.TrophyRarities) == 0 {
		return true
	}
	return now.Sub(c.LastUpdated) > ttl
}

// Lookup returns the cached rarity for a trophy name.
func (c *RarityCache) Lookup(name string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.TrophyRarities[name]
	return v, ok
}

// RarityCachePath returns the cache file path for a trophyfiles directory.
func RarityCachePath(trophyDir string) string {
	return filepath.Join(trophyDir, "trophy00", "rarity_cache.json")
}

// LoadRarityCache reads the cache for trophyDir. A missing file returns nil
// without error.
func LoadRarityCache(trophyDir string) (*RarityCache, error) {
	data, err := os.ReadFile(RarityCachePath(trophyDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rarity cache: %w", err)
	}
	var cache RarityCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parse rarity cache: %w", err)
	}
	return &cache, nil
}

// SaveRarityCache writes cache for trophyDir through a temp file.
func SaveRarityCache(trophyDir string, cache *RarityCache) error {
	path := RarityCachePath(trophyDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rarity cache directory: %w", err)
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rarity cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write rarity cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace rarity cache: %w", err)
	}
	return nil
}

// RarityFetcher looks up community trophy rarity for a game, keyed by trophy
// name. Implementations talk to an external service.
type RarityFetcher interface {
	FetchRarities(ctx context.Context, gameName string) (map[string]float64, error)
}

// Thresholds are the fixed rarities assigned to silver, gold and platinum
// trophies.
type Thresholds struct {
	Uncommon  float64
	Rare      float64
	UltraRare float64
}

// DefaultThresholds returns the standard rarity tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{Uncommon: 30, Rare: 10, UltraRare: 1}
}

// scoreAndRarity maps a trophy grade to its gamer score and rarity.
func scoreAndRarity(t Trophy, cache *RarityCache, th Thresholds) (uint32, float64) {
	switch t.Type {
	case "S", "s":
		return 30, th.Uncommon
	case "G", "g":
		return 90, th.Rare
	case "P", "p":
		return 180, th.UltraRare
	default:
		// Bronze and unknown grades take the community rarity when known.
		if v, ok := cache.Lookup(t.Name); ok && (t.Type == "B" || t.Type == "b") {
			return 15, v
		}
		return 15, 100
	}
}
