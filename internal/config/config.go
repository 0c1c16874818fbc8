package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DirName is the per-user data directory under the home directory.
const DirName = ".achievement-sync"

// Config represents the application configuration.
type Config struct {
	// Xenia (Xbox 360) profile source
	Xenia XeniaConfig `toml:"xenia"`

	// ShadPS4 trophy source
	ShadPS4 ShadPS4Config `toml:"shadps4"`

	// Persisted record sets, icons and the frontend store
	Storage StorageConfig `toml:"storage"`

	// Profile watcher
	Watch WatchConfig `toml:"watch"`

	// Application configuration
	App AppConfig `toml:"app"`
}

// XeniaConfig contains Xenia profile settings.
type XeniaConfig struct {
	Enabled    bool   `toml:"enabled"`     // Refresh Xbox 360 titles
	ProfileDir string `toml:"profile_dir"` // Directory holding <titleid>.gpd files
	TitleTable string `toml:"title_table"` // JSON(C) game name -> title ids table
	LockedIcon string `toml:"locked_icon"` // Icon shown for locked achievements
}

// ShadPS4Config contains ShadPS4 settings.
type ShadPS4Config struct {
	Enabled    bool    `toml:"enabled"`     // Refresh PS4 titles
	InstallDir string  `toml:"install_dir"` // Emulator directory containing user/game_data
	RarityTTL  string  `toml:"rarity_ttl"`  // Rarity cache lifetime (e.g., "720h")
	Uncommon   float64 `toml:"uncommon"`    // Silver trophy rarity percent
	Rare       float64 `toml:"rare"`        // Gold trophy rarity percent
	UltraRare  float64 `toml:"ultra_rare"`  // Platinum trophy rarity percent
}

// StorageConfig contains on-disk locations.
type StorageConfig struct {
	RecordDir    string `toml:"record_dir"`     // Persisted <game-id>.json record sets
	IconDir      string `toml:"icon_dir"`       // Icon cache root
	IconMaxBytes int64  `toml:"icon_max_bytes"` // Icon cache size limit (0 = unlimited)
	DBPath       string `toml:"db_path"`        // SQLite store read by the frontend
	BackupDir    string `toml:"backup_dir"`     // Store backups (empty = next to db)

	BackupInterval string `toml:"backup_interval"` // Scheduled backups while watching ("" = off)
	BackupKeep     int    `toml:"backup_keep"`     // Scheduled backups to retain (0 = all)
}

// WatchConfig contains profile watcher settings.
type WatchConfig struct {
	Debounce    string `toml:"debounce"`     // Quiet period after a write (e.g., "2s")
	MinInterval string `toml:"min_interval"` // Minimum time between refreshes of one title
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration rooted at the user's
// data directory.
func DefaultConfig() *Config {
	base := baseDir()
	return &Config{
		Xenia: XeniaConfig{
			Enabled:    true,
			ProfileDir: "",
			TitleTable: filepath.Join(base, "titleids.json"),
			LockedIcon: "",
		},
		ShadPS4: ShadPS4Config{
			Enabled:    true,
			InstallDir: "",
			RarityTTL:  "720h",
			Uncommon:   30,
			Rare:       10,
			UltraRare:  1,
		},
		Storage: StorageConfig{
			RecordDir:    filepath.Join(base, "records"),
			IconDir:      filepath.Join(base, "icons"),
			IconMaxBytes: 0,
			DBPath:       filepath.Join(base, "achievements.db"),
			BackupDir:    "",

			BackupInterval: "24h",
			BackupKeep:     7,
		},
		Watch: WatchConfig{
			Debounce:    "2s",
			MinInterval: "30s",
		},
		App: AppConfig{
			DebugMode: false,
		},
	}
}

func baseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(homeDir, DirName)
}

// Path returns the path to the configuration file.
func Path() string {
	return filepath.Join(baseDir(), "config.toml")
}

// Load loads the configuration from the default path. Returns the default
// config if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads the configuration at path. Keys missing from the file keep
// their default values.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the configuration to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.ShadPS4.RarityTTL); err != nil {
		return fmt.Errorf("invalid rarity TTL %q: %w", c.ShadPS4.RarityTTL, err)
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("invalid watch debounce %q: %w", c.Watch.Debounce, err)
	}
	if _, err := time.ParseDuration(c.Watch.MinInterval); err != nil {
		return fmt.Errorf("invalid watch min interval %q: %w", c.Watch.MinInterval, err)
	}

	for name, v := range map[string]float64{
		"uncommon":   c.ShadPS4.Uncommon,
		"rare":       c.ShadPS4.Rare,
		"ultra_rare": c.ShadPS4.UltraRare,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s rarity must be within 0-100: %v", name, v)
		}
	}

	if c.Storage.BackupInterval != "" {
		if _, err := time.ParseDuration(c.Storage.BackupInterval); err != nil {
			return fmt.Errorf("invalid backup interval %q: %w", c.Storage.BackupInterval, err)
		}
	}
	if c.Storage.BackupKeep < 0 {
		return fmt.Errorf("backup keep cannot be negative: %d", c.Storage.BackupKeep)
	}

	if c.Storage.IconMaxBytes < 0 {
		return fmt.Errorf("icon cache size cannot be negative: %d", c.Storage.IconMaxBytes)
	}
	if c.Storage.RecordDir == "" {
		return errors.New("storage record_dir is required")
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage db_path is required")
	}

	return nil
}

// GetRarityTTL returns the rarity cache lifetime as a duration.
func (c *Config) GetRarityTTL() (time.Duration, error) {
	return time.ParseDuration(c.ShadPS4.RarityTTL)
}

// GetBackupInterval returns the scheduled backup interval, or zero when
// scheduled backups are off.
func (c *Config) GetBackupInterval() (time.Duration, error) {
	if c.Storage.BackupInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Storage.BackupInterval)
}

// GetWatchDebounce returns the watcher quiet period as a duration.
func (c *Config) GetWatchDebounce() (time.Duration, error) {
	return time.ParseDuration(c.Watch.Debounce)
}

// GetWatchMinInterval returns the per-title refresh interval as a duration.
func (c *Config) GetWatchMinInterval() (time.Duration, error) {
	return time.ParseDuration(c.Watch.MinInterval)
}
