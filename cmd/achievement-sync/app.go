package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/config"
	"github.com/ramonehamilton/achievement-sync/internal/iconcache"
	"github.com/ramonehamilton/achievement-sync/internal/metrics"
	"github.com/ramonehamilton/achievement-sync/internal/refresh"
	"github.com/ramonehamilton/achievement-sync/internal/shadps4"
	"github.com/ramonehamilton/achievement-sync/internal/storage"
	"github.com/ramonehamilton/achievement-sync/internal/titleid"
)

// app holds the wired components of one invocation.
type app struct {
	cfg       *config.Config
	db        *storage.DB
	store     *storage.Service
	icons     *iconcache.Cache
	persister *achievements.Persister
	metrics   *metrics.RefreshMetrics
	refresher *refresh.Refresher
}

func newApp(cfg *config.Config) (*app, error) {
	logger := slog.Default()

	icons, err := iconcache.NewCache(iconcache.CacheOptions{
		Root:    cfg.Storage.IconDir,
		MaxSize: cfg.Storage.IconMaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("open icon cache: %w", err)
	}

	db, err := storage.Open(storage.DefaultConfig(cfg.Storage.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.NewService(db)

	persister := achievements.NewPersister(achievements.PersisterConfig{
		Dir:    cfg.Storage.RecordDir,
		Store:  store,
		Logger: logger,
	})

	var titles *titleid.Table
	if cfg.Xenia.Enabled {
		titles, err = titleid.Load(cfg.Xenia.TitleTable)
		if err != nil {
			logger.Warn("Xbox 360 title table unavailable", "path", cfg.Xenia.TitleTable, "error", err)
		}
	}

	var ps4 *shadps4.Source
	if cfg.ShadPS4.Enabled && cfg.ShadPS4.InstallDir != "" {
		ttl, _ := cfg.GetRarityTTL()
		ps4 = shadps4.NewSource(shadps4.SourceConfig{
			InstallDir: cfg.ShadPS4.InstallDir,
			Icons:      icons,
			Thresholds: shadps4.Thresholds{
				Uncommon:  cfg.ShadPS4.Uncommon,
				Rare:      cfg.ShadPS4.Rare,
				UltraRare: cfg.ShadPS4.UltraRare,
			},
			RarityTTL: ttl,
			Logger:    logger,
		})
	}

	stats := metrics.NewRefreshMetrics()
	refresher, err := refresh.New(refresh.Config{
		Xenia: refresh.XeniaConfig{
			Enabled:    cfg.Xenia.Enabled,
			ProfileDir: cfg.Xenia.ProfileDir,
			Titles:     titles,
			Icons:      icons,
			LockedIcon: cfg.Xenia.LockedIcon,
		},
		ShadPS4:   ps4,
		Persister: persister,
		Sources:   store,
		Metrics:   stats,
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		db:        db,
		store:     store,
		icons:     icons,
		persister: persister,
		metrics:   stats,
		refresher: refresher,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// loadRecordSets reads every committed record file in dir, keyed by file
// stem. Leftover temp files are skipped.
func loadRecordSets(p *achievements.Persister, dir string) (map[string]*achievements.AchievementSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]*achievements.AchievementSet{}, nil
		}
		return nil, fmt.Errorf("read record directory: %w", err)
	}

	sets := make(map[string]*achievements.AchievementSet)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasSuffix(name, ".temp.json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		set, found, err := p.Load(key)
		if err != nil {
			return nil, err
		}
		if found {
			sets[key] = set
		}
	}
	return sets, nil
}
