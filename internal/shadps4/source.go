package shadps4

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
)

// IconCopier copies trophy icons into the shared icon cache.
type IconCopier interface {
	CopyFile(titleID, name, src string) (string, error)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// InstallDir is the ShadPS4 installation folder.
	InstallDir string

	// Icons receives trophy icons. Optional.
	Icons IconCopier

	// Fetcher supplies community rarity when the cache is stale. Optional.
	Fetcher RarityFetcher

	Thresholds Thresholds
	RarityTTL  time.Duration

	// Location is used for unlock times. Defaults to time.Local.
	Location *time.Location

	Now    func() time.Time
	Logger *slog.Logger
}

// Source reads trophies for games installed under one ShadPS4 installation.
type Source struct {
	gameDataDir string
	icons       IconCopier
	fetcher     RarityFetcher
	thresholds  Thresholds
	ttl         time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
}

// NewSource creates a Source.
func NewSource(cfg SourceConfig) *Source {
	s := &Source{
		gameDataDir: GameDataDir(cfg.InstallDir),
		icons:       cfg.Icons,
		fetcher:     cfg.Fetcher,
		thresholds:  cfg.Thresholds,
		ttl:         cfg.RarityTTL,
		loc:         cfg.Location,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if s.thresholds == (Thresholds{}) {
		s.thresholds = DefaultThresholds()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultRarityTTL
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Configured reports whether the installation has a game_data directory.
func (s *Source) Configured() bool {
	info, err := os.Stat(s.gameDataDir)
	return err == nil && info.IsDir()
}

// TrophyXML returns the TROP.XML path of titleID.
func (s *Source) TrophyXML(titleID string) string {
	return TrophyXMLPath(TrophyDir(s.gameDataDir, titleID))
}

// FindTitleID returns the title directory whose TROP.XML title name matches
// gameName, ignoring case.
func (s *Source) FindTitleID(gameName string) (string, error) {
	entries, err := os.ReadDir(s.gameDataDir)
	if err != nil {
		return "", fmt.Errorf("read game data: %w", err)
	}

	want := strings.TrimSpace(gameName)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := TrophyXMLPath(TrophyDir(s.gameDataDir, entry.Name()))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tf, err := ParseTrophyFile(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable trophy file", "path", path, "error", err)
			continue
		}
		if strings.EqualFold(tf.TitleName, want) {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("%q: %w", gameName, ErrTitleNotFound)
}

// Achievements returns the trophies of gameName as achievement records along
// with the title id they were read from.
func (s *Source) Achievements(ctx context.Context, gameName string) (string, []achievements.Achievement, error) {
	titleID, err := s.FindTitleID(gameName)
	if err != nil {
		return "", nil, err
	}

	trophyDir := TrophyDir(s.gameDataDir, titleID)
	tf, err := ParseTrophyFile(TrophyXMLPath(trophyDir))
	if err != nil {
		return titleID, nil, err
	}

	cache := s.rarities(ctx, gameName, trophyDir)

	items := make([]achievements.Achievement, 0, len(tf.Trophies))
	for _, t := range tf.Trophies {
		score, percent := scoreAndRarity(t, cache, s.thresholds)
		a := achievements.Achievement{
			APIName:     t.ID,
			Name:        t.Name,
			Description: t.Detail,
			IsHidden:    t.IsHidden(),
			GamerScore:  score,
			Percent:     percent,
		}

		if t.Unlocked() {
			unlocked, err := ConvertTimestamp(t.Timestamp, s.loc)
			if err != nil {
				s.logger.Warn("Ignoring bad trophy timestamp", "title", titleID, "trophy", t.ID, "error", err)
			}
			a.DateUnlocked = unlocked
		}

		icon := s.copyIcon(titleID, trophyDir, t)
		a.URLUnlocked = icon
		a.URLLocked = icon

		items = append(items, a)
	}

	return titleID, items, nil
}

// rarities returns the cached rarities for a title, refreshing them through
// the fetcher when the cache is stale. Failures fall back to whatever cache
// exists.
func (s *Source) rarities(ctx context.Context, gameName, trophyDir string) *RarityCache {
	cache, err := LoadRarityCache(trophyDir)
	if err != nil {
		s.logger.Warn("Failed to load rarity cache", "game", gameName, "error", err)
		cache = nil
	}

	if !cache.IsStale(s.now(), s.ttl) {
		s.logger.Debug("Using cached trophy rarities", "game", gameName)
		return cache
	}
	if s.fetcher == nil {
		return cache
	}

	s.logger.Info("Fetching trophy rarities", "game", gameName)
	fetched, err := s.fetcher.FetchRarities(ctx, gameName)
	if err != nil {
		s.logger.Warn("Failed to fetch trophy rarities", "game", gameName, "error", err)
		return cache
	}
	if len(fetched) == 0 {
		return cache
	}

	fresh := &RarityCache{
		GameName:       gameName,
		LastUpdated:    s.now(),
		TrophyRarities: fetched,
	}
	if err := SaveRarityCache(trophyDir, fresh); err != nil {
		s.logger.Warn("Failed to save rarity cache", "game", gameName, "error", err)
	} else {
		s.logger.Info("Saved trophy rarities", "game", gameName, "count", len(fetched))
	}
	return fresh
}

func (s *Source) copyIcon(titleID, trophyDir string, t Trophy) string {
	name := t.IconName()
	src := IconPath(trophyDir, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Trophy icon not found", "path", src)
		}
		return ""
	}
	if s.icons == nil {
		return src
	}

	path, err := s.icons.CopyFile("shadps4/"+titleID, name, src)
	if err != nil {
		s.logger.Warn("Failed to cache trophy icon", "path", src, "error", err)
		return src
	}
	return path
}
