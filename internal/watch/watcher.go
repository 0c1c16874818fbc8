// Package watch refreshes Xbox 360 titles when Xenia rewrites their profile
// GPD files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/gpd"
	"github.com/ramonehamilton/achievement-sync/internal/metrics"
	"github.com/ramonehamilton/achievement-sync/internal/refresh"
	"github.com/ramonehamilton/achievement-sync/internal/storage/models"
)

const (
	defaultDebounce    = 2 * time.Second
	defaultMinInterval = 30 * time.Second
)

// Refresher refreshes one game from its GPD.
type Refresher interface {
	RefreshXbox360(ctx context.Context, game achievements.Game) (*refresh.Result, error)
}

// GameLookup finds the games previously refreshed from a title.
type GameLookup interface {
	GamesByTitleID(ctx context.Context, platform, titleID string) ([]achievements.Game, error)
	GetSource(ctx context.Context, gameID uuid.UUID) (*models.TitleSource, error)
}

// Config configures a Watcher.
type Config struct {
	ProfileDir string
	Refresher  Refresher
	Games      GameLookup

	// Debounce is the quiet period after the last write before a file is read.
	Debounce time.Duration

	// MinInterval is the minimum time between refreshes of one title.
	MinInterval time.Duration

	// Metrics is optional.
	Metrics *metrics.RefreshMetrics

	Now    func() time.Time
	Logger *slog.Logger
}

// Watcher watches a Xenia profile directory.
type Watcher struct {
	profileDir  string
	refresher   Refresher
	games       GameLookup
	debounce    time.Duration
	minInterval time.Duration
	metrics     *metrics.RefreshMetrics
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	pending  map[string]time.Time // path -> last event
	limiters map[string]*rate.Limiter
}

// New creates a Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.ProfileDir == "" {
		return nil, errors.New("watch: profile directory is required")
	}
	if cfg.Refresher == nil || cfg.Games == nil {
		return nil, errors.New("watch: refresher and game lookup are required")
	}

	w := &Watcher{
		profileDir:  cfg.ProfileDir,
		refresher:   cfg.Refresher,
		games:       cfg.Games,
		debounce:    cfg.Debounce,
		minInterval: cfg.MinInterval,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		logger:      cfg.Logger,
		pending:     make(map[string]time.Time),
		limiters:    make(map[string]*rate.Limiter),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.minInterval <= 0 {
		w.minInterval = defaultMinInterval
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := watcher.Add(w.profileDir); err != nil {
		return fmt.Errorf("failed to watch profile directory: %w", err)
	}
	w.logger.Info("Watching Xenia profile", "dir", w.profileDir, "debounce", w.debounce)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	if w.metrics != nil {
		defer func() { w.logger.Info("Watcher stopped", "stats", w.metrics.GetStats()) }()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isGPD(event.Name) {
				w.markPending(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "error", err)
		case <-ticker.C:
			for _, path := range w.due() {
				if err := w.HandleFile(ctx, path); err != nil {
					w.logger.Error("Refresh failed", "path", path, "error", err)
				}
			}
		}
	}
}

func isGPD(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gpd")
}

func (w *Watcher) markPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = w.now()
}

// due removes and returns the pending paths that have been quiet for the
// debounce period.
func (w *Watcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}
	return paths
}

func (w *Watcher) limiter(titleID string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.limiters[titleID]
	if !ok {
		l = rate.NewLimiter(rate.Every(w.minInterval), 1)
		w.limiters[titleID] = l
	}
	return l
}

// HandleFile refreshes every known game backed by the GPD at path whose
// contents changed since its last refresh. A title refreshed too recently is
// queued again instead.
func (w *Watcher) HandleFile(ctx context.Context, path string) error {
	titleID := gpd.TitleIDFromPath(path)
	logger := w.logger.With("title_id", titleID)

	games, err := w.games.GamesByTitleID(ctx, models.PlatformXbox360, titleID)
	if err != nil {
		return fmt.Errorf("look up games for %s: %w", titleID, err)
	}
	if len(games) == 0 {
		logger.Debug("No games refreshed from title yet")
		return nil
	}

	fingerprint, err := refresh.FingerprintFile(path)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", path, err)
	}

	var stale []achievements.Game
	for _, game := range games {
		src, err := w.games.GetSource(ctx, game.ID)
		if err != nil {
			return fmt.Errorf("get source for %s: %w", game.Name, err)
		}
		if src != nil && src.Fingerprint == fingerprint {
			continue
		}
		stale = append(stale, game)
	}
	if len(stale) == 0 {
		logger.Debug("GPD unchanged")
		w.metrics.RecordUnchanged()
		return nil
	}

	if !w.limiter(titleID).AllowN(w.now(), 1) {
		logger.Debug("Refresh throttled, requeued")
		w.metrics.RecordThrottled()
		w.markPending(path)
		return nil
	}

	for _, game := range stale {
		res, err := w.refresher.RefreshXbox360(ctx, game)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", game.Name, err)
		}
		logger.Info("Refreshed from profile change", "game", game.Name, "status", res.Status)
	}
	return nil
}
