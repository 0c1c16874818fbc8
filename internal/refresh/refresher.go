// Package refresh runs one achievement refresh for a game: read the emulator
// data, merge it with the persisted set, commit, and record where it came from.
package refresh

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/gpd"
	"github.com/ramonehamilton/achievement-sync/internal/metrics"
	"github.com/ramonehamilton/achievement-sync/internal/shadps4"
	"github.com/ramonehamilton/achievement-sync/internal/storage/models"
	"github.com/ramonehamilton/achievement-sync/internal/titleid"
)

// Status is the outcome of a refresh that did not fail.
type Status int

const (
	// StatusNotConfigured means the source is disabled or its paths are unset.
	StatusNotConfigured Status = iota
	// StatusNoData means the game has no data in the source.
	StatusNoData
	// StatusUpdated means a merged set was committed.
	StatusUpdated
)

func (s Status) String() string {
	switch s {
	case StatusNotConfigured:
		return "not configured"
	case StatusNoData:
		return "no data"
	case StatusUpdated:
		return "updated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result describes one refresh.
type Result struct {
	Status  Status
	TitleID string
	Set     *achievements.AchievementSet
}

// SourceRecorder remembers which file a game was refreshed from.
type SourceRecorder interface {
	RecordSource(ctx context.Context, src *models.TitleSource) error
}

// XeniaConfig configures Xbox 360 refreshes.
type XeniaConfig struct {
	Enabled    bool
	ProfileDir string
	Titles     *titleid.Table
	Icons      gpd.IconSink
	LockedIcon string
}

// Config configures a Refresher.
type Config struct {
	Xenia XeniaConfig

	// ShadPS4 is nil when PS4 refreshes are disabled.
	ShadPS4 *shadps4.Source

	Merger    *achievements.Merger
	Persister *achievements.Persister

	// Sources is optional.
	Sources SourceRecorder

	// Metrics is optional.
	Metrics *metrics.RefreshMetrics

	Logger *slog.Logger
}

// Refresher refreshes games from the configured emulators.
type Refresher struct {
	xenia     XeniaConfig
	shadps4   *shadps4.Source
	merger    *achievements.Merger
	persister *achievements.Persister
	sources   SourceRecorder
	metrics   *metrics.RefreshMetrics
	logger    *slog.Logger
}

// New creates a Refresher.
func New(cfg Config) (*Refresher, error) {
	if cfg.Persister == nil {
		return nil, errors.New("refresh: persister is required")
	}
	r := &Refresher{
		xenia:     cfg.Xenia,
		shadps4:   cfg.ShadPS4,
		merger:    cfg.Merger,
		persister: cfg.Persister,
		sources:   cfg.Sources,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if r.merger == nil {
		r.merger = achievements.NewMerger()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Fingerprint returns the hex BLAKE3 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile returns the hex BLAKE3 digest of the file at path.
func FingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}

// Key returns the record-set key of game.
func Key(game achievements.Game) string {
	if game.ID == uuid.Nil {
		return achievements.GameID(game.Name).String()
	}
	return game.ID.String()
}

func (r *Refresher) xeniaConfigured() bool {
	if !r.xenia.Enabled || r.xenia.ProfileDir == "" || r.xenia.Titles.Len() == 0 {
		return false
	}
	info, err := os.Stat(r.xenia.ProfileDir)
	return err == nil && info.IsDir()
}

func (r *Refresher) observe(start time.Time, res *Result, err error) {
	outcome := metrics.OutcomeFailed
	if err == nil {
		switch res.Status {
		case StatusUpdated:
			outcome = metrics.OutcomeUpdated
		case StatusNoData:
			outcome = metrics.OutcomeNoData
		case StatusNotConfigured:
			outcome = metrics.OutcomeNotConfigured
		}
	}
	r.metrics.RecordRefresh(time.Since(start), outcome)
}

// RefreshXbox360 refreshes game from its Xenia profile GPD. A GPD that fails
// to decode returns an error and leaves the persisted set untouched.
func (r *Refresher) RefreshXbox360(ctx context.Context, game achievements.Game) (res *Result, err error) {
	defer func(start time.Time) { r.observe(start, res, err) }(time.Now())

	if !r.xeniaConfigured() {
		return &Result{Status: StatusNotConfigured}, nil
	}
	logger := r.logger.With("platform", models.PlatformXbox360, "game", game.Name)

	titleID, err := r.xenia.Titles.Resolve(game.Name, r.xenia.ProfileDir)
	if err != nil {
		if errors.Is(err, titleid.ErrUnknownTitle) || errors.Is(err, titleid.ErrNoProfileData) {
			logger.Debug("No profile data", "reason", err)
			return &Result{Status: StatusNoData}, nil
		}
		return nil, err
	}

	path := titleid.GPDPath(r.xenia.ProfileDir, titleID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gpd %s: %w", titleID, err)
	}

	decoder := &gpd.Decoder{
		TitleID:    titleID,
		Icons:      r.xenia.Icons,
		LockedIcon: r.xenia.LockedIcon,
		Logger:     logger,
	}
	fresh, err := decoder.Decode(data)
	if err != nil {
		return &Result{TitleID: titleID}, fmt.Errorf("decode %s: %w", titleID, err)
	}
	if len(fresh) == 0 {
		logger.Debug("GPD has no achievements", "title_id", titleID)
		return &Result{Status: StatusNoData, TitleID: titleID}, nil
	}

	return r.commit(ctx, game, fresh, &models.TitleSource{
		Platform:    models.PlatformXbox360,
		TitleID:     titleID,
		SourcePath:  path,
		Fingerprint: Fingerprint(data),
	})
}

// RefreshShadPS4 refreshes game from its ShadPS4 trophy file.
func (r *Refresher) RefreshShadPS4(ctx context.Context, game achievements.Game) (res *Result, err error) {
	defer func(start time.Time) { r.observe(start, res, err) }(time.Now())

	if r.shadps4 == nil || !r.shadps4.Configured() {
		return &Result{Status: StatusNotConfigured}, nil
	}
	logger := r.logger.With("platform", models.PlatformShadPS4, "game", game.Name)

	titleID, fresh, err := r.shadps4.Achievements(ctx, game.Name)
	if err != nil {
		if errors.Is(err, shadps4.ErrTitleNotFound) {
			logger.Debug("No trophy data", "reason", err)
			return &Result{Status: StatusNoData}, nil
		}
		return &Result{TitleID: titleID}, err
	}
	if len(fresh) == 0 {
		return &Result{Status: StatusNoData, TitleID: titleID}, nil
	}

	path := r.shadps4.TrophyXML(titleID)
	fingerprint, err := FingerprintFile(path)
	if err != nil {
		logger.Warn("Failed to fingerprint trophy file", "path", path, "error", err)
	}

	return r.commit(ctx, game, fresh, &models.TitleSource{
		Platform:    models.PlatformShadPS4,
		TitleID:     titleID,
		SourcePath:  path,
		Fingerprint: fingerprint,
	})
}

func (r *Refresher) commit(ctx context.Context, game achievements.Game, fresh []achievements.Achievement, src *models.TitleSource) (*Result, error) {
	key := Key(game)
	result := &Result{TitleID: src.TitleID}

	prev, _, err := r.persister.Load(key)
	if err != nil {
		return result, fmt.Errorf("load %s: %w", game.Name, err)
	}

	set := r.merger.Merge(prev, fresh, game)
	if err := r.persister.Commit(ctx, key, set); err != nil {
		return result, err
	}
	result.Status = StatusUpdated
	result.Set = set

	if r.sources != nil {
		src.GameID = set.ID
		src.RefreshedAt = set.DateLastRefresh
		if err := r.sources.RecordSource(ctx, src); err != nil {
			r.logger.Warn("Failed to record title source", "game", game.Name, "title_id", src.TitleID, "error", err)
		}
	}

	r.logger.Info("Refreshed achievements",
		"platform", src.Platform,
		"game", game.Name,
		"title_id", src.TitleID,
		"unlocked", set.UnlockedCount(),
		"total", len(set.Items))
	return result, nil
}
