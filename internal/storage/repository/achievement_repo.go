package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/storage/models"
)

// AchievementRepository stores committed achievement sets for the frontend.
type AchievementRepository interface {
	// UpsertSet replaces the stored set for set.ID.
	UpsertSet(ctx context.Context, titleKey string, set *achievements.AchievementSet) error

	// GetSet returns the stored set for a game, or nil if none is stored.
	GetSet(ctx context.Context, gameID uuid.UUID) (*achievements.AchievementSet, error)

	// ListSets returns summaries of every stored set, ordered by name.
	ListSets(ctx context.Context) ([]*models.SetSummary, error)

	// DeleteSet removes a set, its items and its source record.
	DeleteSet(ctx context.Context, gameID uuid.UUID) error

	// RecordSource stores where a game's achievements were read from.
	RecordSource(ctx context.Context, src *models.TitleSource) error

	// GetSource returns the source record for a game, or nil if none is stored.
	GetSource(ctx context.Context, gameID uuid.UUID) (*models.TitleSource, error)

	// GamesByTitleID returns the games whose recorded source is titleID on platform.
	GamesByTitleID(ctx context.Context, platform, titleID string) ([]achievements.Game, error)
}

// achievementRepository is the concrete implementation of AchievementRepository.
type achievementRepository struct {
	db *sql.DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *sql.DB) AchievementRepository {
	return &achievementRepository{db: db}
}

// Times are stored as unix seconds.
func toUnix(t time.Time) int64 { return t.Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertSet replaces the stored set for set.ID.
func (r *achievementRepository) UpsertSet(ctx context.Context, titleKey string, set *achievements.AchievementSet) error {
	if set == nil {
		return errors.New("achievement set is nil")
	}
	if set.ID == uuid.Nil {
		return errors.New("achievement set has no game id")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Explicitly ignore error - will be nil if Commit() succeeds
	}()

	gameID := set.ID.String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO achievement_sets (game_id, title_key, name, date_last_refresh, is_manual, item_count, unlocked_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			title_key = excluded.title_key,
			name = excluded.name,
			date_last_refresh = excluded.date_last_refresh,
			is_manual = excluded.is_manual,
			item_count = excluded.item_count,
			unlocked_count = excluded.unlocked_count,
			updated_at = excluded.updated_at
	`, gameID, titleKey, set.Name, toUnix(set.DateLastRefresh), boolToInt(set.IsManual),
		len(set.Items), set.UnlockedCount(), toUnix(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert achievement set %s: %w", gameID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM achievements WHERE game_id = ?", gameID); err != nil {
		return fmt.Errorf("failed to clear achievements for %s: %w", gameID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO achievements (game_id, position, api_name, name, description, is_hidden,
			date_unlocked, gamer_score, percent, url_unlocked, url_locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		_ = stmt.Close() // Explicitly ignore error - cleanup operation
	}()

	for i, a := range set.Items {
		var unlocked sql.NullInt64
		if a.DateUnlocked != nil {
			unlocked = sql.NullInt64{Int64: toUnix(*a.DateUnlocked), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, gameID, i, a.APIName, a.Name, a.Description,
			boolToInt(a.IsHidden), unlocked, a.GamerScore, a.Percent, a.URLUnlocked, a.URLLocked); err != nil {
			return fmt.Errorf("failed to insert achievement %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSet returns the stored set for a game, or nil if none is stored.
func (r *achievementRepository) GetSet(ctx context.Context, gameID uuid.UUID) (*achievements.AchievementSet, error) {
	var (
		name        string
		lastRefresh int64
		isManual    bool
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, date_last_refresh, is_manual FROM achievement_sets WHERE game_id = ?
	`, gameID.String()).Scan(&name, &lastRefresh, &isManual)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get achievement set %s: %w", gameID, err)
	}

	set := &achievements.AchievementSet{
		ID:              gameID,
		Name:            name,
		DateLastRefresh: fromUnix(lastRefresh),
		IsManual:        isManual,
		Items:           []achievements.Achievement{},
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT api_name, name, description, is_hidden, date_unlocked, gamer_score, percent, url_unlocked, url_locked
		FROM achievements WHERE game_id = ? ORDER BY position
	`, gameID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements for %s: %w", gameID, err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	for rows.Next() {
		var (
			a        achievements.Achievement
			unlocked sql.NullInt64
		)
		if err := rows.Scan(&a.APIName, &a.Name, &a.Description, &a.IsHidden, &unlocked,
			&a.GamerScore, &a.Percent, &a.URLUnlocked, &a.URLLocked); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		if unlocked.Valid {
			t := fromUnix(unlocked.Int64)
			a.DateUnlocked = &t
		}
		set.Items = append(set.Items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}

	return set, nil
}

// ListSets returns summaries of every stored set, ordered by name.
func (r *achievementRepository) ListSets(ctx context.Context) ([]*models.SetSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT game_id, title_key, name, date_last_refresh, is_manual, item_count, unlocked_count, updated_at
		FROM achievement_sets ORDER BY name, game_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievement sets: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	var summaries []*models.SetSummary
	for rows.Next() {
		var (
			s                      models.SetSummary
			gameID                 string
			lastRefresh, updatedAt int64
		)
		if err := rows.Scan(&gameID, &s.TitleKey, &s.Name, &lastRefresh, &s.IsManual,
			&s.ItemCount, &s.UnlockedCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement set: %w", err)
		}
		id, err := uuid.Parse(gameID)
		if err != nil {
			return nil, fmt.Errorf("invalid game id %q: %w", gameID, err)
		}
		s.GameID = id
		s.DateLastRefresh = fromUnix(lastRefresh)
		s.UpdatedAt = fromUnix(updatedAt)
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievement sets: %w", err)
	}

	return summaries, nil
}

// DeleteSet removes a set, its items and its source record.
func (r *achievementRepository) DeleteSet(ctx context.Context, gameID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM achievement_sets WHERE game_id = ?", gameID.String())
	if err != nil {
		return fmt.Errorf("failed to delete achievement set %s: %w", gameID, err)
	}
	return nil
}

// RecordSource stores where a game's achievements were read from.
func (r *achievementRepository) RecordSource(ctx context.Context, src *models.TitleSource) error {
	if src == nil {
		return errors.New("title source is nil")
	}
	refreshed := src.RefreshedAt
	if refreshed.IsZero() {
		refreshed = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO title_sources (game_id, platform, title_id, source_path, fingerprint, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			platform = excluded.platform,
			title_id = excluded.title_id,
			source_path = excluded.source_path,
			fingerprint = excluded.fingerprint,
			refreshed_at = excluded.refreshed_at
	`, src.GameID.String(), src.Platform, src.TitleID, src.SourcePath, src.Fingerprint, toUnix(refreshed))
	if err != nil {
		return fmt.Errorf("failed to record source for %s: %w", src.GameID, err)
	}
	return nil
}

// GetSource returns the source record for a game, or nil if none is stored.
func (r *achievementRepository) GetSource(ctx context.Context, gameID uuid.UUID) (*models.TitleSource, error) {
	src := &models.TitleSource{GameID: gameID}
	var refreshed int64
	err := r.db.QueryRowContext(ctx, `
		SELECT platform, title_id, source_path, fingerprint, refreshed_at
		FROM title_sources WHERE game_id = ?
	`, gameID.String()).Scan(&src.Platform, &src.TitleID, &src.SourcePath, &src.Fingerprint, &refreshed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source for %s: %w", gameID, err)
	}
	src.RefreshedAt = fromUnix(refreshed)
	return src, nil
}

// GamesByTitleID returns the games whose recorded source is titleID on platform.
func (r *achievementRepository) GamesByTitleID(ctx context.Context, platform, titleID string) ([]achievements.Game, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.game_id, s.name
		FROM title_sources t
		JOIN achievement_sets s ON s.game_id = t.game_id
		WHERE t.platform = ? AND t.title_id = ?
		ORDER BY s.name
	`, platform, titleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query games for %s: %w", titleID, err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	var games []achievements.Game
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		gameID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid game id %q: %w", id, err)
		}
		games = append(games, achievements.Game{ID: gameID, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}
