package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/storage/models"
	"github.com/ramonehamilton/achievement-sync/internal/storage/repository"
)

// Service provides high-level operations on the achievement store. It
// implements achievements.Store.
type Service struct {
	db           *DB
	achievements repository.AchievementRepository
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	return &Service{
		db:           db,
		achievements: repository.NewAchievementRepository(db.Conn()),
	}
}

var _ achievements.Store = (*Service)(nil)

// UpsertSet makes a committed set visible to the frontend.
func (s *Service) UpsertSet(ctx context.Context, titleKey string, set *achievements.AchievementSet) error {
	return s.achievements.UpsertSet(ctx, titleKey, set)
}

// GetSet returns the stored set for a game, or nil.
func (s *Service) GetSet(ctx context.Context, gameID uuid.UUID) (*achievements.AchievementSet, error) {
	return s.achievements.GetSet(ctx, gameID)
}

// ListSets returns every stored set summary.
func (s *Service) ListSets(ctx context.Context) ([]*models.SetSummary, error) {
	return s.achievements.ListSets(ctx)
}

// DeleteSet removes a game from the store.
func (s *Service) DeleteSet(ctx context.Context, gameID uuid.UUID) error {
	return s.achievements.DeleteSet(ctx, gameID)
}

// RecordSource stores the emulator file a game was refreshed from.
func (s *Service) RecordSource(ctx context.Context, src *models.TitleSource) error {
	return s.achievements.RecordSource(ctx, src)
}

// GetSource returns the recorded source of a game, or nil.
func (s *Service) GetSource(ctx context.Context, gameID uuid.UUID) (*models.TitleSource, error) {
	return s.achievements.GetSource(ctx, gameID)
}

// GamesByTitleID returns the games last refreshed from titleID.
func (s *Service) GamesByTitleID(ctx context.Context, platform, titleID string) ([]achievements.Game, error) {
	return s.achievements.GamesByTitleID(ctx, platform, titleID)
}

// Rebuild replaces the store contents with sets. The store is cleared in one
// transaction before the sets are written.
func (s *Service) Rebuild(ctx context.Context, sets map[string]*achievements.AchievementSet) error {
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"title_sources", "achievements", "achievement_sets"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for titleKey, set := range sets {
		if err := s.achievements.UpsertSet(ctx, titleKey, set); err != nil {
			return fmt.Errorf("failed to store %s: %w", titleKey, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}
