// Package achievements holds the normalized achievement record model shared by
// every emulator source, plus the merge and atomic persistence steps that run
// after a decode.
package achievements

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// gameNamespace scopes name-derived game identifiers.
var gameNamespace = uuid.MustParse("6f1f3c2a-6d0e-4a43-9a53-3b0c8c8d7e21")

// Game identifies a library entry that achievements are attached to.
type Game struct {
	ID   uuid.UUID
	Name string
}

// NewGame returns a Game whose ID is derived from its name, so the same title
// always maps to the same record-set file.
func NewGame(name string) Game {
	return Game{ID: GameID(name), Name: name}
}

// GameID derives a stable identifier for a game name.
func GameID(name string) uuid.UUID {
	return uuid.NewSHA1(gameNamespace, []byte(strings.TrimSpace(name)))
}

// Achievement is one normalized achievement or trophy.
type Achievement struct {
	APIName      string     `json:"api_name"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	IsHidden     bool       `json:"is_hidden"`
	DateUnlocked *time.Time `json:"date_unlocked"`
	GamerScore   uint32     `json:"gamer_score"`
	Percent      float64    `json:"percent"`
	URLUnlocked  string     `json:"url_unlocked"`
	URLLocked    string     `json:"url_locked"`
}

// Unlocked reports whether the achievement carries an unlock time.
func (a Achievement) Unlocked() bool {
	return a.DateUnlocked != nil
}

// AchievementSet is the title-scoped collection persisted per game.
type AchievementSet struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	DateLastRefresh time.Time     `json:"date_last_refresh"`
	IsManual        bool          `json:"is_manual"`
	Items           []Achievement `json:"items"`
}

// UnlockedCount returns how many items are unlocked.
func (s *AchievementSet) UnlockedCount() int {
	n := 0
	for _, a := range s.Items {
		if a.Unlocked() {
			n++
		}
	}
	return n
}

// Find returns the item with the given name (case-sensitive).
func (s *AchievementSet) Find(name string) (Achievement, bool) {
	for _, a := range s.Items {
		if a.Name == name {
			return a, true
		}
	}
	return Achievement{}, false
}
