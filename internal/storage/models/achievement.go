package models

import (
	"time"

	"github.com/google/uuid"
)

// Platforms a title source can come from.
const (
	PlatformXbox360 = "xbox360"
	PlatformShadPS4 = "shadps4"
)

// SetSummary is the per-game row of the achievement store.
type SetSummary struct {
	GameID          uuid.UUID
	TitleKey        string
	Name            string
	DateLastRefresh time.Time
	IsManual        bool
	ItemCount       int
	UnlockedCount   int
	UpdatedAt       time.Time
}

// TitleSource records which emulator file a game's achievements were last
// read from.
type TitleSource struct {
	GameID      uuid.UUID
	Platform    string // xbox360, shadps4
	TitleID     string
	SourcePath  string
	Fingerprint string // hex content hash of SourcePath at refresh time
	RefreshedAt time.Time
}
