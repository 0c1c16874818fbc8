// Package gpd turns Xenia profile GPD files into achievement records.
//
// A GPD file is an XDBF container. Section 1 entries describe achievements and
// section 2 entries carry their icons; everything else is ignored.
package gpd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/xdbf"
)

// achievementMagic is the leading u32 of every section 1 payload.
const achievementMagic = 0x1C

// IconSink stores icon blobs for a title.
type IconSink interface {
	Put(titleID, name string, data []byte) (string, error)
	Path(titleID, name string) string
}

// Decoder decodes the GPD for one title.
type Decoder struct {
	// TitleID is the 8-hex-digit title identifier (the GPD file stem).
	TitleID string

	// Icons receives section 2 blobs. Optional.
	Icons IconSink

	// LockedIcon is used as the locked-state icon of every achievement.
	LockedIcon string

	Logger *slog.Logger
}

// TitleIDFromPath returns the title identifier encoded in a GPD file name.
func TitleIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// IconName returns the cache file name for an image resource.
func IconName(imageID uint64) string {
	return strconv.FormatUint(imageID, 10) + ".png"
}

// DecodeFile reads and decodes the GPD at path.
func (d *Decoder) DecodeFile(path string) ([]achievements.Achievement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gpd: %w", err)
	}
	return d.Decode(data)
}

// Decode decodes buf. Any malformed achievement entry fails the whole file
// with an error wrapping xdbf.ErrMalformedContainer; icon writes are best
// effort and never fail the decode.
func (d *Decoder) Decode(buf []byte) ([]achievements.Achievement, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	container, err := xdbf.Parse(buf)
	if err != nil {
		return nil, err
	}

	var result []achievements.Achievement
	for _, entry := range container.Entries {
		switch entry.Section {
		case xdbf.SectionAchievement:
			a, err := d.decodeAchievement(entry, logger)
			if err != nil {
				return nil, fmt.Errorf("%w: achievement %d: %w", xdbf.ErrMalformedContainer, entry.ID, err)
			}
			result = append(result, a)

		case xdbf.SectionImage:
			d.writeIcon(entry, logger)

		default:
			logger.Debug("Skipping GPD entry", "title", d.TitleID, "section", entry.Section, "id", entry.ID)
		}
	}

	logger.Debug("Decoded GPD", "title", d.TitleID, "entries", len(container.Entries), "achievements", len(result))
	return result, nil
}

// decodeAchievement reads one section 1 payload. Field order is fixed; a
// locked achievement carries a second description after the first, which
// must be consumed to stay aligned.
func (d *Decoder) decodeAchievement(entry xdbf.Entry, logger *slog.Logger) (achievements.Achievement, error) {
	r := xdbf.NewReader(entry.Payload)

	magic, err := r.U32()
	if err != nil {
		return achievements.Achievement{}, err
	}
	if magic != achievementMagic {
		logger.Debug("Unexpected achievement magic", "title", d.TitleID, "id", entry.ID, "magic", magic)
	}
	if _, err := r.U32(); err != nil { // id
		return achievements.Achievement{}, err
	}
	imageID, err := r.U32()
	if err != nil {
		return achievements.Achievement{}, err
	}
	score, err := r.U32()
	if err != nil {
		return achievements.Achievement{}, err
	}
	if _, err := r.U32(); err != nil { // flags
		return achievements.Achievement{}, err
	}
	filetime, err := r.U64()
	if err != nil {
		return achievements.Achievement{}, err
	}
	name, err := r.UTF16StringZ()
	if err != nil {
		return achievements.Achievement{}, fmt.Errorf("name: %w", err)
	}
	description, err := r.UTF16StringZ()
	if err != nil {
		return achievements.Achievement{}, fmt.Errorf("description: %w", err)
	}

	a := achievements.Achievement{
		APIName:    strconv.FormatUint(entry.ID, 10),
		Name:       name,
		GamerScore: score,
		Percent:    achievements.PercentFromScore(score),
		URLLocked:  d.LockedIcon,
	}
	if d.Icons != nil {
		a.URLUnlocked = d.Icons.Path(d.TitleID, IconName(uint64(imageID)))
	}

	if filetime != 0 {
		unlocked, err := xdbf.FiletimeToTime(filetime)
		if err != nil {
			return achievements.Achievement{}, err
		}
		a.DateUnlocked = &unlocked
		a.Description = description
		return a, nil
	}

	// Locked: the first string is the unlocked text.
	lockedDescription, err := r.UTF16StringZ()
	if err != nil {
		return achievements.Achievement{}, fmt.Errorf("locked description: %w", err)
	}
	a.Description = lockedDescription
	return a, nil
}

func (d *Decoder) writeIcon(entry xdbf.Entry, logger *slog.Logger) {
	if d.Icons == nil {
		return
	}
	if _, err := d.Icons.Put(d.TitleID, IconName(entry.ID), entry.Payload); err != nil {
		logger.Warn("Failed to write achievement icon", "title", d.TitleID, "id", entry.ID, "error", err)
	}
}

// IsMalformed reports whether err came from a corrupt GPD file.
func IsMalformed(err error) bool {
	return errors.Is(err, xdbf.ErrMalformedContainer)
}
