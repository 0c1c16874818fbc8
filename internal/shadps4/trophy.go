// Package shadps4 reads trophy data written by the ShadPS4 emulator and turns
// it into achievement records.
package shadps4

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrTitleNotFound means no game_data directory holds trophies for the game.
var ErrTitleNotFound = errors.New("no trophy data for game")

// TrophyFile is the parsed TROP.XML manifest.
type TrophyFile struct {
	XMLName   xml.Name `xml:"trophyconf"`
	TitleName string   `xml:"title-name"`
	Trophies  []Trophy `xml:"trophy"`
}

// Trophy is one <trophy> element.
type Trophy struct {
	ID          string  `xml:"id,attr"`
	Hidden      string  `xml:"hidden,attr"`
	Type        string  `xml:"ttype,attr"`
	UnlockState *string `xml:"unlockstate,attr"`
	Timestamp   string  `xml:"timestamp,attr"`
	Name        string  `xml:"name"`
	Detail      string  `xml:"detail"`
}

// IsHidden reports whether the trophy is flagged hidden.
func (t Trophy) IsHidden() bool {
	return strings.EqualFold(t.Hidden, "yes")
}

// Unlocked reports whether the trophy carries an unlock state.
func (t Trophy) Unlocked() bool {
	return t.UnlockState != nil
}

// IconName returns the TROPnnn.PNG file name for the trophy.
func (t Trophy) IconName() string {
	id := t.ID
	if len(id) < 3 {
		id = strings.Repeat("0", 3-len(id)) + id
	}
	return "TROP" + id + ".PNG"
}

// GameDataDir returns the per-title data directory of an installation.
func GameDataDir(installDir string) string {
	return filepath.Join(installDir, "user", "game_data")
}

// TrophyDir returns the trophyfiles directory of a title.
func TrophyDir(gameDataDir, titleID string) string {
	return filepath.Join(gameDataDir, titleID, "trophyfiles")
}

// TrophyXMLPath returns the TROP.XML path inside a trophyfiles directory.
func TrophyXMLPath(trophyDir string) string {
	return filepath.Join(trophyDir, "trophy00", "Xml", "TROP.XML")
}

// IconPath returns the source icon path inside a trophyfiles directory.
func IconPath(trophyDir, iconName string) string {
	return filepath.Join(trophyDir, "trophy00", "Icons", iconName)
}

// ParseTrophyFile reads and parses a TROP.XML file.
func ParseTrophyFile(path string) (*TrophyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trophy file: %w", err)
	}
	var tf TrophyFile
	if err := xml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	tf.TitleName = strings.TrimSpace(tf.TitleName)
	return &tf, nil
}

// ps4Epoch is the zero point of trophy timestamps.
var ps4Epoch = time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)

// yearOffset is subtracted from the converted year; raw timestamps land this
// many years in the future.
const yearOffset = 2007

// ConvertTimestamp converts a trophy timestamp attribute (microseconds since
// 2008-01-01 UTC) to a time in loc. Empty input yields nil.
func ConvertTimestamp(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	ticks, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("trophy timestamp %q: %w", raw, err)
	}
	ms := ticks / 1000
	if ms > uint64(math.MaxInt64-ps4Epoch.UnixMilli()) {
		return nil, fmt.Errorf("trophy timestamp %q out of range", raw)
	}

	t := time.UnixMilli(ps4Epoch.UnixMilli() + int64(ms)).In(loc)
	adjusted := time.Date(t.Year()-yearOffset, t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	// Feb 29 has no counterpart in a non-leap target year.
	if adjusted.Day() != t.Day() {
		return nil, fmt.Errorf("trophy timestamp %q: %s has no date in %d", raw, t.Format("Jan 2"), t.Year()-yearOffset)
	}
	return &adjusted, nil
}
