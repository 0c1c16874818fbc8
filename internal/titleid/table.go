// Package titleid maps game display names to Xbox 360 title identifiers.
package titleid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

var (
	// ErrEmptyTable is returned by Load when the file holds no titles.
	ErrEmptyTable = errors.New("title id table is empty")

	// ErrUnknownTitle means the game name is not in the table.
	ErrUnknownTitle = errors.New("game name not in title id table")

	// ErrNoProfileData means none of the title's GPD files exist yet.
	ErrNoProfileData = errors.New("no gpd file for title")
)

// Table is a name to title-id lookup. The zero value is an empty table.
type Table struct {
	byName map[string][]string
	byID   map[string][]string
}

// Load reads a table file of the form {"Game Name": ["4D5307E6", ...]}.
// Comments and trailing commas are allowed.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read title id table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes table file contents.
func Parse(data []byte) (*Table, error) {
	var raw map[string][]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parse title id table: %w", err)
	}
	t := New(raw)
	if t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// New builds a table from a name to ids mapping.
func New(entries map[string][]string) *Table {
	t := &Table{
		byName: make(map[string][]string, len(entries)),
		byID:   make(map[string][]string),
	}
	for name, ids := range entries {
		for _, id := range ids {
			id = strings.ToUpper(strings.TrimSpace(id))
			if id == "" {
				continue
			}
			t.byName[name] = append(t.byName[name], id)
			t.byID[id] = append(t.byID[id], name)
		}
	}
	for _, names := range t.byID {
		sort.Strings(names)
	}
	return t
}

// Len returns the number of game names in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byName)
}

// Candidates returns the title ids listed for name, in file order.
func (t *Table) Candidates(name string) []string {
	if t == nil {
		return nil
	}
	return t.byName[name]
}

// GamesFor returns the game names that list id.
func (t *Table) GamesFor(id string) []string {
	if t == nil {
		return nil
	}
	return t.byID[strings.ToUpper(id)]
}

// Resolve returns the first candidate id for name whose <id>.gpd exists in
// profileDir.
func (t *Table) Resolve(name, profileDir string) (string, error) {
	ids := t.Candidates(name)
	if len(ids) == 0 {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownTitle)
	}
	for _, id := range ids {
		if _, err := os.Stat(GPDPath(profileDir, id)); err == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("%q (%s): %w", name, strings.Join(ids, ", "), ErrNoProfileData)
}

// GPDPath returns the profile GPD path for id.
func GPDPath(profileDir, id string) string {
	return filepath.Join(profileDir, id+".gpd")
}
