package titleid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleTable = `{
	// Halo has a regional variant.
	"Halo 3": ["4D5307E6", "4d530877"],
	"Gears of War": ["4D5307D5"],
	/* shares an id with its bundle */
	"Gears of War Bundle": ["4D5307D5",],
}`

func writeTable(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TitleIDs.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	table, err := Load(writeTable(t, sampleTable))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Len = %d, want 3", table.Len())
	}

	got := table.Candidates("Halo 3")
	if len(got) != 2 || got[0] != "4D5307E6" || got[1] != "4D530877" {
		t.Errorf("Candidates = %v", got)
	}
	if c := table.Candidates("halo 3"); len(c) != 0 {
		t.Errorf("lookup should be case-sensitive, got %v", c)
	}

	games := table.GamesFor("4d5307d5")
	if len(games) != 2 || games[0] != "Gears of War" || games[1] != "Gears of War Bundle" {
		t.Errorf("GamesFor = %v", games)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     error
	}{
		{"empty object", `{}`, ErrEmptyTable},
		{"only blank ids", `{"A": [""]}`, ErrEmptyTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTable(t, tt.contents))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(writeTable(t, `["not", "a", "map"]`)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	profile := t.TempDir()

	if _, err := table.Resolve("Unknown Game", profile); !errors.Is(err, ErrUnknownTitle) {
		t.Errorf("expected ErrUnknownTitle, got %v", err)
	}
	if _, err := table.Resolve("Halo 3", profile); !errors.Is(err, ErrNoProfileData) {
		t.Errorf("expected ErrNoProfileData, got %v", err)
	}

	if err := os.WriteFile(GPDPath(profile, "4D530877"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := table.Resolve("Halo 3", profile)
	if err != nil || id != "4D530877" {
		t.Errorf("Resolve = %q, %v; want 4D530877", id, err)
	}

	// Earlier candidates win once present.
	if err := os.WriteFile(GPDPath(profile, "4D5307E6"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if id, _ := table.Resolve("Halo 3", profile); id != "4D5307E6" {
		t.Errorf("Resolve = %q, want 4D5307E6", id)
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if table.Len() != 0 || table.Candidates("x") != nil || table.GamesFor("x") != nil {
		t.Error("nil table should behave as empty")
	}
	if _, err := table.Resolve("x", t.TempDir()); !errors.Is(err, ErrUnknownTitle) {
		t.Errorf("expected ErrUnknownTitle, got %v", err)
	}
}
