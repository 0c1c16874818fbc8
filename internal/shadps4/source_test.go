package shadps4

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/achievement-sync/internal/iconcache"
)

type stubFetcher struct {
	calls    int
	rarities map[string]float64
	err      error
}

func (f *stubFetcher) FetchRarities(_ context.Context, _ string) (map[string]float64, error) {
	f.calls++
	return f.rarities, f.err
}

func newTestSource(t *testing.T, install string, fetcher RarityFetcher, now time.Time) (*Source, *iconcache.Cache) {
	t.Helper()
	icons, err := iconcache.NewCache(iconcache.CacheOptions{Root: t.TempDir()})
	require.NoError(t, err)
	src := NewSource(SourceConfig{
		InstallDir: install,
		Icons:      icons,
		Fetcher:    fetcher,
		Location:   time.UTC,
		Now:        func() time.Time { return now },
	})
	return src, icons
}

func TestSource_FindTitleID(t *testing.T) {
	install := t.TempDir()
	writeTitle(t, install, "CUSA00001", `<trophyconf><title-name>Other Game</title-name></trophyconf>`)
	writeTitle(t, install, "CUSA00002", `<trophyconf><title-name`)
	writeTitle(t, install, "CUSA00207", sampleTROP)
	require.NoError(t, os.MkdirAll(filepath.Join(GameDataDir(install), "CUSA09999"), 0o755))

	src, _ := newTestSource(t, install, nil, time.Now())
	assert.True(t, src.Configured())

	id, err := src.FindTitleID("BLOODBORNE")
	require.NoError(t, err)
	assert.Equal(t, "CUSA00207", id)

	_, err = src.FindTitleID("Demon's Souls")
	assert.True(t, errors.Is(err, ErrTitleNotFound))
}

func TestSource_NotConfigured(t *testing.T) {
	src := NewSource(SourceConfig{InstallDir: filepath.Join(t.TempDir(), "missing")})
	assert.False(t, src.Configured())
	_, err := src.FindTitleID("x")
	assert.Error(t, err)
}

func TestSource_Achievements(t *testing.T) {
	install := t.TempDir()
	trophyDir := writeTitle(t, install, "CUSA00207", sampleTROP)
	writeIcon(t, trophyDir, "TROP000.PNG", "platinum")
	writeIcon(t, trophyDir, "TROP001.PNG", "bronze")

	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{rarities: map[string]float64{"Yharnam Sunrise": 64.2}}
	src, icons := newTestSource(t, install, fetcher, now)

	titleID, items, err := src.Achievements(context.Background(), "Bloodborne")
	require.NoError(t, err)
	assert.Equal(t, "CUSA00207", titleID)
	require.Len(t, items, 4)

	plat := items[0]
	assert.Equal(t, "000", plat.APIName)
	assert.Equal(t, uint32(180), plat.GamerScore)
	assert.Equal(t, 1.0, plat.Percent)
	require.NotNil(t, plat.DateUnlocked)
	assert.True(t, plat.DateUnlocked.Equal(time.Date(2024, 3, 1, 10, 0, 0, 250_000_000, time.UTC)))
	assert.Equal(t, icons.Path("shadps4/CUSA00207", "TROP000.PNG"), plat.URLUnlocked)
	assert.Equal(t, plat.URLUnlocked, plat.URLLocked)

	data, err := os.ReadFile(plat.URLUnlocked)
	require.NoError(t, err)
	assert.Equal(t, "platinum", string(data))

	bronze := items[1]
	assert.True(t, bronze.IsHidden)
	assert.Nil(t, bronze.DateUnlocked)
	assert.Equal(t, 64.2, bronze.Percent)
	assert.Equal(t, uint32(15), bronze.GamerScore)

	gold := items[2]
	assert.Equal(t, 10.0, gold.Percent)
	assert.Empty(t, gold.URLUnlocked, "missing icon should leave the path empty")

	assert.Equal(t, 100.0, items[3].Percent)
	assert.Equal(t, 1, fetcher.calls)

	saved, err := LoadRarityCache(trophyDir)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Bloodborne", saved.GameName)
	assert.True(t, saved.LastUpdated.Equal(now))
}

func TestSource_FreshCacheSkipsFetch(t *testing.T) {
	install := t.TempDir()
	trophyDir := writeTitle(t, install, "CUSA00207", sampleTROP)
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, SaveRarityCache(trophyDir, &RarityCache{
		GameName:       "Bloodborne",
		LastUpdated:    now.Add(-48 * time.Hour),
		TrophyRarities: map[string]float64{"Father Gascoigne": 33},
	}))

	fetcher := &stubFetcher{rarities: map[string]float64{"Father Gascoigne": 99}}
	src, _ := newTestSource(t, install, fetcher, now)

	_, items, err := src.Achievements(context.Background(), "Bloodborne")
	require.NoError(t, err)
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 33.0, items[3].Percent)
}

func TestSource_FetchFailureKeepsStaleCache(t *testing.T) {
	install := t.TempDir()
	trophyDir := writeTitle(t, install, "CUSA00207", sampleTROP)
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	old := now.Add(-90 * 24 * time.Hour)
	require.NoError(t, SaveRarityCache(trophyDir, &RarityCache{
		GameName:       "Bloodborne",
		LastUpdated:    old,
		TrophyRarities: map[string]float64{"Father Gascoigne": 33},
	}))

	fetcher := &stubFetcher{err: errors.New("offline")}
	src, _ := newTestSource(t, install, fetcher, now)

	_, items, err := src.Achievements(context.Background(), "Bloodborne")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 33.0, items[3].Percent)

	cache, err := LoadRarityCache(trophyDir)
	require.NoError(t, err)
	assert.True(t, cache.LastUpdated.Equal(old), "stale cache should not be rewritten")
}

func TestSource_EmptyFetchNotSaved(t *testing.T) {
	install := t.TempDir()
	trophyDir := writeTitle(t, install, "CUSA00207", sampleTROP)

	fetcher := &stubFetcher{rarities: map[string]float64{}}
	src, _ := newTestSource(t, install, fetcher, time.Now())

	_, _, err := src.Achievements(context.Background(), "Bloodborne")
	require.NoError(t, err)

	_, err = os.Stat(RarityCachePath(trophyDir))
	assert.True(t, os.IsNotExist(err))
}
