package refresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/achievement-sync/internal/achievements"
	"github.com/ramonehamilton/achievement-sync/internal/iconcache"
	"github.com/ramonehamilton/achievement-sync/internal/metrics"
	"github.com/ramonehamilton/achievement-sync/internal/shadps4"
	"github.com/ramonehamilton/achievement-sync/internal/storage"
	"github.com/ramonehamilton/achievement-sync/internal/storage/models"
	"github.com/ramonehamilton/achievement-sync/internal/titleid"
	"github.com/ramonehamilton/achievement-sync/internal/xdbf"
	"github.com/ramonehamilton/achievement-sync/internal/xdbf/xdbftest"
)

const haloTitleID = "4D5307E6"

var (
	refreshTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	unlockTime  = time.Date(2010, 6, 15, 12, 30, 45, 0, time.UTC)
)

type fixture struct {
	profileDir string
	installDir string
	icons      *iconcache.Cache
	store      *storage.Service
	persister  *achievements.Persister
	metrics    *metrics.RefreshMetrics
	refresher  *Refresher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	f := &fixture{
		profileDir: filepath.Join(base, "profile"),
		installDir: filepath.Join(base, "shadps4"),
	}
	require.NoError(t, os.MkdirAll(f.profileDir, 0o755))

	icons, err := iconcache.NewCache(iconcache.CacheOptions{Root: filepath.Join(base, "icons")})
	require.NoError(t, err)
	f.icons = icons

	db, err := storage.Open(storage.DefaultConfig(filepath.Join(base, "achievements.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f.store = storage.NewService(db)

	f.metrics = metrics.NewRefreshMetrics()
	f.persister = achievements.NewPersister(achievements.PersisterConfig{
		Dir:   filepath.Join(base, "records"),
		Store: f.store,
	})

	r, err := New(Config{
		Xenia: XeniaConfig{
			Enabled:    true,
			ProfileDir: f.profileDir,
			Titles:     titleid.New(map[string][]string{"Halo 3": {"FFFFFFFF", haloTitleID}}),
			Icons:      icons,
			LockedIcon: "locked.png",
		},
		ShadPS4: shadps4.NewSource(shadps4.SourceConfig{
			InstallDir: f.installDir,
			Icons:      icons,
			Location:   time.UTC,
			Now:        func() time.Time { return refreshTime },
		}),
		Merger:    &achievements.Merger{Now: func() time.Time { return refreshTime }},
		Persister: f.persister,
		Sources:   f.store,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	f.refresher = r
	return f
}

func (f *fixture) writeGPD(t *testing.T, unlocked bool) []byte {
	t.Helper()
	first := xdbftest.Achievement{
		ID: 1, ImageID: 7, Score: 30,
		Name: "Finish the Fight", UnlockedDesc: "Completed the campaign.", LockedDesc: "Complete the campaign.",
	}
	if unlocked {
		first.UnlockFiletime = xdbf.TimeToFiletime(unlockTime)
	}
	second := xdbftest.Achievement{
		ID: 2, ImageID: 8, Score: 99,
		Name: "Hidden Skull", UnlockedDesc: "Found it.", LockedDesc: "???",
	}

	b := &xdbftest.Builder{}
	b.Add(xdbf.SectionAchievement, 1, first.Payload()).
		Add(xdbf.SectionAchievement, 2, second.Payload()).
		Add(xdbf.SectionImage, 7, []byte("\x89PNG seven")).
		Add(xdbf.SectionImage, 8, []byte("\x89PNG eight"))
	data := b.Bytes()

	require.NoError(t, os.WriteFile(titleid.GPDPath(f.profileDir, haloTitleID), data, 0o644))
	return data
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not configured", StatusNotConfigured.String())
	assert.Equal(t, "no data", StatusNoData.String())
	assert.Equal(t, "updated", StatusUpdated.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestNew_RequiresPersister(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	game := achievements.NewGame("Halo 3")
	assert.Equal(t, game.ID.String(), Key(game))
	assert.Equal(t, game.ID.String(), Key(achievements.Game{Name: "Halo 3"}))
}

func TestRefreshXbox360_NotConfigured(t *testing.T) {
	persister := achievements.NewPersister(achievements.PersisterConfig{Dir: t.TempDir()})
	profileDir := t.TempDir()
	titles := titleid.New(map[string][]string{"Halo 3": {haloTitleID}})

	tests := []struct {
		name  string
		xenia XeniaConfig
	}{
		{"disabled", XeniaConfig{Enabled: false, ProfileDir: profileDir, Titles: titles}},
		{"no profile dir", XeniaConfig{Enabled: true, Titles: titles}},
		{"missing profile dir", XeniaConfig{Enabled: true, ProfileDir: filepath.Join(profileDir, "gone"), Titles: titles}},
		{"no title table", XeniaConfig{Enabled: true, ProfileDir: profileDir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(Config{Xenia: tt.xenia, Persister: persister})
			require.NoError(t, err)

			res, err := r.RefreshXbox360(context.Background(), achievements.NewGame("Halo 3"))
			require.NoError(t, err)
			assert.Equal(t, StatusNotConfigured, res.Status)
		})
	}
}

func TestRefreshXbox360_NoData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.refresher.RefreshXbox360(ctx, achievements.NewGame("Perfect Dark Zero"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)

	// Known title, but no GPD in the profile.
	res, err = f.refresher.RefreshXbox360(ctx, achievements.NewGame("Halo 3"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)
}

func TestRefreshXbox360_Updated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := f.writeGPD(t, true)
	game := achievements.NewGame("Halo 3")

	res, err := f.refresher.RefreshXbox360(ctx, game)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, haloTitleID, res.TitleID)

	set := res.Set
	require.NotNil(t, set)
	assert.Equal(t, game.ID, set.ID)
	assert.Equal(t, "Halo 3", set.Name)
	assert.True(t, set.IsManual)
	assert.Equal(t, refreshTime, set.DateLastRefresh)
	require.Len(t, set.Items, 2)

	first := set.Items[0]
	assert.Equal(t, "Finish the Fight", first.Name)
	assert.Equal(t, "Completed the campaign.", first.Description)
	require.NotNil(t, first.DateUnlocked)
	assert.True(t, unlockTime.Equal(*first.DateUnlocked))
	assert.Equal(t, float64(70), first.Percent)
	assert.Equal(t, f.icons.Path(haloTitleID, "7.png"), first.URLUnlocked)
	assert.Equal(t, "locked.png", first.URLLocked)

	second := set.Items[1]
	assert.Equal(t, "???", second.Description)
	assert.Nil(t, second.DateUnlocked)
	assert.Equal(t, float64(1), second.Percent)

	assert.True(t, f.icons.Exists(haloTitleID, "7.png"))
	assert.True(t, f.icons.Exists(haloTitleID, "8.png"))

	persisted, found, err := f.persister.Load(Key(game))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, persisted.Items, 2)

	stored, err := f.store.GetSet(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.UnlockedCount())

	src, err := f.store.GetSource(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, models.PlatformXbox360, src.Platform)
	assert.Equal(t, haloTitleID, src.TitleID)
	assert.Equal(t, Fingerprint(data), src.Fingerprint)
	assert.Equal(t, titleid.GPDPath(f.profileDir, haloTitleID), src.SourcePath)

	games, err := f.store.GamesByTitleID(ctx, models.PlatformXbox360, haloTitleID)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, game.ID, games[0].ID)
}

func TestRefreshXbox360_LockedDecodeKeepsUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := achievements.NewGame("Halo 3")

	f.writeGPD(t, true)
	_, err := f.refresher.RefreshXbox360(ctx, game)
	require.NoError(t, err)

	f.writeGPD(t, false)
	res, err := f.refresher.RefreshXbox360(ctx, game)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)

	first, ok := res.Set.Find("Finish the Fight")
	require.True(t, ok)
	require.NotNil(t, first.DateUnlocked)
	assert.True(t, unlockTime.Equal(*first.DateUnlocked))
	assert.Equal(t, "Completed the campaign.", first.Description)
}

func TestRefreshXbox360_MalformedKeepsPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := achievements.NewGame("Halo 3")

	f.writeGPD(t, true)
	_, err := f.refresher.RefreshXbox360(ctx, game)
	require.NoError(t, err)

	before, err := os.ReadFile(f.persister.Path(Key(game)))
	require.NoError(t, err)

	data := f.writeGPD(t, true)
	require.NoError(t, os.WriteFile(titleid.GPDPath(f.profileDir, haloTitleID), data[:len(data)-4], 0o644))

	res, err := f.refresher.RefreshXbox360(ctx, game)
	require.ErrorIs(t, err, xdbf.ErrMalformedContainer)
	assert.Equal(t, haloTitleID, res.TitleID)
	assert.Nil(t, res.Set)

	after, err := os.ReadFile(f.persister.Path(Key(game)))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	stats := f.metrics.GetStats()
	assert.Equal(t, uint64(1), stats.Updated)
	assert.Equal(t, uint64(1), stats.Failures)
}

const bloodborneTROP = `<?xml version="1.0" encoding="UTF-8"?>
<trophyconf version="1.1">
  <title-name>Bloodborne</title-name>
  <trophy id="000" hidden="no" ttype="P" unlockstate="true" timestamp="63844884000250999">
    <name>Bloodborne</name>
    <detail>All trophies obtained.</detail>
  </trophy>
  <trophy id="001" hidden="yes" ttype="B">
    <name>Yharnam Sunrise</name>
    <detail>You lived through the night.</detail>
  </trophy>
</trophyconf>
`

func TestRefreshShadPS4(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := achievements.NewGame("Bloodborne")

	res, err := f.refresher.RefreshShadPS4(ctx, game)
	require.NoError(t, err)
	assert.Equal(t, StatusNotConfigured, res.Status, "no game_data directory yet")

	xmlPath := shadps4.TrophyXMLPath(shadps4.TrophyDir(shadps4.GameDataDir(f.installDir), "CUSA00207"))
	require.NoError(t, os.MkdirAll(filepath.Dir(xmlPath), 0o755))
	require.NoError(t, os.WriteFile(xmlPath, []byte(bloodborneTROP), 0o644))

	res, err = f.refresher.RefreshShadPS4(ctx, achievements.NewGame("Demon's Souls"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)

	res, err = f.refresher.RefreshShadPS4(ctx, game)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, "CUSA00207", res.TitleID)
	require.Len(t, res.Set.Items, 2)
	assert.Equal(t, uint32(180), res.Set.Items[0].GamerScore)
	assert.Equal(t, 1, res.Set.UnlockedCount())

	fingerprint, err := FingerprintFile(xmlPath)
	require.NoError(t, err)

	src, err := f.store.GetSource(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, models.PlatformShadPS4, src.Platform)
	assert.Equal(t, xmlPath, src.SourcePath)
	assert.Equal(t, fingerprint, src.Fingerprint)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("gpd"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint([]byte("gpd")))
	assert.NotEqual(t, a, Fingerprint([]byte("gpe")))

	_, err := FingerprintFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
