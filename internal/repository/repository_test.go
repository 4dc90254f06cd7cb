package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
)

func testRepo(t *testing.T, driverName string) *Repository {
	t.Helper()
	d, err := driver.Lookup(driverName)
	require.NoError(t, err)
	r, err := New(d, config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, r.EnsurePaths())
	return r
}

func TestNew_RequiresRoot(t *testing.T) {
	d, err := driver.Lookup("modis")
	require.NoError(t, err)
	_, err = New(d, config.RepoConfig{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingConfig))
}

func TestDataPath(t *testing.T) {
	r := testRepo(t, "modis")
	date := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	want := filepath.Join(r.Root(), "tiles", "h01v01", "2017", "001")
	assert.Equal(t, want, r.DataPath("h01v01", date))

	r = testRepo(t, "prism")
	want = filepath.Join(r.Root(), "tiles", "CONUS", "20170101")
	assert.Equal(t, want, r.DataPath("CONUS", date))
}

func TestParseDataPath(t *testing.T) {
	r := testRepo(t, "modis")
	date := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	tile, got, err := r.ParseDataPath(r.DataPath("h12v04", date))
	require.NoError(t, err)
	assert.Equal(t, "h12v04", tile)
	assert.True(t, got.Equal(date))

	_, _, err = r.ParseDataPath("/elsewhere/h12v04/2017/001")
	assert.Error(t, err)
	_, _, err = r.ParseDataPath(filepath.Join(r.TilesPath(), "h12v04"))
	assert.Error(t, err)
}

func TestFindTiles(t *testing.T) {
	r := testRepo(t, "modis")
	ctx := context.Background()

	tiles, err := r.FindTiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, tiles)

	for _, tile := range []string{"h12v04", "h01v01"} {
		require.NoError(t, os.MkdirAll(filepath.Join(r.TilesPath(), tile), 0o755))
	}
	// Stray files in tiles/ are not tiles.
	require.NoError(t, os.WriteFile(filepath.Join(r.TilesPath(), "README"), []byte("x"), 0o644))

	tiles, err = r.FindTiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"h01v01", "h12v04"}, tiles)
}

func TestFindDates_SkipsUnparseable(t *testing.T) {
	r := testRepo(t, "modis")
	ctx := context.Background()
	tileDir := filepath.Join(r.TilesPath(), "h01v01")
	for _, sub := range []string{"2017/001", "2017/032", "2016/366", "2017/badday", "junk/001"} {
		require.NoError(t, os.MkdirAll(filepath.Join(tileDir, sub), 0o755))
	}

	dates, err := r.FindDates(ctx, "h01v01")
	require.NoError(t, err)
	want := []time.Time{
		time.Date(2016, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.Len(t, dates, len(want))
	for i := range want {
		assert.True(t, dates[i].Equal(want[i]), "date %d: %v != %v", i, dates[i], want[i])
	}

	dates, err = r.FindDates(ctx, "no-such-tile")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestFindDates_FlatFormat(t *testing.T) {
	r := testRepo(t, "prism")
	tileDir := filepath.Join(r.TilesPath(), "CONUS")
	for _, sub := range []string{"20170101", "20161231", "notadate"} {
		require.NoError(t, os.MkdirAll(filepath.Join(tileDir, sub), 0o755))
	}
	dates, err := r.FindDates(context.Background(), "CONUS")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.True(t, dates[0].Before(dates[1]))
}

func TestSetting_FallbackChain(t *testing.T) {
	d, err := driver.Lookup("modis")
	require.NoError(t, err)
	root := t.TempDir()
	r, err := New(d, config.RepoConfig{
		Repository: root,
		Username:   "nobody",
		Extra:      map[string]string{"collection": "061"},
	})
	require.NoError(t, err)

	// Configured values win.
	v, err := r.Setting("username")
	require.NoError(t, err)
	assert.Equal(t, "nobody", v)
	v, err = r.Setting("collection")
	require.NoError(t, err)
	assert.Equal(t, "061", v)

	// Unconfigured keys with computed defaults fall through to them.
	v, err = r.Setting("tiles")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "vector", "modis_tiles.geojson"), v)

	// Nothing configured, no default.
	_, err = r.Setting("password")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownSetting))
	_, err = r.Setting("no-such-key")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownSetting))
}

func TestSetting_ConfiguredTilesWins(t *testing.T) {
	d, err := driver.Lookup("modis")
	require.NoError(t, err)
	r, err := New(d, config.RepoConfig{Repository: t.TempDir(), Tiles: "/data/grids/modis.geojson"})
	require.NoError(t, err)
	v, err := r.Setting("tiles")
	require.NoError(t, err)
	assert.Equal(t, "/data/grids/modis.geojson", v)
}
