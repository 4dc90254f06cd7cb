package asset

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

func mustDriver(t *testing.T, name string) *driver.Driver {
	t.Helper()
	d, err := driver.Lookup(name)
	require.NoError(t, err)
	return d
}

// writeTarGz builds a small gzipped tar at path.
func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg,
		}))
		_, err = tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestParse(t *testing.T) {
	d := mustDriver(t, "landsat")
	a, err := Parse(d, "/stage/LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "C1", a.Type.Name)
	assert.Equal(t, "012030", a.Tile)
	assert.Equal(t, "LC8", a.Sensor)
	assert.True(t, a.Date().Equal(time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)))

	_, err = Parse(d, "/stage/unrelated.txt")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnparseableAsset))
}

func TestUpdated(t *testing.T) {
	d := mustDriver(t, "landsat")
	older, err := Parse(d, "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	require.NoError(t, err)
	newer, err := Parse(d, "LC08_L1TP_012030_20170801_20180115_01_T1.tar.gz")
	require.NoError(t, err)

	assert.True(t, older.Updated(newer))
	assert.False(t, newer.Updated(older))
	assert.False(t, older.Updated(older), "equal version is not an update")

	// Different tile is a different identity entirely.
	elsewhere, err := Parse(d, "LC08_L1TP_033032_20170801_20180115_01_T1.tar.gz")
	require.NoError(t, err)
	assert.False(t, older.Updated(elsewhere))
}

func TestDatafiles_TarIndexRoundTrip(t *testing.T) {
	d := mustDriver(t, "landsat")
	dir := t.TempDir()
	path := filepath.Join(dir, "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	writeTarGz(t, path, map[string]string{
		"LC08_B4.TIF": "red",
		"LC08_B5.TIF": "nir",
		"LC08_MTL.txt": "meta",
	})
	a, err := Parse(d, path)
	require.NoError(t, err)

	names, err := a.Datafiles()
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.FileExists(t, path+IndexExt)

	// With the index cached the container is never reopened.
	require.NoError(t, os.Remove(path))
	again, err := a.Datafiles()
	require.NoError(t, err)
	assert.Equal(t, names, again)
}

func TestDatafiles_Zip(t *testing.T) {
	d := mustDriver(t, "prism")
	dir := t.TempDir()
	path := filepath.Join(dir, "PRISM_ppt_stable_4kmD2_19820101_bil.zip")
	writeZip(t, path, map[string]string{"PRISM_ppt.bil": "data", "PRISM_ppt.hdr": "hdr"})
	a, err := Parse(d, path)
	require.NoError(t, err)

	names, err := a.Datafiles()
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestDatafiles_CorruptTar(t *testing.T) {
	d := mustDriver(t, "landsat")
	dir := t.TempDir()
	path := filepath.Join(dir, "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not a tarball"), 0o644))
	a, err := Parse(d, path)
	require.NoError(t, err)

	_, err = a.Datafiles()
	assert.True(t, errors.HasCode(err, errors.ErrCodeCorruptContainer))
	assert.NoFileExists(t, path+IndexExt, "a failed inspection must not cache")
	assert.Error(t, a.Verify())
}

// manifestDriver is a minimal unregistered driver exercising the JSON
// manifest container kind.
func manifestDriver() *driver.Driver {
	return &driver.Driver{
		Name:       "manifested",
		DateFormat: "%Y%m%d",
		Assets: map[string]*driver.AssetType{
			"MAN": {
				Name:      "MAN",
				Pattern:   regexp.MustCompile(`^scene_(?P<date>\d{8})\.json$`),
				Container: driver.ContainerManifest,
				Parse: func(name string, groups map[string]string) (*driver.ParsedName, error) {
					date, err := driver.ParseDate("%Y%m%d", groups["date"])
					if err != nil {
						return nil, err
					}
					return &driver.ParsedName{
						Tile: "global", Sensor: "MAN",
						Dates: []time.Time{date}, Version: 1,
					}, nil
				},
			},
		},
	}
}

func TestDatafiles_Manifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene_20170101.json")
	require.NoError(t, os.WriteFile(path, []byte(`["b04.tif","b08.tif"]`), 0o644))

	a, err := Parse(manifestDriver(), path)
	require.NoError(t, err)
	names, err := a.Datafiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"b04.tif", "b08.tif"}, names)

	require.NoError(t, os.WriteFile(path, []byte(`{"oops":`), 0o644))
	require.NoError(t, os.Remove(path+IndexExt))
	_, err = a.Datafiles()
	assert.True(t, errors.HasCode(err, errors.ErrCodeCorruptContainer))
}

func TestExtract(t *testing.T) {
	d := mustDriver(t, "landsat")
	dir := t.TempDir()
	path := filepath.Join(dir, "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	writeTarGz(t, path, map[string]string{
		"LC08_B4.TIF": "red",
		"LC08_B5.TIF": "nir",
	})
	a, err := Parse(d, path)
	require.NoError(t, err)

	dest := filepath.Join(dir, "work")
	paths, err := a.Extract([]string{"LC08_B4.TIF"}, dest)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	body, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "red", string(body))

	// Pre-existing destination files are accepted as already extracted,
	// not rewritten.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "LC08_B5.TIF"), []byte("stale"), 0o644))
	paths, err = a.Extract([]string{"LC08_B4.TIF", "LC08_B5.TIF"}, dest)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	body, err = os.ReadFile(filepath.Join(dest, "LC08_B5.TIF"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(body))

	// No temp directories survive.
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "leftover %s", e.Name())
	}

	_, err = a.Extract([]string{"NOPE.TIF"}, dest)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExtractFailed))
}

func TestDiscover(t *testing.T) {
	d := mustDriver(t, "landsat")
	repo, err := repository.New(d, config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, repo.EnsurePaths())
	date := time.Date(2015, 12, 18, 0, 0, 0, 0, time.UTC)
	dir := repo.DataPath("012030", date)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "LC80120302015352LGN01.tar.gz"), []byte("x"), 0o644))

	inv := backend.NewFilesystem(repo)
	ctx := context.Background()

	assets, err := Discover(ctx, inv, d, "012030", date, "")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "DN", assets[0].Type.Name)
	assert.Equal(t, filepath.Join(dir, "LC80120302015352LGN01.tar.gz"), assets[0].Filename)

	assets, err = Discover(ctx, inv, d, "012030", date, "C1")
	require.NoError(t, err)
	assert.Empty(t, assets)

	// Two archived copies of one asset type means the archive invariant
	// broke; surfaced, never auto-resolved.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "LC80120302015352LGN02.tar.gz"), []byte("y"), 0o644))
	_, err = Discover(ctx, inv, d, "012030", date, "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateAsset))
}
