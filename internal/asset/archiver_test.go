package asset

import (
	"context"
	"io"
	"log/slog"
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
)

type archiveFixture struct {
	repo *repository.Repository
	inv  *backend.Memory
	ar   *Archiver
}

func newFixture(t *testing.T, driverName string) *archiveFixture {
	t.Helper()
	d := mustDriver(t, driverName)
	repo, err := repository.New(d, config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, repo.EnsurePaths())
	inv := backend.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &archiveFixture{repo: repo, inv: inv, ar: NewArchiver(repo, inv, log, nil)}
}

func (fx *archiveFixture) stage(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(fx.repo.StagePath(), name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

// TestArchive_Normal stages one MOD08 granule and checks the canonical
// placement under tiles/h01v01/2017/001.
func TestArchive_Normal(t *testing.T) {
	fx := newFixture(t, "modis")
	ctx := context.Background()
	name := "MOD08_D3.A2017001.006.2017012060145.hdf"
	src := fx.stage(t, name, []byte("granule"))

	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	require.Len(t, res.Archived, 1)
	assert.Equal(t, "MOD08", res.Archived[0].Type.Name)
	assert.Empty(t, res.Overwritten)

	dest := filepath.Join(fx.repo.Root(), "tiles", "h01v01", "2017", "001", name)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, src, "source leaves stage after archival")

	// The index saw the link.
	recs, err := fx.inv.AssetSearch(ctx, backend.SearchCriteria{AssetType: "MOD08"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, dest, recs[0].Name)
	assert.Equal(t, "h01v01", recs[0].Tile)
}

func TestArchive_Keep(t *testing.T) {
	fx := newFixture(t, "modis")
	name := "MOD08_D3.A2017001.006.2017012060145.hdf"
	src := fx.stage(t, name, []byte("granule"))

	res, err := fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{Keep: true})
	require.NoError(t, err)
	require.Len(t, res.Archived, 1)
	assert.FileExists(t, src)

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	date := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	canonical, err := os.Stat(filepath.Join(fx.repo.DataPath("h01v01", date), name))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, canonical), "hard link, not a copy")
}

func TestArchive_Idempotent(t *testing.T) {
	fx := newFixture(t, "modis")
	ctx := context.Background()
	name := "MOD08_D3.A2017001.006.2017012060145.hdf"
	fx.stage(t, name, []byte("granule"))

	_, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)

	// The same file lands in stage again.
	fx.stage(t, name, []byte("granule"))
	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Archived)
	assert.Equal(t, 1, res.Present)

	date := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, err := os.ReadDir(fx.repo.DataPath("h01v01", date))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "exactly one archived copy")
}

func TestArchive_Gatekeeper(t *testing.T) {
	fx := newFixture(t, "landsat")
	ctx := context.Background()
	older := "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz"
	newer := "LC08_L1TP_012030_20170801_20180115_01_T1.tar.gz"
	writeTarGz(t, filepath.Join(fx.repo.StagePath(), older), map[string]string{"b4.tif": "v1"})

	_, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)

	date := time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)
	dataDir := fx.repo.DataPath("012030", date)
	product := filepath.Join(dataDir, "012030_2017213_LC8_ndvi-toa.tif")
	require.NoError(t, os.WriteFile(product, []byte("ndvi"), 0o644))

	// Without update, even a strictly newer candidate is refused and
	// nothing is disturbed.
	src := filepath.Join(fx.repo.StagePath(), newer)
	writeTarGz(t, src, map[string]string{"b4.tif": "v2"})
	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Archived)
	assert.Equal(t, 1, res.Gatekept)
	assert.FileExists(t, filepath.Join(dataDir, older))
	assert.NoFileExists(t, filepath.Join(dataDir, newer))
	assert.FileExists(t, product)
	assert.FileExists(t, src, "refused candidates stay in stage")
}

// A different file carrying the same version is not "already present"; the
// gatekeeper holds it back so the discrepancy is visible to the operator.
func TestArchive_EqualVersionDifferentFileIsGatekept(t *testing.T) {
	fx := newFixture(t, "landsat")
	ctx := context.Background()
	archived := "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz"
	twin := "LC08_L1GT_012030_20170801_20170811_01_T1.tar.gz"
	writeTarGz(t, filepath.Join(fx.repo.StagePath(), archived), map[string]string{"b4.tif": "v1"})
	_, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)

	src := filepath.Join(fx.repo.StagePath(), twin)
	writeTarGz(t, src, map[string]string{"b4.tif": "other"})
	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{Update: true})
	require.NoError(t, err)
	assert.Empty(t, res.Archived)
	assert.Equal(t, 1, res.Gatekept)
	assert.Zero(t, res.Present)

	date := time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)
	dataDir := fx.repo.DataPath("012030", date)
	assert.FileExists(t, filepath.Join(dataDir, archived))
	assert.NoFileExists(t, filepath.Join(dataDir, twin))
	assert.FileExists(t, src, "the held-back file stays in stage")
}

// TestArchive_UpdateReplaces covers version replacement: the older
// processing run and its dependent product files disappear before the new
// version is linked.
func TestArchive_UpdateReplaces(t *testing.T) {
	fx := newFixture(t, "landsat")
	ctx := context.Background()
	older := "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz"
	newer := "LC08_L1TP_012030_20170801_20180115_01_T1.tar.gz"
	writeTarGz(t, filepath.Join(fx.repo.StagePath(), older), map[string]string{"b4.tif": "v1"})
	_, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)

	date := time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)
	dataDir := fx.repo.DataPath("012030", date)
	product := filepath.Join(dataDir, "012030_2017213_LC8_ndvi-toa.tif")
	require.NoError(t, os.WriteFile(product, []byte("ndvi"), 0o644))
	require.NoError(t, fx.inv.UpdateOrAddProduct(ctx, backend.ProductRecord{
		Name: product, Driver: "landsat", Product: "ndvi-toa", Sensor: "LC8",
		Tile: "012030", Date: date,
	}))

	writeTarGz(t, filepath.Join(fx.repo.StagePath(), newer), map[string]string{"b4.tif": "v2"})
	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{Update: true})
	require.NoError(t, err)
	require.Len(t, res.Archived, 1)
	require.Len(t, res.Overwritten, 1)
	assert.Equal(t, older, filepath.Base(res.Overwritten[0].Filename))

	assert.NoFileExists(t, filepath.Join(dataDir, older))
	assert.FileExists(t, filepath.Join(dataDir, newer))
	assert.NoFileExists(t, product, "stale product swept before replacement")

	prods, err := fx.inv.ProductSearch(ctx, backend.SearchCriteria{})
	require.NoError(t, err)
	assert.Empty(t, prods, "stale product row removed")

	recs, err := fx.inv.AssetSearch(ctx, backend.SearchCriteria{AssetType: "C1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, filepath.Join(dataDir, newer), recs[0].Name)
}

// TestArchive_QuarantineCorrupt stages one corrupt tarball next to a good
// file; the corrupt one is quarantined and the batch still completes.
func TestArchive_QuarantineCorrupt(t *testing.T) {
	fx := newFixture(t, "landsat")
	ctx := context.Background()
	corrupt := "LC08_L1TP_033032_20170101_20170110_01_T1.tar.gz"
	good := "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz"
	fx.stage(t, corrupt, []byte("truncated garbage"))
	writeTarGz(t, filepath.Join(fx.repo.StagePath(), good), map[string]string{"b4.tif": "ok"})

	res, err := fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	require.Len(t, res.Archived, 1)
	assert.Equal(t, good, filepath.Base(res.Archived[0].Filename))
	assert.Equal(t, 1, res.Quarantined)
	assert.FileExists(t, filepath.Join(fx.repo.QuarantinePath(), corrupt))

	// Quarantining the same file again is a no-op, not an error.
	res, err = fx.ar.Archive(ctx, fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quarantined)
}

func TestArchive_QuarantineUnparseable(t *testing.T) {
	fx := newFixture(t, "modis")
	fx.stage(t, "somebody_else.dat", []byte("?"))

	res, err := fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quarantined)
	assert.Empty(t, res.Archived)
	assert.FileExists(t, filepath.Join(fx.repo.QuarantinePath(), "somebody_else.dat"))
}

func TestArchive_SingleFile(t *testing.T) {
	fx := newFixture(t, "modis")
	src := fx.stage(t, "MOD08_D3.A2017032.006.2017040000000.hdf", []byte("g"))

	res, err := fx.ar.Archive(context.Background(), src, Options{})
	require.NoError(t, err)
	require.Len(t, res.Archived, 1)
	assert.FileExists(t, filepath.Join(
		fx.repo.DataPath("h01v01", time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC)),
		"MOD08_D3.A2017032.006.2017040000000.hdf"))
}

func TestArchive_SidecarsCleanedUp(t *testing.T) {
	fx := newFixture(t, "landsat")
	name := "LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz"
	src := filepath.Join(fx.repo.StagePath(), name)
	writeTarGz(t, src, map[string]string{"b4.tif": "x"})

	// A datafile listing leaves an index sidecar in stage.
	a, err := Parse(mustDriver(t, "landsat"), src)
	require.NoError(t, err)
	_, err = a.Datafiles()
	require.NoError(t, err)
	require.FileExists(t, src+IndexExt)

	res, err := fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Archived, 1)
	assert.NoFileExists(t, src)
	assert.NoFileExists(t, src+IndexExt, "sidecars go with the source")
	// The sidecar was never a candidate of its own.
	assert.Equal(t, 1, res.Found)
}

func TestArchive_SkipsInFlightDownloads(t *testing.T) {
	fx := newFixture(t, "modis")
	partial := filepath.Join(fx.repo.StagePath(), ".download-5c9f4c2a")
	require.NoError(t, os.WriteFile(partial, []byte("half a granule"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(fx.repo.StagePath(), "MOD08_D3.A2017001.006.2017012060145.hdf"),
		[]byte("g"), 0o644))

	res, err := fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found, "temp download names are not candidates")
	require.Len(t, res.Archived, 1)
	assert.Zero(t, res.Quarantined)
	assert.FileExists(t, partial, "the in-flight download is left for its writer")
}

func TestArchive_RecursiveBatch(t *testing.T) {
	fx := newFixture(t, "modis")
	sub := filepath.Join(fx.repo.StagePath(), "drop1")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(sub, "MOD08_D3.A2017001.006.2017012060145.hdf"), []byte("g"), 0o644))

	res, err := fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Archived, "non-recursive run ignores subdirectories")

	res, err = fx.ar.Archive(context.Background(), fx.repo.StagePath(), Options{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, res.Archived, 1)
}

func TestArchive_MultiDateAsset(t *testing.T) {
	// An unregistered driver whose asset carries two dates archives one
	// link per date.
	d := &driver.Driver{
		Name:       "span",
		DateFormat: "%Y%m%d",
		Assets: map[string]*driver.AssetType{
			"SPAN": {
				Name:      "SPAN",
				Pattern:   regexp.MustCompile(`^span_(?P<d1>\d{8})_(?P<d2>\d{8})\.dat$`),
				Container: driver.ContainerNone,
				Parse: func(name string, groups map[string]string) (*driver.ParsedName, error) {
					d1, err := driver.ParseDate("%Y%m%d", groups["d1"])
					if err != nil {
						return nil, err
					}
					d2, err := driver.ParseDate("%Y%m%d", groups["d2"])
					if err != nil {
						return nil, err
					}
					return &driver.ParsedName{
						Tile: "global", Sensor: "SPN",
						Dates: []time.Time{d1, d2}, Version: 1,
					}, nil
				},
			},
		},
	}
	repo, err := repository.New(d, config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, repo.EnsurePaths())
	ar := NewArchiver(repo, backend.NewMemory(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	name := "span_20170101_20170102.dat"
	require.NoError(t, os.WriteFile(filepath.Join(repo.StagePath(), name), []byte("x"), 0o644))
	res, err := ar.Archive(context.Background(), repo.StagePath(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Archived, 1)
	assert.FileExists(t, filepath.Join(repo.DataPath("global",
		time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)), name))
	assert.FileExists(t, filepath.Join(repo.DataPath("global",
		time.Date(2017, 1, 2, 0, 0, 0, 0, time.UTC)), name))
}
