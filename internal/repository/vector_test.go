package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
)

// Three unit-square tiles in a row; the third never intersects the queries
// below.
const testGrid = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"tileid": "T01"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"tileid": "T02"},
      "geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"tileid": "T03"},
      "geometry": {"type": "Polygon", "coordinates": [[[5,0],[6,0],[6,1],[5,1],[5,0]]]}
    }
  ]
}`

func gridRepo(t *testing.T) *Repository {
	t.Helper()
	d, err := driver.Lookup("modis")
	require.NoError(t, err)
	root := t.TempDir()
	gridPath := filepath.Join(root, "grid.geojson")
	require.NoError(t, os.WriteFile(gridPath, []byte(testGrid), 0o644))
	r, err := New(d, config.RepoConfig{Repository: root, Tiles: gridPath})
	require.NoError(t, err)
	return r
}

func mustWKT(t *testing.T, wkt string) geom.Geometry {
	t.Helper()
	g, err := geom.UnmarshalWKT(wkt)
	require.NoError(t, err)
	return g
}

func TestVectorToTiles(t *testing.T) {
	r := gridRepo(t)
	// A 1x1 query straddling T01 and T02 equally.
	query := mustWKT(t, "POLYGON((0.5 0,1.5 0,1.5 1,0.5 1,0.5 0))")

	cov, err := r.VectorToTiles(query, 0, 0, nil)
	require.NoError(t, err)
	require.Len(t, cov, 2)
	assert.InDelta(t, 0.5, cov["T01"].QueryFraction, 1e-9)
	assert.InDelta(t, 0.5, cov["T01"].TileFraction, 1e-9)
	assert.InDelta(t, 0.5, cov["T02"].QueryFraction, 1e-9)
	assert.NotContains(t, cov, "T03")
}

func TestVectorToTiles_Thresholds(t *testing.T) {
	r := gridRepo(t)
	// Covers 90% of its own extent from T01 and 10% from T02; the query is
	// 1x1 so tile fractions match.
	query := mustWKT(t, "POLYGON((0.1 0,1.1 0,1.1 1,0.1 1,0.1 0))")

	// Both fractions pass for T01 only.
	cov, err := r.VectorToTiles(query, 50, 10, nil)
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Contains(t, cov, "T01")

	// Loosening pcov admits the sliver tile too.
	cov, err = r.VectorToTiles(query, 5, 5, nil)
	require.NoError(t, err)
	assert.Len(t, cov, 2)

	// Tightening ptile past both overlaps empties the result.
	cov, err = r.VectorToTiles(query, 0, 95, nil)
	require.NoError(t, err)
	assert.Empty(t, cov)
}

func TestVectorToTiles_Tilelist(t *testing.T) {
	r := gridRepo(t)
	query := mustWKT(t, "POLYGON((0.5 0,1.5 0,1.5 1,0.5 1,0.5 0))")
	cov, err := r.VectorToTiles(query, 0, 0, []string{"T02"})
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Contains(t, cov, "T02")
}

func TestVectorToTiles_BadGrid(t *testing.T) {
	d, err := driver.Lookup("modis")
	require.NoError(t, err)
	root := t.TempDir()
	gridPath := filepath.Join(root, "grid.geojson")
	require.NoError(t, os.WriteFile(gridPath, []byte(`{"type": "FeatureCollection"`), 0o644))
	r, err := New(d, config.RepoConfig{Repository: root, Tiles: gridPath})
	require.NoError(t, err)

	query := mustWKT(t, "POLYGON((0 0,1 0,1 1,0 1,0 0))")
	_, err = r.VectorToTiles(query, 0, 0, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTileGridInvalid))

	_, err = r.VectorToTiles(mustWKT(t, "POINT(0 0)"), 0, 0, nil)
	assert.Error(t, err)
}

func TestVectorToTiles_MissingAttribute(t *testing.T) {
	d, err := driver.Lookup("landsat")
	require.NoError(t, err)
	root := t.TempDir()
	gridPath := filepath.Join(root, "grid.geojson")
	// Attribute is "pr" for this driver; the grid carries "tileid".
	require.NoError(t, os.WriteFile(gridPath, []byte(testGrid), 0o644))
	r, err := New(d, config.RepoConfig{Repository: root, Tiles: gridPath})
	require.NoError(t, err)

	_, err = r.VectorToTiles(mustWKT(t, "POLYGON((0 0,1 0,1 1,0 1,0 0))"), 0, 0, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTileGridInvalid))
}
