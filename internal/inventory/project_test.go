package inventory

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/repository"
)

func TestProjectInventory(t *testing.T) {
	repo, err := repository.New(toyDriver(), config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{
		"t01_2017001_TOY_heat.tif",
		"2017002_TOY_heat.tif",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	pi, err := NewProjectInventory(repo, dir)
	require.NoError(t, err)

	require.Equal(t, []time.Time{day1, day2}, pi.Dates())
	assert.Equal(t, []string{"heat"}, pi.Products(day1))

	path, ok := pi.ProductPath(day2, "heat")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "2017002_TOY_heat.tif"), path)
	_, ok = pi.ProductPath(day1, "missing")
	assert.False(t, ok)

	var buf bytes.Buffer
	pi.PPrint(&buf)
	assert.Contains(t, buf.String(), "2017-01-01")
	assert.Contains(t, buf.String(), "heat")
}

func TestNewProjectInventory_MissingDir(t *testing.T) {
	repo, err := repository.New(toyDriver(), config.RepoConfig{Repository: t.TempDir()})
	require.NoError(t, err)
	_, err = NewProjectInventory(repo, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
