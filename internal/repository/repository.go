// Package repository binds a driver descriptor to its on-disk archive
// layout: canonical paths, tile and date enumeration, and per-driver
// setting resolution.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
)

// Repository describes one driver's archive on disk. It is immutable once
// constructed; all methods are pure path computation or read-only directory
// walks.
type Repository struct {
	driver *driver.Driver
	cfg    config.RepoConfig
	root   string
}

// New binds a driver to its configured archive root.
func New(d *driver.Driver, cfg config.RepoConfig) (*Repository, error) {
	if cfg.Repository == "" {
		return nil, errors.Newf(errors.ErrCodeMissingConfig,
			"driver %s has no repository root configured", d.Name)
	}
	return &Repository{driver: d, cfg: cfg, root: filepath.Clean(cfg.Repository)}, nil
}

// Driver returns the bound driver descriptor.
func (r *Repository) Driver() *driver.Driver { return r.driver }

// Root returns the archive root directory.
func (r *Repository) Root() string { return r.root }

// Path returns the absolute path of a managed subdirectory.
func (r *Repository) Path(subdir string) string {
	return filepath.Join(r.root, subdir)
}

// TilesPath returns the canonical asset/product tree root.
func (r *Repository) TilesPath() string { return r.Path("tiles") }

// StagePath returns the holding area for fetched but unarchived files.
func (r *Repository) StagePath() string { return r.Path("stage") }

// QuarantinePath returns the holding area for unidentifiable files.
func (r *Repository) QuarantinePath() string { return r.Path("quarantine") }

// CompositesPath returns the directory for cross-date aggregate products.
func (r *Repository) CompositesPath() string { return r.Path("composites") }

// DataPath returns the canonical directory for a (tile, date) pair. Pure
// path construction; the directory may not exist.
func (r *Repository) DataPath(tile string, date time.Time) string {
	return filepath.Join(r.TilesPath(), tile, driver.FormatDate(r.driver.DateFormat, date))
}

// EnsurePaths creates the managed subdirectories if missing.
func (r *Repository) EnsurePaths() error {
	subdirs := r.driver.Subdirs
	if len(subdirs) == 0 {
		subdirs = driver.DefaultSubdirs
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(r.Path(sub), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeOperationFailed,
				fmt.Sprintf("creating %s directory", sub), err)
		}
	}
	return nil
}

// FindTiles lists the tile ids present in the archive.
func (r *Repository) FindTiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOperationCanceled, "find tiles", err)
	}
	entries, err := os.ReadDir(r.TilesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeOperationFailed, "reading tiles directory", err)
	}
	var tiles []string
	for _, e := range entries {
		if e.IsDir() {
			tiles = append(tiles, e.Name())
		}
	}
	sort.Strings(tiles)
	return tiles, nil
}

// FindDates lists the dates present for one tile, sorted ascending.
// Directory names that do not parse under the driver's date format are
// skipped, not fatal; stray files in a tile tree are common.
func (r *Repository) FindDates(ctx context.Context, tile string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOperationCanceled, "find dates", err)
	}
	tileDir := filepath.Join(r.TilesPath(), tile)
	depth := driver.DateDepth(r.driver.DateFormat)
	var dates []time.Time
	if err := collectDates(tileDir, "", depth, r.driver.DateFormat, &dates); err != nil {
		return nil, err
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// collectDates walks date directories below dir, accumulating prefix path
// components until the full date format depth is reached.
func collectDates(dir, prefix string, depth int, format string, out *[]time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(errors.ErrCodeOperationFailed, "reading date directory", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		candidate := name
		if prefix != "" {
			candidate = prefix + "/" + name
		}
		if depth > 1 {
			if err := collectDates(filepath.Join(dir, name), candidate, depth-1, format, out); err != nil {
				return err
			}
			continue
		}
		date, err := driver.ParseDate(format, candidate)
		if err != nil {
			continue
		}
		*out = append(*out, date)
	}
	return nil
}

// Setting resolves a per-driver setting. Lookup order: configured value,
// then a computed default for keys that have one, then UNKNOWN_SETTING.
func (r *Repository) Setting(key string) (string, error) {
	if v, err := r.cfg.Setting(key); err == nil {
		return v, nil
	} else if !errors.HasCode(err, errors.ErrCodeUnknownSetting) {
		return "", err
	}
	switch key {
	case "repository":
		return r.root, nil
	case "tiles":
		// The tile-grid vector ships alongside the archive by default.
		return filepath.Join(r.root, "vector", r.driver.Name+"_tiles.geojson"), nil
	case "source":
		return "", nil
	}
	return "", errors.Newf(errors.ErrCodeUnknownSetting,
		"driver %s has no setting %q and no default applies", r.driver.Name, key)
}

// ParseDataPath inverts DataPath: given a canonical asset directory it
// returns the (tile, date) pair, or an error when the path is not under
// the tiles tree or its date component does not parse.
func (r *Repository) ParseDataPath(path string) (string, time.Time, error) {
	rel, err := filepath.Rel(r.TilesPath(), filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", time.Time{}, errors.Newf(errors.ErrCodeOperationFailed,
			"%s is not under the %s archive", path, r.driver.Name)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	depth := driver.DateDepth(r.driver.DateFormat)
	if len(parts) != depth+1 {
		return "", time.Time{}, errors.Newf(errors.ErrCodeOperationFailed,
			"%s is not a (tile, date) directory", path)
	}
	date, err := driver.ParseDate(r.driver.DateFormat, strings.Join(parts[1:], "/"))
	if err != nil {
		return "", time.Time{}, err
	}
	return parts[0], date, nil
}
