package backend

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// Filesystem answers inventory queries by walking the archive tree. The
// tree is the authoritative record, so the mutating methods are no-ops.
type Filesystem struct {
	repo *repository.Repository
}

// NewFilesystem builds a filesystem inventory over one driver's archive.
func NewFilesystem(repo *repository.Repository) *Filesystem {
	return &Filesystem{repo: repo}
}

var _ Inventory = (*Filesystem)(nil)

func (f *Filesystem) ListTiles(ctx context.Context) ([]string, error) {
	return f.repo.FindTiles(ctx)
}

func (f *Filesystem) ListDates(ctx context.Context, tile string) ([]time.Time, error) {
	return f.repo.FindDates(ctx, tile)
}

// searchDates resolves the (tile, date) pairs a search must visit. A fully
// pinned date skips directory enumeration.
func (f *Filesystem) searchDates(ctx context.Context, c SearchCriteria, tile string) ([]time.Time, error) {
	if !c.Date.IsZero() {
		return []time.Time{c.Date}, nil
	}
	dates, err := f.repo.FindDates(ctx, tile)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range dates {
		if c.matchDate(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *Filesystem) searchTiles(ctx context.Context, c SearchCriteria) ([]string, error) {
	if len(c.Tiles) > 0 {
		return c.Tiles, nil
	}
	return f.repo.FindTiles(ctx)
}

func (f *Filesystem) AssetSearch(ctx context.Context, c SearchCriteria) ([]AssetRecord, error) {
	tiles, err := f.searchTiles(ctx, c)
	if err != nil {
		return nil, err
	}
	d := f.repo.Driver()
	var out []AssetRecord
	for _, tile := range tiles {
		dates, err := f.searchDates(ctx, c, tile)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			dir := f.repo.DataPath(tile, date)
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, errors.Wrap(errors.ErrCodeBackendQuery, "reading data directory", err)
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				at, parsed, err := d.ParseName(e.Name())
				if err != nil {
					// Product files and sidecars share the directory.
					continue
				}
				if c.AssetType != "" && at.Name != c.AssetType {
					continue
				}
				if c.Sensor != "" && parsed.Sensor != c.Sensor {
					continue
				}
				out = append(out, AssetRecord{
					Name:      filepath.Join(dir, e.Name()),
					Driver:    d.Name,
					AssetType: at.Name,
					Tile:      tile,
					Sensor:    parsed.Sensor,
					Date:      date,
				})
			}
		}
	}
	return out, nil
}

func (f *Filesystem) ProductSearch(ctx context.Context, c SearchCriteria) ([]ProductRecord, error) {
	tiles, err := f.searchTiles(ctx, c)
	if err != nil {
		return nil, err
	}
	d := f.repo.Driver()
	var out []ProductRecord
	for _, tile := range tiles {
		dates, err := f.searchDates(ctx, c, tile)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			dir := f.repo.DataPath(tile, date)
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, errors.Wrap(errors.ErrCodeBackendQuery, "reading data directory", err)
			}
			for _, e := range entries {
				if e.IsDir() || filepath.Ext(e.Name()) != ".tif" {
					continue
				}
				pf, err := f.repo.ParseProductFilename(e.Name())
				if err != nil {
					continue
				}
				if c.Product != "" && pf.Product != c.Product {
					continue
				}
				if c.Sensor != "" && pf.Sensor != c.Sensor {
					continue
				}
				out = append(out, ProductRecord{
					Name:    filepath.Join(dir, e.Name()),
					Driver:  d.Name,
					Product: pf.Product,
					Sensor:  pf.Sensor,
					Tile:    tile,
					Date:    date,
				})
			}
		}
	}
	return out, nil
}

// UpdateOrAddAsset is a no-op; archival already placed the file where
// searches will find it.
func (f *Filesystem) UpdateOrAddAsset(ctx context.Context, rec AssetRecord) error { return nil }

// UpdateOrAddProduct is a no-op for the same reason.
func (f *Filesystem) UpdateOrAddProduct(ctx context.Context, rec ProductRecord) error { return nil }

// DeleteProduct is a no-op; callers delete the file itself.
func (f *Filesystem) DeleteProduct(ctx context.Context, product, tile string, date time.Time) error {
	return nil
}
