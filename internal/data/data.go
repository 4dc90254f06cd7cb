// Package data aggregates everything archived for one (tile, date): the
// assets present, the product files derived from them, and the planning
// steps between the two. It also hosts the fetch coordinator that fills
// gaps from remote providers.
package data

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/geodex/geodex/internal/asset"
	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// ProductKey identifies one product file within a Data object.
type ProductKey struct {
	Sensor  string
	Product string
}

// Data is the per-(tile, date) view of the archive. It is rebuilt from
// authoritative state on demand and never persisted.
type Data struct {
	repo *repository.Repository
	inv  backend.Inventory
	tile string
	date time.Time

	// Assets maps asset type name to the one archived asset of that type.
	Assets map[string]*asset.Asset
	// Filenames maps (sensor, product) to the product file path.
	Filenames map[ProductKey]string
	// SensorFor maps product name to the sensor that produced it.
	SensorFor map[string]string
}

var _ driver.DataContext = (*Data)(nil)

// New builds the Data view for one (tile, date). With search set it
// populates assets and products from the inventory backend; without, the
// caller feeds it through AddAsset and ParseAndAddFiles.
func New(ctx context.Context, repo *repository.Repository, inv backend.Inventory, tile string, date time.Time, search bool) (*Data, error) {
	d := &Data{
		repo:      repo,
		inv:       inv,
		tile:      tile,
		date:      date,
		Assets:    make(map[string]*asset.Asset),
		Filenames: make(map[ProductKey]string),
		SensorFor: make(map[string]string),
	}
	if !search {
		return d, nil
	}
	assets, err := asset.Discover(ctx, inv, repo.Driver(), tile, date, "")
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		d.AddAsset(a)
	}
	products, err := inv.ProductSearch(ctx, backend.SearchCriteria{
		Tiles: []string{tile},
		Date:  date,
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range products {
		d.addProductRecord(rec)
	}
	return d, nil
}

func (d *Data) Tile() string    { return d.tile }
func (d *Data) Date() time.Time { return d.date }

// Path is the canonical directory for this (tile, date).
func (d *Data) Path() string { return d.repo.DataPath(d.tile, d.date) }

// Valid reports whether anything at all exists here. Invalid Data objects
// are excluded from inventories.
func (d *Data) Valid() bool {
	return len(d.Assets) > 0 || len(d.Filenames) > 0
}

// AddAsset registers an archived asset and merges any products the asset
// carries inline.
func (d *Data) AddAsset(a *asset.Asset) {
	d.Assets[a.Type.Name] = a
	for product, refs := range a.Products {
		if len(refs) == 0 {
			continue
		}
		d.Filenames[ProductKey{Sensor: a.Sensor, Product: product}] = refs[0]
		d.SensorFor[product] = a.Sensor
	}
}

func (d *Data) addProductRecord(rec backend.ProductRecord) {
	d.Filenames[ProductKey{Sensor: rec.Sensor, Product: rec.Product}] = rec.Name
	d.SensorFor[rec.Product] = rec.Sensor
}

// ParseAndAddFiles registers product files by parsing their basenames.
// Every file must agree with this Data's date; a conflict means the
// directory is corrupt and is fatal for the parse pass.
func (d *Data) ParseAndAddFiles(paths []string) error {
	for _, path := range paths {
		pf, err := d.repo.ParseProductFilename(filepath.Base(path))
		if err != nil {
			return err
		}
		if pf.Tile != "" && pf.Tile != d.tile {
			return errors.Newf(errors.ErrCodeMismatchedDate,
				"%s belongs to tile %s, not %s", path, pf.Tile, d.tile)
		}
		if !pf.Date.Equal(d.date) {
			return errors.Newf(errors.ErrCodeMismatchedDate,
				"%s implies %s but this directory holds %s",
				path, pf.Date.Format("2006-01-02"), d.date.Format("2006-01-02"))
		}
		d.addProductRecord(backend.ProductRecord{
			Name: path, Product: pf.Product, Sensor: pf.Sensor,
			Tile: d.tile, Date: pf.Date,
		})
	}
	return nil
}

// AssetPaths returns asset type → file path for the driver hooks.
func (d *Data) AssetPaths() map[string]string {
	out := make(map[string]string, len(d.Assets))
	for name, a := range d.Assets {
		out[name] = a.Filename
	}
	return out
}

// ProductPath returns the file for one (sensor, product) if present.
func (d *Data) ProductPath(sensor, product string) (string, bool) {
	path, ok := d.Filenames[ProductKey{Sensor: sensor, Product: product}]
	return path, ok
}

// NeededProducts is the planning step before processing: the requested
// products not yet present, or all of them when overwriting. Products
// whose own start date or latency window excludes this date are never
// needed.
func (d *Data) NeededProducts(requested []string, overwrite bool) []string {
	now := time.Now()
	var out []string
	for _, p := range requested {
		if prod, ok := d.repo.Driver().Products[p]; ok && !prod.Available(d.date, now) {
			continue
		}
		if overwrite {
			out = append(out, p)
			continue
		}
		if _, present := d.SensorFor[p]; !present {
			out = append(out, p)
		}
	}
	return out
}

// AssetFilenames resolves the inner data files a product build reads,
// using the first of the product's preferred asset types that is archived
// here.
func (d *Data) AssetFilenames(product string) ([]string, error) {
	prod, ok := d.repo.Driver().Products[product]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"driver %s has no product %q", d.repo.Driver().Name, product)
	}
	for _, atName := range prod.AssetTypes {
		a, present := d.Assets[atName]
		if !present {
			continue
		}
		return a.Datafiles()
	}
	return nil, errors.Newf(errors.ErrCodeAssetUnavailable,
		"no asset archived for %s at (%s, %s)",
		product, d.tile, d.date.Format("2006-01-02"))
}

// AddProductFile records a freshly generated product file and indexes it.
func (d *Data) AddProductFile(ctx context.Context, sensor, product, filename string) error {
	d.Filenames[ProductKey{Sensor: sensor, Product: product}] = filename
	d.SensorFor[product] = sensor
	return d.inv.UpdateOrAddProduct(ctx, backend.ProductRecord{
		Name:    filename,
		Driver:  d.repo.Driver().Name,
		Product: product,
		Sensor:  sensor,
		Tile:    d.tile,
		Date:    d.date,
	})
}

// Products lists the product names present here, sorted.
func (d *Data) Products() []string {
	names := make([]string, 0, len(d.SensorFor))
	for p := range d.SensorFor {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// FetchableAssets maps requested products to the asset types a configured
// source can actually deliver, preserving each product's preference
// order. An empty source accepts every remote-backed type.
func FetchableAssets(d *driver.Driver, source string, products []string) ([]string, error) {
	all, err := d.ProductsToAssets(products)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range all {
		at := d.Assets[name]
		if at.Remote == nil {
			continue
		}
		if source != "" && at.Remote.Source != source {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
