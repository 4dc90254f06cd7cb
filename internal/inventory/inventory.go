// Package inventory orchestrates the archive end to end: optionally
// fetching and staging new assets, building the date → tile → Data tree
// for a spatial and temporal extent, and driving product processing over
// it.
package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/geodex/geodex/internal/asset"
	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/data"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/metrics"
	"github.com/geodex/geodex/internal/repository"
)

// Options selects what a DataInventory does beyond reading state.
type Options struct {
	// Products are the product names processing targets. Empty means
	// inventory only.
	Products []string
	// Fetch pulls missing assets from remote providers before the tree is
	// built.
	Fetch bool
	// Update allows strictly newer asset versions to replace archived
	// ones during fetch and staging.
	Update bool
	// Overwrite regenerates products that already exist.
	Overwrite bool
	// FilterArgs are passed to the driver's data filter hook.
	FilterArgs map[string]string
}

// TileSet groups the Data objects of one date.
type TileSet struct {
	Date  time.Time
	tiles map[string]*data.Data
}

// TileIDs returns the tiles present on this date, sorted.
func (ts *TileSet) TileIDs() []string {
	ids := make([]string, 0, len(ts.tiles))
	for id := range ts.tiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tile returns one tile's Data, or nil.
func (ts *TileSet) Tile(id string) *data.Data { return ts.tiles[id] }

// DataInventory is the date → tile → Data tree for one extent. It is a
// read model: mutations happen through fetch/archive/process, never by
// editing the tree.
type DataInventory struct {
	repo    *repository.Repository
	inv     backend.Inventory
	fetcher *data.Fetcher
	log     *slog.Logger
	met     *metrics.Collector

	spatial  SpatialExtent
	temporal TemporalExtent
	opts     Options

	tree  map[time.Time]*TileSet
	dates []time.Time
}

var _ driver.InventoryView = (*DataInventory)(nil)

// New builds the inventory. With opts.Fetch set the fetcher runs first
// and anything it staged is archived; the tree then reflects the archive
// as it stands. fetcher may be nil when opts.Fetch is false; met may
// always be nil.
func New(ctx context.Context, repo *repository.Repository, inv backend.Inventory, fetcher *data.Fetcher, spatial SpatialExtent, temporal TemporalExtent, opts Options, log *slog.Logger, met *metrics.Collector) (*DataInventory, error) {
	di := &DataInventory{
		repo:     repo,
		inv:      inv,
		fetcher:  fetcher,
		log:      log,
		met:      met,
		spatial:  spatial,
		temporal: temporal,
		opts:     opts,
		tree:     make(map[time.Time]*TileSet),
	}
	if opts.Fetch {
		if err := di.fetchAndStage(ctx); err != nil {
			return nil, err
		}
	}
	if err := di.build(ctx); err != nil {
		return nil, err
	}
	return di, nil
}

func (di *DataInventory) fetchAndStage(ctx context.Context) error {
	fetched, err := di.fetcher.Fetch(ctx, di.opts.Products, di.spatial.Tiles,
		di.temporal.Dates(), di.opts.Update)
	if err != nil {
		return err
	}
	di.log.Info("fetch stage complete", "fetched", len(fetched))
	if di.repo.Driver().InlineArchive {
		return nil
	}
	res, err := di.fetcher.ArchiveAssets(ctx, di.repo.StagePath(),
		asset.Options{Recursive: true, Update: di.opts.Update})
	if err != nil {
		return err
	}
	di.log.Info("stage archived", "archived", len(res.Archived),
		"quarantined", res.Quarantined)
	return nil
}

// build assembles the tree. The filesystem backend is walked one
// (date, tile) pair at a time; every other backend answers with two
// batched range queries. Both paths produce the same tree for the same
// underlying archive.
func (di *DataInventory) build(ctx context.Context) error {
	if _, ok := di.inv.(*backend.Filesystem); ok {
		return di.buildFromWalk(ctx)
	}
	return di.buildFromQuery(ctx)
}

func (di *DataInventory) buildFromWalk(ctx context.Context) error {
	for _, date := range di.temporal.Dates() {
		for _, tile := range di.spatial.Tiles {
			d, err := data.New(ctx, di.repo, di.inv, tile, date, true)
			if err != nil {
				return err
			}
			di.admit(d)
		}
	}
	di.finish()
	return nil
}

func (di *DataInventory) buildFromQuery(ctx context.Context) error {
	criteria := backend.SearchCriteria{
		Tiles:     di.spatial.Tiles,
		StartDate: di.temporal.Start,
		EndDate:   di.temporal.End,
	}
	assets, err := di.inv.AssetSearch(ctx, criteria)
	if err != nil {
		return err
	}
	products, err := di.inv.ProductSearch(ctx, criteria)
	if err != nil {
		return err
	}

	type key struct {
		tile string
		date time.Time
	}
	grouped := make(map[key]*data.Data)
	obtain := func(tile string, date time.Time) (*data.Data, error) {
		k := key{tile, midnight(date)}
		if d, ok := grouped[k]; ok {
			return d, nil
		}
		d, err := data.New(ctx, di.repo, di.inv, tile, k.date, false)
		if err != nil {
			return nil, err
		}
		grouped[k] = d
		return d, nil
	}

	for _, rec := range assets {
		d, err := obtain(rec.Tile, rec.Date)
		if err != nil {
			return err
		}
		a, err := asset.Parse(di.repo.Driver(), rec.Name)
		if err != nil {
			return err
		}
		d.AddAsset(a)
	}
	for _, rec := range products {
		d, err := obtain(rec.Tile, rec.Date)
		if err != nil {
			return err
		}
		if err := d.ParseAndAddFiles([]string{rec.Name}); err != nil {
			return err
		}
	}
	for _, d := range grouped {
		di.admit(d)
	}
	di.finish()
	return nil
}

// admit places one Data object in the tree unless it is empty or the
// driver's filter rejects it.
func (di *DataInventory) admit(d *data.Data) {
	if !d.Valid() {
		return
	}
	if f := di.repo.Driver().Filter; f != nil && !f(d, di.opts.FilterArgs) {
		return
	}
	date := midnight(d.Date())
	ts, ok := di.tree[date]
	if !ok {
		ts = &TileSet{Date: date, tiles: make(map[string]*data.Data)}
		di.tree[date] = ts
	}
	ts.tiles[d.Tile()] = d
}

func (di *DataInventory) finish() {
	di.dates = di.dates[:0]
	for date := range di.tree {
		di.dates = append(di.dates, date)
	}
	sort.Slice(di.dates, func(i, j int) bool { return di.dates[i].Before(di.dates[j]) })
}

// Dates returns the dates with content, ascending.
func (di *DataInventory) Dates() []time.Time {
	return append([]time.Time(nil), di.dates...)
}

// On returns the TileSet for one date, or nil.
func (di *DataInventory) On(date time.Time) *TileSet {
	return di.tree[midnight(date)]
}

// DataOn returns the date's Data objects ordered by tile.
func (di *DataInventory) DataOn(date time.Time) []driver.DataContext {
	ts := di.On(date)
	if ts == nil {
		return nil
	}
	out := make([]driver.DataContext, 0, len(ts.tiles))
	for _, id := range ts.TileIDs() {
		out = append(out, ts.tiles[id])
	}
	return out
}

// CompositePath is where cross-date products land.
func (di *DataInventory) CompositePath() string { return di.repo.CompositesPath() }

// Subset returns a new inventory restricted to the given dates. Pure
// filtering, no archive side effects.
func (di *DataInventory) Subset(dates []time.Time) *DataInventory {
	out := &DataInventory{
		repo:     di.repo,
		inv:      di.inv,
		fetcher:  di.fetcher,
		log:      di.log,
		met:      di.met,
		spatial:  di.spatial,
		temporal: di.temporal,
		opts:     di.opts,
		tree:     make(map[time.Time]*TileSet),
	}
	for _, date := range dates {
		if ts, ok := di.tree[midnight(date)]; ok {
			out.tree[ts.Date] = ts
		}
	}
	out.finish()
	return out
}

// Process generates the requested products. Single-date products go
// through the driver's per-Data hook, each date best effort: a failing
// date is logged and the loop moves on. Composite products are routed
// once to the driver's composite hook with the whole inventory.
func (di *DataInventory) Process(ctx context.Context) error {
	d := di.repo.Driver()
	var single, composite []string
	for _, p := range di.opts.Products {
		prod, ok := d.Products[p]
		if !ok {
			di.log.Warn("unknown product requested", "driver", d.Name, "product", p)
			continue
		}
		if prod.Composite {
			composite = append(composite, p)
		} else {
			single = append(single, p)
		}
	}

	if len(single) > 0 && d.Process != nil {
		for _, date := range di.dates {
			if err := ctx.Err(); err != nil {
				return err
			}
			di.processDate(ctx, d, date, single)
		}
	}

	if len(composite) > 0 && d.ProcessComposites != nil {
		if err := d.ProcessComposites(ctx, di, composite); err != nil {
			di.met.RecordProcessError(d.Name)
			return err
		}
	}
	return nil
}

func (di *DataInventory) processDate(ctx context.Context, d *driver.Driver, date time.Time, products []string) {
	for _, dc := range di.DataOn(date) {
		needed := dc.(*data.Data).NeededProducts(products, di.opts.Overwrite)
		if len(needed) == 0 {
			continue
		}
		if err := d.Process(ctx, dc, needed); err != nil {
			di.met.RecordProcessError(d.Name)
			di.log.Error("processing failed, continuing with next date",
				"date", date.Format("2006-01-02"), "tile", dc.Tile(), "error", err)
		}
	}
}

// PPrint writes a human-readable listing of the tree.
func (di *DataInventory) PPrint(w io.Writer) {
	fmt.Fprintf(w, "%s inventory: %d dates, tiles %v\n",
		di.repo.Driver().Name, len(di.dates), di.spatial.Tiles)
	for _, date := range di.dates {
		ts := di.tree[date]
		for _, id := range ts.TileIDs() {
			d := ts.tiles[id]
			fmt.Fprintf(w, "  %s  %-10s assets=%v products=%v\n",
				date.Format("2006-01-02"), id, sortedAssetTypes(d), d.Products())
		}
	}
}

func sortedAssetTypes(d *data.Data) []string {
	names := make([]string, 0, len(d.Assets))
	for name := range d.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
