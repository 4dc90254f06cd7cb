// Package driver defines the descriptor model for remote-sensing data
// sources: asset-type tables, product tables, sensors, and the registry
// that maps driver names to their descriptors.
package driver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/geodex/geodex/pkg/errors"
)

// ContainerKind describes how an asset file packages its inner datafiles.
type ContainerKind int

const (
	ContainerNone ContainerKind = iota
	ContainerTar
	ContainerZip
	ContainerManifest
	ContainerRaster
)

// ParsedName holds the identity fields extracted from an asset filename.
type ParsedName struct {
	Tile   string
	Sensor string
	// Dates has one entry for ordinary assets; multi-date composite
	// archives carry several.
	Dates []time.Time
	// Version is an orderable scalar: larger means newer. Drivers fold
	// processing date and quality tier into it.
	Version float64
	// Products maps product names to inner datafile references for
	// drivers that ship products inside the asset itself.
	Products map[string][]string
}

// RemoteSpec binds an asset type to a remote source.
type RemoteSpec struct {
	// Source selects the provider implementation ("http" or "s3").
	Source string
	// PathTemplate renders the remote directory or key prefix for a
	// (tile, date) pair. Date tokens (%Y, %m, %d, %j) and {tile} are
	// substituted.
	PathTemplate string
	// Bucket is the S3 bucket for s3-sourced asset types.
	Bucket string
}

// AssetType describes one kind of raw provider file.
type AssetType struct {
	Name    string
	Pattern *regexp.Regexp
	Sensors []string

	StartDate time.Time
	// EndDate zero means open-ended subject to Latency.
	EndDate time.Time
	// Latency is the provider's publication delay in days; the effective
	// end date is now minus Latency when EndDate is zero.
	Latency int

	Container ContainerKind
	Remote    *RemoteSpec

	// Parse builds identity fields from a filename that matched Pattern.
	// The groups map carries the pattern's named submatches.
	Parse func(name string, groups map[string]string) (*ParsedName, error)
}

// Match applies the asset type's pattern to a basename and returns the
// named groups, or ok=false.
func (at *AssetType) Match(basename string) (map[string]string, bool) {
	m := at.Pattern.FindStringSubmatch(basename)
	if m == nil {
		return nil, false
	}
	groups := make(map[string]string)
	for i, name := range at.Pattern.SubexpNames() {
		if i > 0 && name != "" {
			groups[name] = m[i]
		}
	}
	return groups, true
}

// Available reports whether the asset type can exist for the given date.
func (at *AssetType) Available(date time.Time, now time.Time) bool {
	if !at.StartDate.IsZero() && date.Before(at.StartDate) {
		return false
	}
	end := at.EndDate
	if end.IsZero() {
		end = now.AddDate(0, 0, -at.Latency)
	}
	return !date.After(end)
}

// Product describes a derived raster layer.
type Product struct {
	Name        string
	Description string
	// AssetTypes lists the asset types the product can be built from, in
	// preference order.
	AssetTypes []string
	// Composite products aggregate across dates and are processed once
	// per inventory rather than once per date.
	Composite bool
	StartDate time.Time
	Latency   int
}

// Available reports whether the product can exist for a date, honoring
// the product's own start date and publication latency on top of
// whatever its asset types allow.
func (p *Product) Available(date time.Time, now time.Time) bool {
	if !p.StartDate.IsZero() && date.Before(p.StartDate) {
		return false
	}
	return !date.After(now.AddDate(0, 0, -p.Latency))
}

// Sensor describes a sensor code used by a driver.
type Sensor struct {
	Description string
}

// DataView is the read-only view of a (tile, date) aggregation that
// driver hooks receive.
type DataView interface {
	Tile() string
	Date() time.Time
	AssetPaths() map[string]string
	ProductPath(sensor, product string) (string, bool)
}

// DataContext extends DataView with the mutations a processing hook needs.
type DataContext interface {
	DataView
	Path() string
	AssetFilenames(product string) ([]string, error)
	AddProductFile(ctx context.Context, sensor, product, filename string) error
}

// InventoryView is the cross-date view composite processing receives.
type InventoryView interface {
	Dates() []time.Time
	DataOn(date time.Time) []DataContext
	CompositePath() string
}

// Driver describes one data source end to end.
type Driver struct {
	Name        string
	Description string

	// DateFormat is the strftime-style layout of date directories under
	// each tile (e.g. "%Y/%j" or "%Y%m%d").
	DateFormat string
	// TileAttribute names the property carrying the tile id in the tile
	// grid vector file.
	TileAttribute string
	// Subdirs are the managed directories under the archive root.
	Subdirs []string

	Assets   map[string]*AssetType
	Products map[string]*Product
	Sensors  map[string]Sensor

	// InlineArchive makes fetch archive each downloaded file immediately
	// instead of leaving it in stage/ for a later batch pass.
	InlineArchive bool

	// Filter drops a Data object from inventories when it returns false
	// (cloud-cover thresholds and the like). Nil means keep everything.
	Filter func(view DataView, args map[string]string) bool

	// Process builds the requested single-date products for one Data
	// object. Nil means the driver has no processing stage.
	Process func(ctx context.Context, d DataContext, products []string) error
	// ProcessComposites builds cross-date products from a whole
	// inventory.
	ProcessComposites func(ctx context.Context, inv InventoryView, products []string) error
}

// DefaultSubdirs is the standard managed directory set.
var DefaultSubdirs = []string{"tiles", "stage", "quarantine", "composites"}

// AssetTypeNames returns the driver's asset type names in sorted order.
// Parsing iterates in this order, so pattern matching is deterministic.
func (d *Driver) AssetTypeNames() []string {
	names := make([]string, 0, len(d.Assets))
	for name := range d.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProductNames returns the driver's product names in sorted order.
func (d *Driver) ProductNames() []string {
	names := make([]string, 0, len(d.Products))
	for name := range d.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseName matches a basename against the driver's asset-type table and
// returns the asset type along with the parsed identity. Asset-type
// patterns must be collision-free; the first match in sorted type order
// wins.
func (d *Driver) ParseName(basename string) (*AssetType, *ParsedName, error) {
	for _, name := range d.AssetTypeNames() {
		at := d.Assets[name]
		groups, ok := at.Match(basename)
		if !ok {
			continue
		}
		parsed, err := at.Parse(basename, groups)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeUnparseableAsset,
				fmt.Sprintf("%s matched %s but field extraction failed", basename, name), err)
		}
		return at, parsed, nil
	}
	return nil, nil, errors.Newf(errors.ErrCodeUnparseableAsset,
		"no %s asset pattern matches %q", d.Name, basename)
}

// ProductsToAssets maps product names to the set of asset types needed to
// build them, honoring each product's preference order.
func (d *Driver) ProductsToAssets(products []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		prod, ok := d.Products[p]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidConfig,
				"driver %s has no product %q", d.Name, p)
		}
		for _, at := range prod.AssetTypes {
			if !seen[at] {
				seen[at] = true
				out = append(out, at)
			}
		}
	}
	return out, nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Driver)
)

// Register adds a driver to the registry. It panics on duplicate names;
// registration happens at init time and a collision is a programming
// error.
func Register(d *Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[d.Name]; dup {
		panic(fmt.Sprintf("driver: Register called twice for %q", d.Name))
	}
	registry[d.Name] = d
}

// Lookup resolves a driver by name.
func Lookup(name string) (*Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownDriver, "no driver registered as %q", name)
	}
	return d, nil
}

// Names lists the registered driver names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
