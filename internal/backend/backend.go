// Package backend abstracts the inventory index: which assets and product
// files exist for each (tile, date). The filesystem implementation derives
// everything from the archive tree and is always authoritative; the
// database implementation mirrors it for fast batched queries. Orchestration
// code depends only on the Inventory interface and never branches on which
// one it has.
package backend

import (
	"context"
	"time"
)

// AssetRecord is one indexed asset file.
type AssetRecord struct {
	// Name is the asset file's absolute path.
	Name      string
	Driver    string
	AssetType string
	Tile      string
	Sensor    string
	Date      time.Time
}

// ProductRecord is one indexed product file.
type ProductRecord struct {
	// Name is the product file's absolute path.
	Name    string
	Driver  string
	Product string
	Sensor  string
	Tile    string
	Date    time.Time
}

// SearchCriteria narrows an asset or product search. Zero-valued fields
// match anything; Tiles empty means all tiles. StartDate and EndDate bound
// the date inclusively when set, independently of each other.
type SearchCriteria struct {
	AssetType string
	Product   string
	Sensor    string
	Tiles     []string
	Date      time.Time
	StartDate time.Time
	EndDate   time.Time
}

// matchDate applies the criteria's date constraints to one record date.
func (c SearchCriteria) matchDate(d time.Time) bool {
	if !c.Date.IsZero() && !d.Equal(c.Date) {
		return false
	}
	if !c.StartDate.IsZero() && d.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsZero() && d.After(c.EndDate) {
		return false
	}
	return true
}

// matchTile reports whether a tile passes the criteria's tile set.
func (c SearchCriteria) matchTile(tile string) bool {
	if len(c.Tiles) == 0 {
		return true
	}
	for _, t := range c.Tiles {
		if t == tile {
			return true
		}
	}
	return false
}

// Inventory is the index query contract shared by the filesystem and
// database backends. For a fixed underlying state both implementations
// return the same logical results.
type Inventory interface {
	// ListTiles returns the tiles with any archived content, sorted.
	ListTiles(ctx context.Context) ([]string, error)
	// ListDates returns the dates archived for one tile, ascending.
	ListDates(ctx context.Context, tile string) ([]time.Time, error)
	// AssetSearch returns the asset records matching the criteria.
	AssetSearch(ctx context.Context, c SearchCriteria) ([]AssetRecord, error)
	// ProductSearch returns the product records matching the criteria.
	ProductSearch(ctx context.Context, c SearchCriteria) ([]ProductRecord, error)
	// UpdateOrAddAsset upserts one asset record keyed by
	// (asset_type, tile, date).
	UpdateOrAddAsset(ctx context.Context, rec AssetRecord) error
	// UpdateOrAddProduct upserts one product record keyed by
	// (product, sensor, tile, date).
	UpdateOrAddProduct(ctx context.Context, rec ProductRecord) error
	// DeleteProduct removes the index entry for one product file. Removing
	// an absent entry is not an error.
	DeleteProduct(ctx context.Context, product, tile string, date time.Time) error
}
