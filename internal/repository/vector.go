package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/geodex/geodex/pkg/errors"
)

// Coverage is the overlap between a query geometry Q and one tile polygon P.
type Coverage struct {
	// QueryFraction is area(P∩Q)/area(Q), the share of the query this tile
	// covers.
	QueryFraction float64
	// TileFraction is area(P∩Q)/area(P), the share of the tile the query
	// covers.
	TileFraction float64
}

// tileGrid is a driver's tile-boundary vector file, loaded once per call.
type tileGrid struct {
	tiles map[string]geom.Geometry
}

func loadTileGrid(path, attribute string) (*tileGrid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTileGridInvalid,
			fmt.Sprintf("reading tile grid %s", path), err)
	}
	var fc geom.GeoJSONFeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTileGridInvalid,
			fmt.Sprintf("parsing tile grid %s", path), err)
	}
	grid := &tileGrid{tiles: make(map[string]geom.Geometry, len(fc))}
	for i, feature := range fc {
		id, err := tileID(feature.Properties, attribute)
		if err != nil {
			return nil, errors.Newf(errors.ErrCodeTileGridInvalid,
				"tile grid %s feature %d: %v", path, i, err)
		}
		grid.tiles[id] = feature.Geometry
	}
	return grid, nil
}

// tileID reads the tile identifier from a feature's property map. Grids in
// the wild store numeric ids as JSON numbers, so those are accepted too.
func tileID(props map[string]interface{}, attribute string) (string, error) {
	v, ok := props[attribute]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", attribute)
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	default:
		return "", fmt.Errorf("attribute %q is %T, want string or number", attribute, v)
	}
}

// VectorToTiles intersects a query geometry with the driver's tile grid and
// returns the tiles it overlaps, with their mutual coverage fractions.
// Tiles are kept only when QueryFraction ≥ pcov/100 and TileFraction ≥
// ptile/100; zero-intersection tiles are always dropped. A non-empty
// tilelist further restricts the result to the named tiles.
func (r *Repository) VectorToTiles(query geom.Geometry, pcov, ptile float64, tilelist []string) (map[string]Coverage, error) {
	gridPath, err := r.Setting("tiles")
	if err != nil {
		return nil, err
	}
	grid, err := loadTileGrid(gridPath, r.driver.TileAttribute)
	if err != nil {
		return nil, err
	}
	queryArea := query.Area()
	if queryArea == 0 {
		return nil, errors.Newf(errors.ErrCodeTileGridInvalid,
			"query geometry has zero area")
	}
	var allow map[string]bool
	if len(tilelist) > 0 {
		allow = make(map[string]bool, len(tilelist))
		for _, t := range tilelist {
			allow[t] = true
		}
	}
	out := make(map[string]Coverage)
	for id, tile := range grid.tiles {
		if allow != nil && !allow[id] {
			continue
		}
		overlap, err := geom.Intersection(query, tile)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTileGridInvalid,
				fmt.Sprintf("intersecting tile %s", id), err)
		}
		overlapArea := overlap.Area()
		if overlapArea == 0 {
			continue
		}
		cov := Coverage{
			QueryFraction: overlapArea / queryArea,
			TileFraction:  overlapArea / tile.Area(),
		}
		if cov.QueryFraction < pcov/100 || cov.TileFraction < ptile/100 {
			continue
		}
		out[id] = cov
	}
	return out, nil
}
