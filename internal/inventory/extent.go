package inventory

import (
	"sort"
	"strings"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// SpatialExtent is the set of tiles an inventory spans, with per-tile
// coverage fractions when the extent came from a vector query.
type SpatialExtent struct {
	Tiles    []string
	Coverage map[string]repository.Coverage
}

// NewSpatialExtent builds an extent from an explicit tile list.
func NewSpatialExtent(tiles []string) SpatialExtent {
	sorted := append([]string(nil), tiles...)
	sort.Strings(sorted)
	return SpatialExtent{Tiles: sorted}
}

// SpatialExtentFromVector intersects a query geometry with the driver's
// tile grid. pcov and ptile are percentage thresholds on the covered
// fraction of the query and of each tile.
func SpatialExtentFromVector(repo *repository.Repository, query geom.Geometry, pcov, ptile float64, tilelist []string) (SpatialExtent, error) {
	coverage, err := repo.VectorToTiles(query, pcov, ptile, tilelist)
	if err != nil {
		return SpatialExtent{}, err
	}
	tiles := make([]string, 0, len(coverage))
	for tile := range coverage {
		tiles = append(tiles, tile)
	}
	sort.Strings(tiles)
	return SpatialExtent{Tiles: tiles, Coverage: coverage}, nil
}

// TemporalExtent is an inclusive day range.
type TemporalExtent struct {
	Start time.Time
	End   time.Time
}

// NewTemporalExtent normalizes the endpoints to UTC midnight, swapping
// them when given out of order.
func NewTemporalExtent(start, end time.Time) TemporalExtent {
	s, e := midnight(start), midnight(end)
	if e.Before(s) {
		s, e = e, s
	}
	return TemporalExtent{Start: s, End: e}
}

// ParseTemporalExtent reads "2017-01-01,2017-02-15" or a single day.
func ParseTemporalExtent(s string) (TemporalExtent, error) {
	parts := strings.SplitN(s, ",", 2)
	start, err := time.Parse("2006-01-02", strings.TrimSpace(parts[0]))
	if err != nil {
		return TemporalExtent{}, errors.Wrap(errors.ErrCodeInvalidConfig, "parsing date range", err)
	}
	end := start
	if len(parts) == 2 {
		end, err = time.Parse("2006-01-02", strings.TrimSpace(parts[1]))
		if err != nil {
			return TemporalExtent{}, errors.Wrap(errors.ErrCodeInvalidConfig, "parsing date range", err)
		}
	}
	return NewTemporalExtent(start, end), nil
}

// Contains reports whether a date falls inside the range.
func (t TemporalExtent) Contains(date time.Time) bool {
	d := midnight(date)
	return !d.Before(t.Start) && !d.After(t.End)
}

// Dates enumerates every day in the range, ascending.
func (t TemporalExtent) Dates() []time.Time {
	var out []time.Time
	for d := t.Start; !d.After(t.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
