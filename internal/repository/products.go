package repository

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
)

// ProductFile is the identity encoded in a product raster's filename.
type ProductFile struct {
	// Tile is empty for project-layout files, which omit the tile token.
	Tile    string
	Date    time.Time
	Sensor  string
	Product string
}

// filenameDateFormat is the driver's date format with path separators
// stripped; nested date directories flatten into one filename token.
func (r *Repository) filenameDateFormat() string {
	return strings.ReplaceAll(r.driver.DateFormat, "/", "")
}

// ProductFilename renders the canonical basename for a product raster:
// <tile>_<date>_<sensor>_<product>.tif.
func (r *Repository) ProductFilename(tile string, date time.Time, sensor, product string) string {
	return strings.Join([]string{
		tile, driver.FormatDate(r.filenameDateFormat(), date), sensor, product,
	}, "_") + ".tif"
}

// ParseProductFilename inverts ProductFilename. Files in project layouts
// carry three underscore-separated tokens (no tile); archive layouts carry
// four. Anything else is not a product file.
func (r *Repository) ParseProductFilename(basename string) (*ProductFile, error) {
	name := basename
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	tokens := strings.Split(name, "_")
	var pf ProductFile
	switch len(tokens) {
	case 3:
		pf = ProductFile{Sensor: tokens[1], Product: tokens[2]}
	case 4:
		pf = ProductFile{Tile: tokens[0], Sensor: tokens[2], Product: tokens[3]}
	default:
		return nil, errors.Newf(errors.ErrCodeUnparseableAsset,
			"%q does not follow the product filename convention", basename)
	}
	dateToken := tokens[len(tokens)-3]
	date, err := driver.ParseDate(r.filenameDateFormat(), dateToken)
	if err != nil {
		return nil, errors.Newf(errors.ErrCodeUnparseableAsset,
			"%q has no parseable date token: %v", basename, err)
	}
	pf.Date = date
	return &pf, nil
}
