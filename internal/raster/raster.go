// Package raster defines the opaque image capability the processing hooks
// work through. No raster I/O is implemented here; a real binding (GDAL or
// similar) registers an Opener at startup, and tests register a fake.
package raster

import (
	"sync"

	"github.com/geodex/geodex/pkg/errors"
)

// Image is a handle to one multi-band raster file.
type Image interface {
	Path() string
	BandCount() int
	ReadBand(index int) ([]float64, error)
	WriteBand(index int, data []float64) error
	NoData() (float64, bool)
	SetNoData(value float64)
	Metadata() map[string]string
	SetMetadata(key, value string)
	// Subdatasets lists the named inner grids of container formats (HDF
	// and friends); empty for plain rasters.
	Subdatasets() []string
	Close() error
}

// Opener opens a raster file by path.
type Opener func(path string) (Image, error)

var (
	openerMu sync.RWMutex
	opener   Opener
)

// SetOpener installs the process-wide raster binding.
func SetOpener(o Opener) {
	openerMu.Lock()
	defer openerMu.Unlock()
	opener = o
}

// Open opens a raster through the installed binding.
func Open(path string) (Image, error) {
	openerMu.RLock()
	o := opener
	openerMu.RUnlock()
	if o == nil {
		return nil, errors.New(errors.ErrCodeInternalError, "no raster opener installed")
	}
	return o(path)
}
