package raster

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Image used by tests and by drivers exercised
// without a real raster binding.
type Fake struct {
	mu      sync.Mutex
	path    string
	bands   [][]float64
	nodata  *float64
	meta    map[string]string
	subsets []string
	closed  bool
}

// NewFake builds a fake raster with the given band count, each band empty.
func NewFake(path string, bands int) *Fake {
	return &Fake{
		path:  path,
		bands: make([][]float64, bands),
		meta:  make(map[string]string),
	}
}

// WithSubdatasets sets the inner grid names a container fake reports.
func (f *Fake) WithSubdatasets(names ...string) *Fake {
	f.subsets = names
	return f
}

func (f *Fake) Path() string   { return f.path }
func (f *Fake) BandCount() int { return len(f.bands) }

func (f *Fake) ReadBand(index int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.bands) {
		return nil, fmt.Errorf("band %d out of range", index)
	}
	out := make([]float64, len(f.bands[index]))
	copy(out, f.bands[index])
	return out, nil
}

func (f *Fake) WriteBand(index int, data []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.bands) {
		return fmt.Errorf("band %d out of range", index)
	}
	f.bands[index] = append([]float64(nil), data...)
	return nil
}

func (f *Fake) NoData() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nodata == nil {
		return 0, false
	}
	return *f.nodata, true
}

func (f *Fake) SetNoData(value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodata = &value
}

func (f *Fake) Metadata() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.meta))
	for k, v := range f.meta {
		out[k] = v
	}
	return out
}

func (f *Fake) SetMetadata(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[key] = value
}

func (f *Fake) Subdatasets() []string { return f.subsets }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
