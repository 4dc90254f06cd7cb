package inventory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// ProjectInventory reads a flat directory of product files, the layout a
// processing run exports into, and groups them by date. Files that do not
// follow the product naming convention are skipped.
type ProjectInventory struct {
	repo *repository.Repository
	dir  string

	byDate map[time.Time][]repository.ProductFile
	paths  map[time.Time]map[string]string
	dates  []time.Time
}

// NewProjectInventory scans dir once.
func NewProjectInventory(repo *repository.Repository, dir string) (*ProjectInventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "reading project directory", err)
	}
	pi := &ProjectInventory{
		repo:   repo,
		dir:    dir,
		byDate: make(map[time.Time][]repository.ProductFile),
		paths:  make(map[time.Time]map[string]string),
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pf, err := repo.ParseProductFilename(e.Name())
		if err != nil {
			continue
		}
		date := midnight(pf.Date)
		pi.byDate[date] = append(pi.byDate[date], *pf)
		if pi.paths[date] == nil {
			pi.paths[date] = make(map[string]string)
		}
		pi.paths[date][pf.Product] = filepath.Join(dir, e.Name())
	}
	for date := range pi.byDate {
		pi.dates = append(pi.dates, date)
	}
	sort.Slice(pi.dates, func(i, j int) bool { return pi.dates[i].Before(pi.dates[j]) })
	return pi, nil
}

// Dates returns the dates with product files, ascending.
func (pi *ProjectInventory) Dates() []time.Time {
	return append([]time.Time(nil), pi.dates...)
}

// Products returns the product names present on one date, sorted.
func (pi *ProjectInventory) Products(date time.Time) []string {
	var names []string
	for _, pf := range pi.byDate[midnight(date)] {
		names = append(names, pf.Product)
	}
	sort.Strings(names)
	return names
}

// ProductPath returns one product file's path for a date, if present.
func (pi *ProjectInventory) ProductPath(date time.Time, product string) (string, bool) {
	m := pi.paths[midnight(date)]
	path, ok := m[product]
	return path, ok
}

// PPrint writes a per-date listing.
func (pi *ProjectInventory) PPrint(w io.Writer) {
	fmt.Fprintf(w, "project %s: %d dates\n", pi.dir, len(pi.dates))
	for _, date := range pi.dates {
		fmt.Fprintf(w, "  %s  %v\n", date.Format("2006-01-02"), pi.Products(date))
	}
}
