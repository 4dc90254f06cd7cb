// Package asset models one raw provider file: identity parsing, container
// inspection, scoped extraction, discovery, and the archival state machine.
package asset

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/raster"
	"github.com/geodex/geodex/pkg/errors"
)

// IndexExt is the sidecar extension caching a container's inner file list.
const IndexExt = ".index"

// sidecarExts are cleaned up together with an archived source file.
var sidecarExts = []string{IndexExt, ".aux.xml"}

// Asset is one physical provider file with its parsed identity.
type Asset struct {
	// Filename is the absolute path of the file.
	Filename string
	Driver   *driver.Driver
	Type     *driver.AssetType
	Tile     string
	// Dates has one entry for ordinary assets, several for multi-date
	// archives.
	Dates   []time.Time
	Sensor  string
	Version float64
	// Products maps product names to inner datafile references for
	// drivers that ship products inside the asset.
	Products map[string][]string
}

// Parse inspects a file's basename against the driver's asset-type table.
func Parse(d *driver.Driver, filename string) (*Asset, error) {
	at, parsed, err := d.ParseName(filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	return &Asset{
		Filename: filename,
		Driver:   d,
		Type:     at,
		Tile:     parsed.Tile,
		Dates:    parsed.Dates,
		Sensor:   parsed.Sensor,
		Version:  parsed.Version,
		Products: parsed.Products,
	}, nil
}

// Date returns the asset's primary date.
func (a *Asset) Date() time.Time {
	if len(a.Dates) == 0 {
		return time.Time{}
	}
	return a.Dates[0]
}

// Updated reports whether other supersedes a: same identity, strictly
// greater version.
func (a *Asset) Updated(other *Asset) bool {
	if other == nil || a.Type.Name != other.Type.Name || a.Sensor != other.Sensor ||
		a.Tile != other.Tile || !a.Date().Equal(other.Date()) {
		return false
	}
	return other.Version > a.Version
}

// indexPath is the sidecar next to the asset file.
func (a *Asset) indexPath() string { return a.Filename + IndexExt }

// Datafiles enumerates the inner data file references of the asset's
// container, caching the result in a .index sidecar. With the sidecar
// present the container itself is never opened, so the listing survives
// the container becoming unreadable.
func (a *Asset) Datafiles() ([]string, error) {
	if names, err := readIndex(a.indexPath()); err == nil {
		return names, nil
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "reading datafile index", err)
	}
	names, err := a.inspect()
	if err != nil {
		return nil, err
	}
	if err := writeIndex(a.indexPath(), names); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "writing datafile index", err)
	}
	return names, nil
}

// inspect opens the container and lists its contents.
func (a *Asset) inspect() ([]string, error) {
	switch a.Type.Container {
	case driver.ContainerTar:
		return a.tarList()
	case driver.ContainerZip:
		return a.zipList()
	case driver.ContainerManifest:
		return a.manifestList()
	case driver.ContainerRaster:
		img, err := raster.Open(a.Filename)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
				fmt.Sprintf("opening raster %s", a.Filename), err)
		}
		defer img.Close()
		subs := img.Subdatasets()
		if len(subs) == 0 {
			return []string{a.Filename}, nil
		}
		return subs, nil
	default:
		return []string{a.Filename}, nil
	}
}

// tarOpen sets up the (possibly gzipped) tar stream.
func (a *Asset) tarOpen() (*os.File, *tar.Reader, error) {
	f, err := os.Open(a.Filename)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeStageRead, "opening tar", err)
	}
	var r io.Reader = f
	if strings.HasSuffix(a.Filename, ".gz") || strings.HasSuffix(a.Filename, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, errors.Wrap(errors.ErrCodeCorruptContainer,
				fmt.Sprintf("%s is not a valid gzip stream", a.Filename), err)
		}
		r = gz
	}
	return f, tar.NewReader(r), nil
}

func (a *Asset) tarList() ([]string, error) {
	f, tr, err := a.tarOpen()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
				fmt.Sprintf("%s is not a valid tar archive", a.Filename), err)
		}
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
	return names, nil
}

func (a *Asset) zipList() ([]string, error) {
	zr, err := zip.OpenReader(a.Filename)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
			fmt.Sprintf("%s is not a valid zip archive", a.Filename), err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// manifestList reads a JSON array of inner file references.
func (a *Asset) manifestList() ([]string, error) {
	raw, err := os.ReadFile(a.Filename)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "reading manifest", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
			fmt.Sprintf("%s is not a valid manifest", a.Filename), err)
	}
	return names, nil
}

// Verify checks container integrity without writing the index sidecar.
// Formats needing an external binding (raster) pass trivially.
func (a *Asset) Verify() error {
	switch a.Type.Container {
	case driver.ContainerTar:
		_, err := a.tarList()
		return err
	case driver.ContainerZip:
		_, err := a.zipList()
		return err
	case driver.ContainerManifest:
		_, err := a.manifestList()
		return err
	default:
		return nil
	}
}

func readIndex(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}

func writeIndex(path string, names []string) error {
	return os.WriteFile(path, []byte(strings.Join(names, "\n")+"\n"), 0o644)
}

// Extract pulls the named inner files out of the container into destDir.
// Files already present at the destination are treated as extracted.
// Fresh extractions land in a temporary directory and are renamed into
// place, so a partial extraction is never visible at the final path.
// Returns the final path of every requested file.
func (a *Asset) Extract(names []string, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExtractFailed, "creating destination", err)
	}
	finals := make([]string, 0, len(names))
	missing := make(map[string]bool)
	for _, name := range names {
		final := filepath.Join(destDir, filepath.Base(name))
		finals = append(finals, final)
		if _, err := os.Stat(final); err != nil {
			missing[name] = true
		}
	}
	if len(missing) == 0 {
		return finals, nil
	}

	tmpDir := filepath.Join(destDir, ".extract-"+uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExtractFailed, "creating temp directory", err)
	}
	defer os.RemoveAll(tmpDir)

	extracted, err := a.extractTo(missing, tmpDir)
	if err != nil {
		return nil, err
	}
	for name := range missing {
		if !extracted[name] {
			return nil, errors.Newf(errors.ErrCodeExtractFailed,
				"%s has no inner file %q", a.Filename, name)
		}
	}
	for name := range missing {
		base := filepath.Base(name)
		if err := os.Rename(filepath.Join(tmpDir, base), filepath.Join(destDir, base)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeExtractFailed, "moving extracted file", err)
		}
	}
	return finals, nil
}

// extractTo writes the wanted inner files into dir, flattened to basenames.
func (a *Asset) extractTo(wanted map[string]bool, dir string) (map[string]bool, error) {
	done := make(map[string]bool)
	switch a.Type.Container {
	case driver.ContainerTar:
		f, tr, err := a.tarOpen()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
					fmt.Sprintf("%s is not a valid tar archive", a.Filename), err)
			}
			if hdr.Typeflag != tar.TypeReg || !wanted[hdr.Name] {
				continue
			}
			if err := writeStream(filepath.Join(dir, filepath.Base(hdr.Name)), tr); err != nil {
				return nil, err
			}
			done[hdr.Name] = true
		}
	case driver.ContainerZip:
		zr, err := zip.OpenReader(a.Filename)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
				fmt.Sprintf("%s is not a valid zip archive", a.Filename), err)
		}
		defer zr.Close()
		for _, zf := range zr.File {
			if !wanted[zf.Name] {
				continue
			}
			rc, err := zf.Open()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCorruptContainer,
					fmt.Sprintf("reading %s from %s", zf.Name, a.Filename), err)
			}
			err = writeStream(filepath.Join(dir, filepath.Base(zf.Name)), rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			done[zf.Name] = true
		}
	default:
		return nil, errors.Newf(errors.ErrCodeExtractFailed,
			"%s assets are not extractable containers", a.Type.Name)
	}
	return done, nil
}

func writeStream(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExtractFailed, "creating extracted file", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeExtractFailed, "writing extracted file", err)
	}
	return f.Close()
}

// Discover returns the archived assets for a (tile, date), optionally
// narrowed to one asset type, by querying the inventory backend. More than
// one match for a single asset type means the archive invariant is broken
// and is reported as DUPLICATE_ASSET rather than silently resolved.
func Discover(ctx context.Context, inv backend.Inventory, d *driver.Driver, tile string, date time.Time, assetType string) ([]*Asset, error) {
	recs, err := inv.AssetSearch(ctx, backend.SearchCriteria{
		AssetType: assetType,
		Tiles:     []string{tile},
		Date:      date,
	})
	if err != nil {
		return nil, err
	}
	byType := make(map[string][]*Asset)
	for _, rec := range recs {
		a, err := Parse(d, rec.Name)
		if err != nil {
			return nil, err
		}
		byType[a.Type.Name] = append(byType[a.Type.Name], a)
	}
	var out []*Asset
	for _, name := range sortedKeys(byType) {
		group := byType[name]
		if len(group) > 1 {
			return nil, errors.Newf(errors.ErrCodeDuplicateAsset,
				"%d %s assets archived for (%s, %s); expected at most one",
				len(group), name, tile, date.Format("2006-01-02"))
		}
		out = append(out, group[0])
	}
	return out, nil
}

func sortedKeys(m map[string][]*Asset) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
