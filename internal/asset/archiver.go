package asset

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/metrics"
	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// Options controls one archival batch.
type Options struct {
	// Recursive walks subdirectories of the batch path.
	Recursive bool
	// Keep leaves source files in place after archival.
	Keep bool
	// Update lets a strictly newer version replace an archived asset.
	Update bool
}

// Result summarizes one archival batch.
type Result struct {
	// Found counts candidate files seen.
	Found int
	// Archived are the assets now linked at their canonical paths.
	Archived []*Asset
	// Overwritten are the prior versions replaced during an update run;
	// callers owe these stale-product invalidation.
	Overwritten []*Asset
	// SweptProducts are product files deleted alongside replacements.
	SweptProducts []string
	Quarantined   int
	// Gatekept counts candidates refused because an equal-or-newer asset
	// was already archived.
	Gatekept int
	// Present counts candidates that were already archived as-is.
	Present int
}

type outcome int

const (
	outcomeArchived outcome = iota
	outcomePresent
	outcomeGatekept
	outcomeReplaced
)

// Archiver runs the ingest state machine for one driver's archive:
// parse, verify, quarantine or link into the canonical tree, and keep the
// inventory index in step.
type Archiver struct {
	repo *repository.Repository
	inv  backend.Inventory
	log  *slog.Logger
	met  *metrics.Collector
}

// NewArchiver wires an archiver. The metrics collector may be nil.
func NewArchiver(repo *repository.Repository, inv backend.Inventory, log *slog.Logger, met *metrics.Collector) *Archiver {
	return &Archiver{repo: repo, inv: inv, log: log, met: met}
}

// Archive ingests every candidate file under path (or path itself when it
// is a file). Individual file failures are logged and skipped so one bad
// file cannot abort a batch; the error return is reserved for failures of
// the batch itself.
func (ar *Archiver) Archive(ctx context.Context, path string, opts Options) (*Result, error) {
	started := time.Now()
	candidates, err := ar.collect(path, opts.Recursive)
	if err != nil {
		return nil, err
	}
	res := &Result{Found: len(candidates)}
	for _, file := range candidates {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(errors.ErrCodeOperationCanceled, "archive batch", err)
		}
		ar.archiveFile(ctx, file, opts, res)
	}
	ar.met.ObserveArchive(ar.repo.Driver().Name, time.Since(started))
	ar.log.Info("archive batch complete",
		"driver", ar.repo.Driver().Name,
		"path", path,
		"found", res.Found,
		"archived", len(res.Archived),
		"overwritten", len(res.Overwritten),
		"quarantined", res.Quarantined,
		"gatekept", res.Gatekept)
	if archived := len(res.Archived); archived < res.Found {
		ar.log.Warn("not every candidate was archived",
			"found", res.Found, "archived", archived)
	}
	return res, nil
}

// collect lists candidate files, skipping sidecars and in-flight temp
// files so a sweep racing a provider download never quarantines a
// partial file.
func (ar *Archiver) collect(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "reading batch path", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && candidate(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStageRead, "walking batch path", err)
		}
		return files, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStageRead, "reading batch directory", err)
	}
	for _, e := range entries {
		if !e.IsDir() && candidate(e.Name()) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

// candidate filters batch entries down to archivable files. Dot-prefixed
// basenames cover the providers' temp download names.
func candidate(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return !isSidecar(base)
}

func isSidecar(name string) bool {
	for _, ext := range sidecarExts {
		if filepath.Ext(name) == ext || filepath.Base(name) == ext {
			return true
		}
	}
	// .aux.xml is a double extension.
	return len(name) > 8 && name[len(name)-8:] == ".aux.xml"
}

// archiveFile runs the state machine for one candidate.
func (ar *Archiver) archiveFile(ctx context.Context, file string, opts Options, res *Result) {
	a, err := Parse(ar.repo.Driver(), file)
	if err != nil {
		ar.quarantine(file, err, res)
		return
	}
	if err := a.Verify(); err != nil {
		ar.quarantine(file, err, res)
		return
	}

	linked := 0
	for _, date := range a.Dates {
		out, old, err := ar.archiveDate(ctx, a, date, opts)
		if err != nil {
			ar.log.Error("archiving failed for one date",
				"file", file, "date", date.Format("2006-01-02"), "error", err)
			continue
		}
		switch out {
		case outcomeArchived:
			linked++
		case outcomeReplaced:
			linked++
			res.Overwritten = append(res.Overwritten, old)
			ar.met.RecordOverwritten(ar.repo.Driver().Name, a.Type.Name)
		case outcomeGatekept:
			res.Gatekept++
			ar.log.Info("other version already archived, not replacing",
				"file", file, "existing", old.Filename, "update", opts.Update)
		case outcomePresent:
			res.Present++
			ar.log.Debug("already in archive", "file", file)
		}
	}
	if linked == 0 {
		return
	}
	res.Archived = append(res.Archived, a)
	ar.met.RecordArchived(ar.repo.Driver().Name, a.Type.Name)
	if !opts.Keep {
		ar.removeSource(file)
	}
}

// archiveDate links the asset into the canonical directory for one of its
// dates, applying the gatekeeper and update-replacement rules.
func (ar *Archiver) archiveDate(ctx context.Context, a *Asset, date time.Time, opts Options) (outcome, *Asset, error) {
	destDir := ar.repo.DataPath(a.Tile, date)
	destPath := filepath.Join(destDir, filepath.Base(a.Filename))

	existing, err := ar.findExisting(destDir, a.Type.Name)
	if err != nil {
		return 0, nil, err
	}
	if existing != nil {
		// Only the identical file counts as already present. A different
		// file with an equal version is held back by the gatekeeper; the
		// source stays staged for the operator to inspect.
		if filepath.Base(existing.Filename) == filepath.Base(a.Filename) {
			return outcomePresent, existing, nil
		}
		if !opts.Update || !existing.Updated(a) {
			return outcomeGatekept, existing, nil
		}
		if err := ar.replace(ctx, existing, destDir, date); err != nil {
			return 0, nil, err
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, nil, errors.Wrap(errors.ErrCodeArchiveLink, "creating canonical directory", err)
	}
	if err := os.Link(a.Filename, destPath); err != nil {
		return 0, nil, errors.Wrap(errors.ErrCodeArchiveLink,
			"linking into canonical directory", err)
	}
	if err := ar.inv.UpdateOrAddAsset(ctx, backend.AssetRecord{
		Name:      destPath,
		Driver:    ar.repo.Driver().Name,
		AssetType: a.Type.Name,
		Tile:      a.Tile,
		Sensor:    a.Sensor,
		Date:      date,
	}); err != nil {
		ar.log.Error("index update failed after link", "file", destPath, "error", err)
	}
	if existing != nil {
		return outcomeReplaced, existing, nil
	}
	return outcomeArchived, nil, nil
}

// findExisting locates the archived asset of one type in a canonical
// directory. More than one is archive corruption.
func (ar *Archiver) findExisting(destDir, assetType string) (*Asset, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeArchiveLink, "reading canonical directory", err)
	}
	var found *Asset
	for _, e := range entries {
		if e.IsDir() || isSidecar(e.Name()) {
			continue
		}
		a, err := Parse(ar.repo.Driver(), filepath.Join(destDir, e.Name()))
		if err != nil || a.Type.Name != assetType {
			continue
		}
		if found != nil {
			return nil, errors.Newf(errors.ErrCodeDuplicateAsset,
				"both %s and %s archived in %s", found.Filename, a.Filename, destDir)
		}
		found = a
	}
	return found, nil
}

// replace removes a superseded asset and every product file in the
// directory derived from its asset type. Deletion happens before the new
// version is linked so stale products can never outlive their source.
func (ar *Archiver) replace(ctx context.Context, old *Asset, destDir string, date time.Time) error {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchiveSweep, "reading canonical directory", err)
	}
	d := ar.repo.Driver()
	swept := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tif" {
			continue
		}
		pf, err := ar.repo.ParseProductFilename(e.Name())
		if err != nil {
			continue
		}
		prod, ok := d.Products[pf.Product]
		if !ok || !dependsOn(prod.AssetTypes, old.Type.Name) {
			continue
		}
		path := filepath.Join(destDir, e.Name())
		if err := os.Remove(path); err != nil {
			return errors.Wrap(errors.ErrCodeArchiveSweep, "deleting stale product", err)
		}
		if err := ar.inv.DeleteProduct(ctx, pf.Product, old.Tile, date); err != nil {
			ar.log.Error("product index row not deleted", "product", path, "error", err)
		}
		swept++
	}
	if swept > 0 {
		ar.met.RecordProductsDeleted(d.Name, swept)
	}
	for _, ext := range sidecarExts {
		os.Remove(old.Filename + ext)
	}
	if err := os.Remove(old.Filename); err != nil {
		return errors.Wrap(errors.ErrCodeArchiveSweep, "removing superseded asset", err)
	}
	return nil
}

func dependsOn(assetTypes []string, name string) bool {
	for _, at := range assetTypes {
		if at == name {
			return true
		}
	}
	return false
}

// quarantine hard-links an unidentifiable or corrupt file aside. Being
// already quarantined is not an error; the same bad file often reappears
// in stage runs.
func (ar *Archiver) quarantine(file string, cause error, res *Result) {
	res.Quarantined++
	ar.met.RecordQuarantined(ar.repo.Driver().Name)
	qdir := ar.repo.QuarantinePath()
	if err := os.MkdirAll(qdir, 0o755); err != nil {
		ar.log.Error("quarantine directory unavailable", "error", err)
		return
	}
	dest := filepath.Join(qdir, filepath.Base(file))
	if err := os.Link(file, dest); err != nil && !os.IsExist(err) {
		ar.log.Error("quarantine link failed", "file", file, "error", err)
		return
	}
	ar.log.Warn("file quarantined", "file", file, "cause", cause)
}

// removeSource deletes an archived batch file and its sidecars.
func (ar *Archiver) removeSource(file string) {
	for _, ext := range sidecarExts {
		os.Remove(file + ext)
	}
	if err := os.Remove(file); err != nil {
		ar.log.Error("source file not removed after archival", "file", file, "error", err)
	}
}
