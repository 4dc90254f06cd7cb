package data

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/geodex/geodex/internal/asset"
	"github.com/geodex/geodex/internal/backend"
	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/internal/metrics"
	"github.com/geodex/geodex/internal/provider"
	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// Fetcher coordinates remote providers, the stage directory, and the
// archiver: deciding what needs fetching, downloading it, and keeping
// product files consistent with the assets they came from.
type Fetcher struct {
	repo     *repository.Repository
	inv      backend.Inventory
	remotes  map[string]provider.Remote
	archiver *asset.Archiver
	log      *slog.Logger
	met      *metrics.Collector

	// now is stubbed by tests pinning availability windows.
	now func() time.Time
}

// NewFetcher wires a fetcher. remotes is keyed by RemoteSpec.Source
// ("http", "s3"); the metrics collector may be nil.
func NewFetcher(repo *repository.Repository, inv backend.Inventory, remotes map[string]provider.Remote, archiver *asset.Archiver, log *slog.Logger, met *metrics.Collector) *Fetcher {
	return &Fetcher{
		repo:     repo,
		inv:      inv,
		remotes:  remotes,
		archiver: archiver,
		log:      log,
		met:      met,
		now:      time.Now,
	}
}

// remoteFor resolves the provider serving one asset type.
func (f *Fetcher) remoteFor(at *driver.AssetType) (provider.Remote, error) {
	if at.Remote == nil {
		return nil, errors.Newf(errors.ErrCodeFetchFailed, "%s has no remote source", at.Name)
	}
	r, ok := f.remotes[at.Remote.Source]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeFetchFailed,
			"no %s provider configured for %s", at.Remote.Source, at.Name)
	}
	return r, nil
}

// NeedToFetch runs the fetch decision procedure for one (asset type,
// tile, date) triple. The returned descriptor is non-nil exactly when a
// fetch should happen. A local archived copy without update pressure
// answers without touching the network.
func (f *Fetcher) NeedToFetch(ctx context.Context, at *driver.AssetType, tile string, date time.Time, update bool) (*provider.Descriptor, error) {
	local, err := asset.Discover(ctx, f.inv, f.repo.Driver(), tile, date, at.Name)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 && !update {
		return nil, nil
	}
	remote, err := f.remoteFor(at)
	if err != nil {
		return nil, err
	}
	desc, err := remote.QueryService(ctx, at, tile, date)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		// Genuinely absent upstream.
		return nil, nil
	}
	if len(local) == 0 {
		return desc, nil
	}
	// Update mode: fetch only a strictly newer version.
	candidate, err := asset.Parse(f.repo.Driver(), desc.Basename)
	if err != nil {
		f.log.Warn("remote offered an unparseable name, skipping",
			"name", desc.Basename, "error", err)
		return nil, nil
	}
	if local[0].Updated(candidate) {
		return desc, nil
	}
	return nil, nil
}

// Fetch walks the cartesian product of the asset types needed for the
// requested products, the tiles, and the dates, fetching whatever the
// decision procedure approves. Availability windows prune dates before
// any network traffic. Each triple's failure is logged and skipped so
// unrelated fetches proceed; the returned error reflects only whole-batch
// failures.
func (f *Fetcher) Fetch(ctx context.Context, products, tiles []string, dates []time.Time, update bool) ([]string, error) {
	d := f.repo.Driver()
	source, err := f.repo.Setting("source")
	if err != nil {
		return nil, err
	}
	assetTypes, err := FetchableAssets(d, source, products)
	if err != nil {
		return nil, err
	}
	now := f.now()

	var fetched []string
	for _, atName := range assetTypes {
		at := d.Assets[atName]
		for _, tile := range tiles {
			for _, date := range dates {
				if !at.Available(date, now) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return fetched, errors.Wrap(errors.ErrCodeOperationCanceled, "fetch batch", err)
				}
				path, err := f.fetchOne(ctx, at, tile, date, update)
				if err != nil {
					f.log.Error("fetch failed, moving on",
						"asset_type", atName, "tile", tile,
						"date", date.Format("2006-01-02"), "error", err)
					continue
				}
				if path != "" {
					fetched = append(fetched, path)
				}
			}
		}
	}
	f.log.Info("fetch pass complete", "driver", d.Name,
		"requested_types", len(assetTypes), "fetched", len(fetched))
	return fetched, nil
}

// fetchOne downloads one approved triple into stage, archiving it
// immediately for inline-archive drivers. An empty path means nothing was
// needed.
func (f *Fetcher) fetchOne(ctx context.Context, at *driver.AssetType, tile string, date time.Time, update bool) (string, error) {
	desc, err := f.NeedToFetch(ctx, at, tile, date, update)
	if err != nil || desc == nil {
		return "", err
	}
	remote, err := f.remoteFor(at)
	if err != nil {
		return "", err
	}
	started := time.Now()
	path, err := remote.Download(ctx, desc, f.repo.StagePath())
	f.met.RecordFetch(f.repo.Driver().Name, at.Name, time.Since(started), err)
	if err != nil {
		return "", err
	}
	f.log.Info("fetched", "asset_type", at.Name, "tile", tile,
		"date", date.Format("2006-01-02"), "file", filepath.Base(path))

	if f.repo.Driver().InlineArchive {
		if _, err := f.ArchiveAssets(ctx, path, asset.Options{Update: update}); err != nil {
			return "", err
		}
	}
	return path, nil
}

// ArchiveAssets wraps the archiver with stale-product invalidation: for
// every asset version replaced in the batch, the product files and index
// rows derived from it are deleted before this call returns. Product
// regeneration always happens after archival, so nothing downstream can
// observe a product built from a superseded asset.
func (f *Fetcher) ArchiveAssets(ctx context.Context, path string, opts asset.Options) (*asset.Result, error) {
	res, err := f.archiver.Archive(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	for _, old := range res.Overwritten {
		if err := f.invalidateProducts(ctx, old); err != nil {
			f.log.Error("stale product invalidation incomplete",
				"asset", old.Filename, "error", err)
		}
	}
	return res, nil
}

// invalidateProducts removes every product file and row derived from a
// superseded asset's type across all of its dates.
func (f *Fetcher) invalidateProducts(ctx context.Context, old *asset.Asset) error {
	d := f.repo.Driver()
	var firstErr error
	for _, date := range old.Dates {
		recs, err := f.inv.ProductSearch(ctx, backend.SearchCriteria{
			Tiles: []string{old.Tile},
			Date:  date,
		})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			prod, ok := d.Products[rec.Product]
			if !ok || !dependsOn(prod.AssetTypes, old.Type.Name) {
				continue
			}
			if err := os.Remove(rec.Name); err != nil && !os.IsNotExist(err) {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if err := f.inv.DeleteProduct(ctx, rec.Product, rec.Tile, rec.Date); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
			f.met.RecordProductsDeleted(d.Name, 1)
		}
	}
	return firstErr
}

func dependsOn(assetTypes []string, name string) bool {
	for _, at := range assetTypes {
		if at == name {
			return true
		}
	}
	return false
}
