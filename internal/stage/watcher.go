// Package stage watches a repository's stage directory and archives
// files as they settle, so a fetch daemon or manual drop-off needs no
// explicit archive step.
package stage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/geodex/geodex/internal/asset"
	"github.com/geodex/geodex/internal/config"
	"github.com/geodex/geodex/internal/repository"
	"github.com/geodex/geodex/pkg/errors"
)

// Archival is the slice of the fetch coordinator the watcher drives.
type Archival interface {
	ArchiveAssets(ctx context.Context, path string, opts asset.Options) (*asset.Result, error)
}

// Watcher archives everything that lands in stage/ once events go quiet
// for the settle delay. Partial writes are invisible as long as producers
// follow the temp-then-rename convention.
type Watcher struct {
	repo   *repository.Repository
	arch   Archival
	log    *slog.Logger
	settle time.Duration
	update bool
}

// NewWatcher builds a watcher. A zero settle delay takes the default.
func NewWatcher(repo *repository.Repository, arch Archival, cfg config.StageConfig, update bool, log *slog.Logger) *Watcher {
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = 5 * time.Second
	}
	return &Watcher{repo: repo, arch: arch, log: log, settle: settle, update: update}
}

// Run blocks until the context is canceled. Whatever is already staged is
// archived first, then each burst of events triggers one sweep after the
// settle delay.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternalError, "creating stage watcher", err)
	}
	defer fw.Close()
	if err := fw.Add(w.repo.StagePath()); err != nil {
		return errors.Wrap(errors.ErrCodeStageRead, "watching stage directory", err)
	}
	w.log.Info("watching stage", "dir", w.repo.StagePath(), "settle", w.settle)

	w.sweep(ctx)

	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			pending = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.settle)
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("stage watch error", "error", werr)
		case <-timer.C:
			if pending {
				pending = false
				w.sweep(ctx)
			}
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	res, err := w.arch.ArchiveAssets(ctx, w.repo.StagePath(),
		asset.Options{Recursive: true, Update: w.update})
	if err != nil {
		w.log.Error("stage sweep failed", "error", err)
		return
	}
	if res.Found > 0 {
		w.log.Info("stage sweep", "found", res.Found,
			"archived", len(res.Archived), "quarantined", res.Quarantined,
			"gatekept", res.Gatekept)
	}
}

// relevant filters out dotfiles, in-flight temp names, and sidecars.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	if strings.HasSuffix(base, asset.IndexExt) || strings.HasSuffix(base, ".aux.xml") {
		return false
	}
	return true
}
