// Package provider implements the remote-source contract: asking a data
// service whether an asset exists for a (tile, date) and downloading it
// into the stage directory.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/geodex/geodex/internal/driver"
)

// Descriptor identifies one downloadable remote asset. Exactly one of URL
// or (Bucket, Key) is set depending on the source kind.
type Descriptor struct {
	// Basename is the asset filename the download will produce.
	Basename string
	URL      string
	Bucket   string
	Key      string
	// Size is the remote object size when the service reports one; zero
	// otherwise.
	Size int64
}

// Remote is the per-source query/download contract. QueryService returns
// (nil, nil) when the service answered and no asset exists for the triple;
// an error means the service could not be consulted. The two cases are
// never conflated.
type Remote interface {
	QueryService(ctx context.Context, at *driver.AssetType, tile string, date time.Time) (*Descriptor, error)
	// Download fetches the described asset into destDir and returns the
	// final file path. Partial downloads are never visible at the final
	// path.
	Download(ctx context.Context, desc *Descriptor, destDir string) (string, error)
}

// RenderPath expands an asset type's remote path template for a (tile,
// date): {tile} is the tile id, {path} and {row} are the leading and
// trailing halves of six-digit WRS-style tiles, and date tokens follow the
// archive date syntax.
func RenderPath(template, tile string, date time.Time) string {
	out := strings.ReplaceAll(template, "{tile}", tile)
	if len(tile) == 6 {
		out = strings.ReplaceAll(out, "{path}", tile[:3])
		out = strings.ReplaceAll(out, "{row}", tile[3:])
	}
	return driver.FormatDate(out, date)
}
