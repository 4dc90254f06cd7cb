package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
	"github.com/geodex/geodex/pkg/retry"
)

// hrefPattern pulls link targets out of a directory-index page.
var hrefPattern = regexp.MustCompile(`href="([^"?]+)"`)

// HTTP queries providers that publish assets through directory-index
// pages (LAADS, USGS, PRISM). Listings are fetched, scraped for links
// matching the asset pattern, and the best version wins.
type HTTP struct {
	client   *http.Client
	retryer  *retry.Retryer
	username string
	password string
}

// HTTPOptions configures an HTTP provider.
type HTTPOptions struct {
	// Timeout bounds each request; zero means 60s.
	Timeout time.Duration
	// Username and Password enable basic auth when both set.
	Username string
	Password string
	// MaxAttempts overrides the retry budget when positive.
	MaxAttempts int
}

// NewHTTP builds an HTTP provider.
func NewHTTP(opts HTTPOptions) *HTTP {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	retryer := retry.New(retry.DefaultConfig())
	if opts.MaxAttempts > 0 {
		retryer = retryer.WithMaxAttempts(opts.MaxAttempts)
	}
	return &HTTP{
		client:   &http.Client{Timeout: timeout},
		retryer:  retryer,
		username: opts.Username,
		password: opts.Password,
	}
}

var _ Remote = (*HTTP)(nil)

func (h *HTTP) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "building request", err)
	}
	if h.username != "" {
		req.SetBasicAuth(h.username, h.password)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetworkError,
			fmt.Sprintf("GET %s", rawURL), err)
	}
	return resp, nil
}

// QueryService fetches the listing for the (tile, date) directory and
// scrapes it for the asset pattern. A missing directory or a listing with
// no match means the asset genuinely does not exist: (nil, nil).
func (h *HTTP) QueryService(ctx context.Context, at *driver.AssetType, tile string, date time.Time) (*Descriptor, error) {
	if at.Remote == nil {
		return nil, errors.Newf(errors.ErrCodeQueryFailed, "%s has no remote source", at.Name)
	}
	listURL := RenderPath(at.Remote.PathTemplate, tile, date)

	var desc *Descriptor
	err := h.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		resp, err := h.get(ctx, listURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			desc = nil
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Newf(errors.ErrCodeQueryFailed,
				"GET %s: %s", listURL, resp.Status).WithRetryable(resp.StatusCode >= 500)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return errors.Wrap(errors.ErrCodeNetworkError, "reading listing", err)
		}
		desc = h.pickMatch(at, listURL, string(body))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// pickMatch scans the listing for links matching the asset pattern. When a
// directory lists several versions, the lexically last basename wins;
// provider version stamps sort with their recency.
func (h *HTTP) pickMatch(at *driver.AssetType, listURL, body string) *Descriptor {
	var best string
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		base := filepath.Base(strings.TrimSuffix(m[1], "/"))
		if _, ok := at.Match(base); !ok {
			continue
		}
		if base > best {
			best = base
		}
	}
	if best == "" {
		return nil
	}
	ref, err := url.JoinPath(listURL, best)
	if err != nil {
		return nil
	}
	return &Descriptor{Basename: best, URL: ref}
}

// Download streams the asset into destDir through a temp file so a broken
// transfer never leaves a partial file at the final name.
func (h *HTTP) Download(ctx context.Context, desc *Descriptor, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeDownloadFailed, "creating stage directory", err)
	}
	final := filepath.Join(destDir, desc.Basename)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}
	tmp := filepath.Join(destDir, ".download-"+uuid.NewString())

	err := h.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		resp, err := h.get(ctx, desc.URL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Newf(errors.ErrCodeDownloadFailed,
				"GET %s: %s", desc.URL, resp.Status).WithRetryable(resp.StatusCode >= 500)
		}
		f, err := os.Create(tmp)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDownloadFailed, "creating temp file", err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(tmp)
			return errors.Wrap(errors.ErrCodeNetworkError, "streaming download", err)
		}
		return f.Close()
	})
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrCodeDownloadFailed, "moving download into place", err)
	}
	return final, nil
}
