package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
	"github.com/geodex/geodex/pkg/retry"
)

// s3API is the slice of the S3 client the provider uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 queries providers that publish assets in object storage (Landsat and
// Sentinel-2 public buckets).
type S3 struct {
	client  s3API
	retryer *retry.Retryer
}

var _ Remote = (*S3)(nil)

// NewS3 builds an S3 provider from the ambient AWS configuration.
func NewS3(ctx context.Context, region string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectionFailed, "loading AWS configuration", err)
	}
	return &S3{
		client:  s3.NewFromConfig(cfg),
		retryer: retry.New(retry.DefaultConfig()),
	}, nil
}

// NewS3WithClient wires an explicit client; tests inject fakes here.
func NewS3WithClient(client s3API) *S3 {
	return &S3{client: client, retryer: retry.New(retry.DefaultConfig())}
}

// QueryService lists the rendered key prefix and matches object basenames
// against the asset pattern. An empty listing or no match is (nil, nil).
func (p *S3) QueryService(ctx context.Context, at *driver.AssetType, tile string, date time.Time) (*Descriptor, error) {
	if at.Remote == nil || at.Remote.Bucket == "" {
		return nil, errors.Newf(errors.ErrCodeQueryFailed, "%s has no S3 source", at.Name)
	}
	prefix := RenderPath(at.Remote.PathTemplate, tile, date)

	var desc *Descriptor
	err := p.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(at.Remote.Bucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeNetworkError,
				fmt.Sprintf("listing s3://%s/%s", at.Remote.Bucket, prefix), err)
		}
		desc = nil
		var bestBase string
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			base := filepath.Base(key)
			if _, ok := at.Match(base); !ok {
				continue
			}
			if base > bestBase {
				bestBase = base
				desc = &Descriptor{
					Basename: base,
					Bucket:   at.Remote.Bucket,
					Key:      key,
					Size:     aws.ToInt64(obj.Size),
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// Download fetches the object into destDir via a temp file.
func (p *S3) Download(ctx context.Context, desc *Descriptor, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeDownloadFailed, "creating stage directory", err)
	}
	final := filepath.Join(destDir, desc.Basename)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	}
	tmp := filepath.Join(destDir, ".download-"+uuid.NewString())

	err := p.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(desc.Bucket),
			Key:    aws.String(desc.Key),
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeNetworkError,
				fmt.Sprintf("fetching s3://%s/%s", desc.Bucket, desc.Key), err)
		}
		defer out.Body.Close()
		f, err := os.Create(tmp)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDownloadFailed, "creating temp file", err)
		}
		if _, err := io.Copy(f, out.Body); err != nil {
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
