package publish

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/utils"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCS publishes archives to a Google Cloud Storage bucket
type GCS struct {
	service *storage.Service
	bucket  string
	prefix  string
}

// NewGCS creates a GCS publisher. Without a credentials file the
// application default credentials are used. Extra client options are
// appended, which lets tests point the client at a local server.
func NewGCS(ctx context.Context, opts config.GCSOptions, clientOpts ...option.ClientOption) (*GCS, error) {
	var all []option.ClientOption
	if opts.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(opts.CredentialsFile))
	}
	all = append(all, clientOpts...)

	svc, err := storage.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("gcs publisher: failed to create storage service: %w", err)
	}

	return &GCS{service: svc, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// Name implements Publisher
func (g *GCS) Name() string { return "gcs" }

// Object returns the object name an asset is stored under
func (g *GCS) Object(asset Asset) string {
	return path.Join(g.prefix, asset.Module.Name, asset.Module.Version, asset.Name())
}

// Publish implements Publisher
func (g *GCS) Publish(ctx context.Context, asset Asset) error {
	f, err := os.Open(asset.Path)
	if err != nil {
		return fmt.Errorf("failed to open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	object := &storage.Object{
		Name:        g.Object(asset),
		ContentType: "application/zip",
		Metadata: map[string]string{
			"module-name":    asset.Module.Name,
			"module-version": asset.Module.Version,
		},
	}

	res, err := g.service.Objects.Insert(g.bucket, object).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("uploading %s to gs://%s/%s: %w", asset.Name(), g.bucket, object.Name, err)
	}

	utils.LogVerbose("Uploaded gs://%s/%s (generation %d)", g.bucket, res.Name, res.Generation)
	return nil
}
