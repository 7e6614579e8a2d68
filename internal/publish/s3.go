package publish

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/gnzdotmx/psforge/internal/config"
	"github.com/gnzdotmx/psforge/internal/utils"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectPutter is the part of the minio client the publisher uses
type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 publishes archives to an S3 compatible bucket
type S3 struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3 creates an S3 publisher with static credentials
func NewS3(opts config.S3Options, accessKey, secretKey string) (*S3, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("s3 publisher: environment variables %s and %s must be set", opts.AccessKeyEnv, opts.SecretKeyEnv)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:    opts.UseSSL == nil || *opts.UseSSL,
		Region:    opts.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 publisher: %w", err)
	}

	return &S3{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// Name implements Publisher
func (s *S3) Name() string { return "s3" }

// Key returns the object key an asset is stored under
func (s *S3) Key(asset Asset) string {
	return path.Join(s.prefix, asset.Module.Name, asset.Module.Version, asset.Name())
}

// Publish implements Publisher. Uploading the same key again overwrites it.
func (s *S3) Publish(ctx context.Context, asset Asset) error {
	key := s.Key(asset)
	info, err := s.client.FPutObject(ctx, s.bucket, key, asset.Path, minio.PutObjectOptions{
		ContentType: "application/zip",
		UserMetadata: map[string]string{
			"module-name":    asset.Module.Name,
			"module-version": asset.Module.Version,
		},
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", asset.Name(), s.bucket, key, err)
	}

	utils.LogVerbose("Uploaded s3://%s/%s (%d bytes)", s.bucket, key, info.Size)
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
