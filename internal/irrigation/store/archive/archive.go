// Package archive exports expired sensor readings to S3-compatible object
// storage before retention deletes them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/log"
	"github.com/autopeer-io/plantd/pkg/options"
)

var _ core.ReadingArchiver = (*Archiver)(nil)

// objectStore is the subset of *minio.Client the archiver uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes each batch as one newline-delimited JSON object under
// {prefix}/{cutoff}/part-{n}.ndjson.
type Archiver struct {
	client objectStore
	bucket string
	region string
	prefix string
	logger log.Logger
}

// New creates an archiver backed by a minio client.
func New(opts *options.S3Options, logger log.Logger) (*Archiver, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newArchiver(client, opts, logger), nil
}

func newArchiver(client objectStore, opts *options.S3Options, logger log.Logger) *Archiver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Archiver{
		client: client,
		bucket: opts.BucketName,
		region: opts.Region,
		prefix: opts.Prefix,
		logger: logger.WithName("archive"),
	}
}

// CheckBucket makes sure the target bucket exists, creating it if needed.
func (a *Archiver) CheckBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	a.logger.Info("Bucket does not exist, creating", "bucket", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (a *Archiver) Archive(ctx context.Context, cutoff time.Time, part int, readings []model.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range readings {
		if err := enc.Encode(&readings[i]); err != nil {
			return fmt.Errorf("encode reading %d: %w", readings[i].ID, err)
		}
	}

	key := a.objectKey(cutoff, part)
	info, err := a.client.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	a.logger.Debug("Archived readings", "object", key, "readings", len(readings), "bytes", info.Size)
	return nil
}

func (a *Archiver) objectKey(cutoff time.Time, part int) string {
	return path.Join(a.prefix, cutoff.UTC().Format("20060102T150405Z"), fmt.Sprintf("part-%05d.ndjson", part))
}
