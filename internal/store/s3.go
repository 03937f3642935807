package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings of an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLPrefix string
}

// S3Store keeps crops in an S3-compatible bucket. Crops are still served
// through the service's static route, so URLs do not expire.
type S3Store struct {
	client    *minio.Client
	bucket    string
	region    string
	urlPrefix string
}

// NewS3Store creates the client. Call EnsureBucket before first use.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		urlPrefix: cfg.URLPrefix,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload crop %s: %w", name, err)
	}

	return URL(s.urlPrefix, name), nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	// GetObject is lazy; stat first so a missing key maps to ErrNotFound.
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Cleanup deletes crops last modified before cutoff. Every delete result is
// consumed so the client's worker goroutines always finish, and the count
// only includes objects the server reported as deleted.
func (s *S3Store) Cleanup(parent context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	objectsCh := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	listDone := make(chan struct{})
	queued := 0

	go func() {
		defer close(listDone)
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			if !isCrop(obj.Key) || !obj.LastModified.Before(cutoff) {
				continue
			}
			select {
			case objectsCh <- minio.ObjectInfo{Key: obj.Key}:
				queued++
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := map[string]bool{}
	batchFailed := false
	var firstErr error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err == nil {
			continue
		}
		if rerr.ObjectName == "" {
			batchFailed = true
		} else {
			failed[rerr.ObjectName] = true
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to delete object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}

	// RemoveObjects stops reading early when it rejects the request up front
	cancel()
	<-listDone

	removed := queued - len(failed)
	if batchFailed || removed < 0 {
		removed = 0
	}

	if firstErr != nil {
		return removed, firstErr
	}
	select {
	case err := <-listErr:
		return removed, fmt.Errorf("failed to list objects: %w", err)
	default:
	}
	if err := parent.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Bucket returns the bucket name
func (s *S3Store) Bucket() string {
	return s.bucket
}
