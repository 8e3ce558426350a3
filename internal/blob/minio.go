// Package blob wraps the S3-compatible object store behind the two
// operations the rest of the app needs: store bytes, hand out a download URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	urlTTL := opts.URLTTL
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Store{client: client, bucket: opts.Bucket, urlTTL: urlTTL}, nil
}

// ObjectKey builds the storage path for an upload: a uuid under the owning
// project, keeping only a sanitized extension from the client's filename.
func ObjectKey(projectID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return fmt.Sprintf("projects/%s/%s%s", projectID, uuid.NewString(), ext)
}

func (s *Store) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PresignedGet returns a time-limited download URL for the object, forcing
// the original filename on the browser's save dialog.
func (s *Store) PresignedGet(ctx context.Context, key, downloadName string) (string, error) {
	params := make(url.Values)
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return signed.String(), nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
