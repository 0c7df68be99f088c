// Package objectstore is the Object Store Gateway (C1): MinIO-backed
// storage for raw uploads and derived artifacts, addressed by an opaque
// uri. Generalized from storage/avatar.go's AvatarStorage, which stored
// a single fixed kind of object (user avatars) under a fixed prefix and
// derived its object name from a random uuid; this store instead derives
// a content-addressed key from the tenant, document, and file content so
// re-uploading identical bytes is idempotent at the storage layer.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

// Store wraps a MinIO client scoped to one bucket.
type Store struct {
	client        *minio.Client
	bucket        string
	maxUploadSize int64
}

// New initializes a Store from resolved configuration, creating the
// bucket if it does not already exist (mirrors
// AvatarStorage's BucketExists/MakeBucket bootstrap).
func New(cfg *config.Config) (*Store, error) {
	if strings.TrimSpace(cfg.S3Endpoint) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, ragerrors.New(ragerrors.ConfigError, "objectstore: S3_ENDPOINT and S3_BUCKET are required")
	}

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3Key, cfg.S3Secret, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: check bucket", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{Region: cfg.S3Region}); err != nil {
			return nil, ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: create bucket", err)
		}
	}

	return &Store{client: client, bucket: cfg.S3Bucket, maxUploadSize: cfg.MaxUploadBytes}, nil
}

// Put stores data under the `{tenant}/{document_id}/{sha256}.{ext}` key
// scheme (spec §6.4) and returns the opaque uri (the object key itself;
// opaque to every caller except this package). Atomic: PutObject either
// lands the whole object or none of it, so no partial writes are ever
// visible (spec §4.1).
func (s *Store) Put(ctx context.Context, tenantID string, documentID uint64, data []byte, mime, ext string) (string, error) {
	if int64(len(data)) > s.maxUploadSize {
		return "", ragerrors.New(ragerrors.PayloadTooLarge, fmt.Sprintf("objectstore: %d bytes exceeds cap of %d", len(data), s.maxUploadSize))
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	objectName := path.Join(tenantID, fmt.Sprintf("%d", documentID), fmt.Sprintf("%s.%s", digest, ext))

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(uploadCtx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: mime,
	})
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: put object", err)
	}

	return objectName, nil
}

// Get retrieves the object named by uri.
func (s *Store) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("objectstore: not configured")
	}
	getCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	obj, err := s.client.GetObject(getCtx, s.bucket, uri, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: get object", err)
	}
	if _, err := obj.Stat(); err != nil {
		cancel()
		return nil, ragerrors.New(ragerrors.NotFound, "objectstore: "+uri)
	}
	return &cancelOnClose{ReadCloser: obj, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Delete removes the object named by uri.
func (s *Store) Delete(ctx context.Context, uri string) error {
	delCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.client.RemoveObject(delCtx, s.bucket, uri, minio.RemoveObjectOptions{}); err != nil {
		return ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: delete object", err)
	}
	return nil
}

// Exists reports whether uri names a live object.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	statCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.client.StatObject(statCtx, s.bucket, uri, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, ragerrors.Wrap(ragerrors.StorageUnavailable, "objectstore: stat object", err)
	}
	return true, nil
}
