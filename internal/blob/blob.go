// Package blob archives export artifacts in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignTTL = 24 * time.Hour

type Store struct {
	client *minio.Client
	bucket string
}

// Object describes an archived artifact.
type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	URL    string `json:"url,omitempty"`
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutExport uploads an artifact and returns a presigned download link.
func (s *Store) PutExport(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}
	obj := Object{Bucket: s.bucket, Key: key, Size: info.Size}
	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL, url.Values{})
	if err == nil {
		obj.URL = link.String()
	}
	return obj, nil
}

// ExportKey names an archived export: <workspace>/<UTC timestamp>-<filename>.
func ExportKey(workspaceID, filename string, at time.Time) string {
	name := strings.ReplaceAll(path.Base("/"+filename), " ", "-")
	return path.Join(strings.ReplaceAll(workspaceID, "/", "-"), at.UTC().Format("20060102T150405Z")+"-"+name)
}
