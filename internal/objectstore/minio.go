package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dbsmedya/goingest/internal/config"
	"github.com/dbsmedya/goingest/internal/types"
)

// MinioBackend talks to MinIO or any S3-compatible endpoint through minio-go.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend creates a MinIO backend from store configuration.
func NewMinioBackend(cfg *config.StoreConfig) (*MinioBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	endpoint, useSSL := parseEndpoint(cfg.Endpoint, cfg.UseSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

// parseEndpoint accepts either host:port or a URL. An https scheme forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, useSSL
	}
	if u.Scheme == "https" {
		useSSL = true
	}
	return u.Host, useSSL
}

func (b *MinioBackend) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if !exists {
		return types.Errorf(types.KindStoreUnavailable, "bucket %q does not exist", b.bucket)
	}
	return nil
}

func (b *MinioBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	objectCh := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objectCh {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return objects, nil
}

func (b *MinioBackend) Download(ctx context.Context, key, dstPath string) error {
	if err := b.client.FGetObject(ctx, b.bucket, key, dstPath, minio.GetObjectOptions{}); err != nil {
		return classifyMinioError(err).WithKey(key)
	}
	return nil
}

func (b *MinioBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: b.bucket, Object: srcKey},
	)
	if err != nil {
		return classifyMinioError(err).WithKey(srcKey)
	}
	return nil
}

func (b *MinioBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinioError(err).WithKey(key)
	}
	return nil
}

func (b *MinioBackend) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, classifyMinioError(err).WithKey(key)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size}, nil
}

// classifyMinioError converts minio-go errors to a classified ingestion error.
func classifyMinioError(err error) *types.Error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject":
		return types.NewError(types.KindObjectNotFound, err)
	case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return types.NewError(types.KindStoreUnavailable, err)
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "no such key") || strings.Contains(errStr, "does not exist") {
		return types.NewError(types.KindObjectNotFound, err)
	}
	return types.NewError(types.KindStoreUnavailable, err)
}
