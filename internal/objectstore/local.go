package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dbsmedya/goingest/internal/types"
)

// LocalBackend stores objects on disk under root/<bucket>/<key>.
// Used for development and tests.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a local backend, creating the bucket directory if needed.
func NewLocalBackend(root, bucket string) (*LocalBackend, error) {
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func (b *LocalBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	info, err := os.Stat(b.dir)
	if err != nil {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	if !info.IsDir() {
		return types.Errorf(types.KindStoreUnavailable, "%s is not a directory", b.dir)
	}
	return nil
}

func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.KindStoreUnavailable, err)
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(b.dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, types.NewError(types.KindStoreUnavailable, err)
	}
	return objects, nil
}

func (b *LocalBackend) Download(ctx context.Context, key, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	return copyFile(b.path(key), dstPath, key)
}

func (b *LocalBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	dst := b.path(dstKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return types.NewError(types.KindStoreUnavailable, err).WithKey(dstKey)
	}
	return copyFile(b.path(srcKey), dst, srcKey)
}

// Delete removes key. Deleting a missing key succeeds, as it does on S3.
func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return types.NewError(types.KindStoreUnavailable, err).WithKey(key)
	}
	return nil
}

func (b *LocalBackend) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, types.NewError(types.KindStoreUnavailable, err)
	}
	info, err := os.Stat(b.path(key))
	if err != nil {
		return ObjectInfo{}, classifyFSError(err).WithKey(key)
	}
	return ObjectInfo{Key: key, Size: info.Size()}, nil
}

func copyFile(src, dst, key string) error {
	in, err := os.Open(src)
	if err != nil {
		return classifyFSError(err).WithKey(key)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return types.NewError(types.KindStoreUnavailable, err).WithKey(key)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return types.NewError(types.KindStoreUnavailable, err).WithKey(key)
	}
	if err := out.Close(); err != nil {
		return types.NewError(types.KindStoreUnavailable, err).WithKey(key)
	}
	return nil
}

func classifyFSError(err error) *types.Error {
	if os.IsNotExist(err) {
		return types.NewError(types.KindObjectNotFound, err)
	}
	return types.NewError(types.KindStoreUnavailable, err)
}
