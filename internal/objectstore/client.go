package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dbsmedya/goingest/internal/config"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
)

// Options tunes a Client.
type Options struct {
	ArchivePrefix string
	VerifySize    bool
	CallTimeout   time.Duration
	RateLimitRPS  float64
}

// OptionsFromConfig converts store configuration into client options.
func OptionsFromConfig(cfg *config.StoreConfig) Options {
	return Options{
		ArchivePrefix: cfg.ArchivePrefix,
		VerifySize:    cfg.Verify != "none",
		CallTimeout:   time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		RateLimitRPS:  cfg.RateLimitRPS,
	}
}

// Client wraps a Backend with listing order, atomic downloads and copy-then-delete archiving.
// Every backend call runs under the configured timeout and rate limit.
type Client struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a Client over backend.
func NewClient(backend Backend, opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "archive/"
	}
	c := &Client{backend: backend, opts: opts, log: log}
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return c
}

// New builds the configured backend and wraps it in a Client.
func New(ctx context.Context, cfg *config.StoreConfig, log *logger.Logger) (*Client, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(backend, OptionsFromConfig(cfg), log), nil
}

// call runs fn under the rate limit and per-call timeout. Unclassified errors,
// including timeouts, are reported as StoreUnavailable.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return types.NewError(types.KindStoreUnavailable, fmt.Errorf("rate limiter: %w", err))
		}
	}

	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err != nil && types.KindOf(err) == types.KindNone {
		return types.NewError(types.KindStoreUnavailable, err)
	}
	return err
}

// Ping checks that the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, c.backend.Ping)
}

// ArchiveKey returns where key is moved to by Archive.
func (c *Client) ArchiveKey(key string) string {
	return c.opts.ArchivePrefix + key
}

// List returns every object key under prefix in lexical order. Directory
// markers and keys already under the archive prefix are skipped.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var objects []ObjectInfo
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		objects, err = c.backend.List(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || strings.HasPrefix(obj.Key, c.opts.ArchivePrefix) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Fetch downloads key into dir/<basename(key)> and returns the local path.
// An existing file is replaced. The download goes through a temporary file so a
// failed transfer never leaves a truncated copy behind.
func (c *Client) Fetch(ctx context.Context, key, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	dst := filepath.Join(dir, types.BaseName(key))
	tmp := filepath.Join(dir, "."+types.BaseName(key)+".part")

	err := c.call(ctx, func(ctx context.Context) error {
		return c.backend.Download(ctx, key, tmp)
	})
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	return dst, nil
}

// Stat returns size information for key.
func (c *Client) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = c.backend.Stat(ctx, key)
		return err
	})
	return info, err
}

// Archive moves key under the archive prefix: copy, verify, then delete the original.
//
// A copy failure leaves the original untouched (ArchiveCopyFailed). A delete
// failure leaves both objects in place (ArchiveDeleteFailed); calling Archive
// again overwrites the copy with the same bytes and retries the delete. If the
// original is already gone but the archived copy exists, Archive succeeds.
func (c *Client) Archive(ctx context.Context, key string) error {
	dst := c.ArchiveKey(key)
	log := c.log.WithKey(key)

	err := c.call(ctx, func(ctx context.Context) error {
		return c.backend.Copy(ctx, key, dst)
	})
	if err != nil {
		if types.IsKind(err, types.KindObjectNotFound) {
			if _, statErr := c.Stat(ctx, dst); statErr == nil {
				log.Infow("source already archived", "archive_key", dst)
				return nil
			}
		}
		return types.NewError(types.KindArchiveCopyFailed, err).WithKey(key)
	}

	if c.opts.VerifySize {
		if err := c.verifyCopy(ctx, key, dst); err != nil {
			return types.NewError(types.KindArchiveCopyFailed, err).WithKey(key)
		}
	}

	err = c.call(ctx, func(ctx context.Context) error {
		return c.backend.Delete(ctx, key)
	})
	if err != nil {
		log.Warnw("archived copy written but original not deleted", "archive_key", dst, "error", err)
		return types.NewError(types.KindArchiveDeleteFailed, err).WithKey(key)
	}

	log.Debugw("archived", "archive_key", dst)
	return nil
}

func (c *Client) verifyCopy(ctx context.Context, key, dst string) error {
	src, err := c.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	cp, err := c.Stat(ctx, dst)
	if err != nil {
		return fmt.Errorf("stat archived copy: %w", err)
	}
	if src.Size != cp.Size {
		return fmt.Errorf("archived copy size %d does not match source size %d", cp.Size, src.Size)
	}
	return nil
}
