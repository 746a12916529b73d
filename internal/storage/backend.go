package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DefaultMultipartThreshold is the declared size at which object uploads
// switch from a single PUT to a multipart upload.
const DefaultMultipartThreshold = 5 * 1024 * 1024

// Limits are the size settings shared by all backends.
type Limits struct {
	MaxUploadSize      int64
	MultipartThreshold int64
	PartSize           int
}

// LocalBackend serves files from a Local store.
type LocalBackend struct {
	store  *Local
	limits Limits
}

// NewLocalBackend returns a Backend writing to store.
func NewLocalBackend(store *Local, limits Limits) *LocalBackend {
	return &LocalBackend{store: store, limits: limits}
}

// Kind reports KindLocal.
func (b *LocalBackend) Kind() Kind { return KindLocal }

// Write validates declaredSize and streams r to a new file for key.
func (b *LocalBackend) Write(ctx context.Context, key string, r io.Reader, declaredSize int64) error {
	if err := ValidateSize(declaredSize, b.limits.MaxUploadSize); err != nil {
		return err
	}
	_, err := b.store.Write(ctx, key, r)
	return err
}

// Read opens key together with its size and sniffed content type.
func (b *LocalBackend) Read(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	md, err := b.Info(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	rc, size, err := b.store.Open(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	md.ContentLength = size
	return rc, md, nil
}

// Info returns the size and sniffed content type of key.
func (b *LocalBackend) Info(_ context.Context, key string) (Metadata, error) {
	size, err := b.store.Stat(key)
	if err != nil {
		return Metadata{}, err
	}
	mime, err := b.store.Mime(key)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{ContentLength: size, ContentType: mime}, nil
}

// Healthcheck reports whether the upload root is still writable.
func (b *LocalBackend) Healthcheck(context.Context) Health {
	return Health{Storage: statusOf(b.store.Writable()), Cache: StatusDisabled}
}

// ObjectBackend serves objects from an ObjectStore.
type ObjectBackend struct {
	store  *ObjectStore
	limits Limits
}

// NewObjectBackend returns a Backend writing to store. Zero threshold and
// part size fall back to the defaults.
func NewObjectBackend(store *ObjectStore, limits Limits) *ObjectBackend {
	if limits.MultipartThreshold <= 0 {
		limits.MultipartThreshold = DefaultMultipartThreshold
	}
	if limits.PartSize <= 0 {
		limits.PartSize = DefaultPartSize
	}
	return &ObjectBackend{store: store, limits: limits}
}

// Kind reports KindObject.
func (b *ObjectBackend) Kind() Kind { return KindObject }

// Write uploads r in one request when declaredSize is below the multipart
// threshold and as a multipart upload otherwise. A key that already holds
// an object is refused with ErrExists.
func (b *ObjectBackend) Write(ctx context.Context, key string, r io.Reader, declaredSize int64) error {
	if err := ValidateSize(declaredSize, b.limits.MaxUploadSize); err != nil {
		return err
	}
	switch _, err := b.store.Head(ctx, key); {
	case err == nil:
		return fmt.Errorf("put %s: %w", key, ErrExists)
	case !errors.Is(err, ErrNotFound):
		return err
	}
	if declaredSize >= b.limits.MultipartThreshold {
		return b.store.UploadMultipart(ctx, key, r, b.limits.PartSize)
	}
	return b.store.Upload(ctx, key, r)
}

// Read opens the object stored under key.
func (b *ObjectBackend) Read(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	return b.store.Get(ctx, key)
}

// Info returns the stored metadata of key.
func (b *ObjectBackend) Info(ctx context.Context, key string) (Metadata, error) {
	return b.store.Head(ctx, key)
}

// Healthcheck reports whether the bucket is reachable.
func (b *ObjectBackend) Healthcheck(ctx context.Context) Health {
	return Health{Storage: statusOf(b.store.Ping(ctx)), Cache: StatusDisabled}
}

// CachedObjectBackend is an ObjectBackend with metadata lookups served from
// a MetadataCache when possible. The cache is never required for a request
// to succeed.
type CachedObjectBackend struct {
	*ObjectBackend
	cache  MetadataCache
	logger zerolog.Logger
}

// NewCachedObjectBackend wraps object with cache.
func NewCachedObjectBackend(object *ObjectBackend, cache MetadataCache, logger zerolog.Logger) *CachedObjectBackend {
	return &CachedObjectBackend{ObjectBackend: object, cache: cache, logger: logger}
}

// Kind reports KindCachedObject.
func (b *CachedObjectBackend) Kind() Kind { return KindCachedObject }

// Write uploads r and drops any cached metadata left for key.
func (b *CachedObjectBackend) Write(ctx context.Context, key string, r io.Reader, declaredSize int64) error {
	if err := b.ObjectBackend.Write(ctx, key, r, declaredSize); err != nil {
		return err
	}
	b.cache.Delete(ctx, key)
	return nil
}

// Info looks key up in the cache and falls back to a HEAD request on a
// miss, storing the result for later lookups.
func (b *CachedObjectBackend) Info(ctx context.Context, key string) (Metadata, error) {
	if md, ok := b.cache.Get(ctx, key); ok {
		return md, nil
	}
	md, err := b.store.Head(ctx, key)
	if err != nil {
		return Metadata{}, err
	}
	if !b.cache.Set(ctx, key, md) {
		b.logger.Debug().Str("key", key).Msg("metadata not cached")
	}
	return md, nil
}

// Read opens key, evicting its cache entry if the object has disappeared.
func (b *CachedObjectBackend) Read(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	md, err := b.Info(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	rc, err := b.store.open(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.cache.Delete(ctx, key)
		}
		return nil, Metadata{}, err
	}
	return rc, md, nil
}

// Healthcheck reports storage and cache reachability separately.
func (b *CachedObjectBackend) Healthcheck(ctx context.Context) Health {
	return Health{
		Storage: statusOf(b.store.Ping(ctx)),
		Cache:   statusOf(b.cache.Ping(ctx)),
	}
}

var (
	_ Backend = (*LocalBackend)(nil)
	_ Backend = (*ObjectBackend)(nil)
	_ Backend = (*CachedObjectBackend)(nil)
)
