// Package storage defines the backend abstraction for uploaded files.
// A Backend is chosen once at startup: files on the local filesystem, objects
// in an S3-compatible store, or objects with metadata cached in Redis.
// Request handlers only ever see the Backend interface.
package storage

import (
	"context"
	"io"
)

// Kind identifies a backend variant.
type Kind string

const (
	KindLocal        Kind = "local"
	KindObject       Kind = "object"
	KindCachedObject Kind = "cached-object"
)

// Metadata describes a stored file.
type Metadata struct {
	ContentLength int64  `json:"contentLength"`
	ContentType   string `json:"contentType"`
}

// Backend is the interface the HTTP layer programs against.
type Backend interface {
	// Kind reports which variant is in use.
	Kind() Kind
	// Write validates declaredSize and stores r under key. A taken key
	// yields ErrExists before anything is read from r.
	Write(ctx context.Context, key string, r io.Reader, declaredSize int64) error
	// Read opens key for streaming. Caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, Metadata, error)
	// Info returns the metadata of key, or ErrNotFound.
	Info(ctx context.Context, key string) (Metadata, error)
	// Healthcheck probes the storage and, when configured, the cache.
	Healthcheck(ctx context.Context) Health
}

// MetadataCache is a best-effort cache of object metadata.
// Implementations must absorb their own failures: Get reports a miss and
// Set/Delete report false instead of returning errors.
type MetadataCache interface {
	Get(ctx context.Context, key string) (Metadata, bool)
	Set(ctx context.Context, key string, md Metadata) bool
	Delete(ctx context.Context, key string) bool
	Ping(ctx context.Context) error
}

// Status is the health of one dependency.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
	StatusDisabled    Status = "disabled"
)

// Health reports storage and cache reachability separately so that a cache
// outage can be told apart from a storage outage.
type Health struct {
	Storage Status `json:"storage"`
	Cache   Status `json:"cache"`
}

// OK reports whether the backend can serve requests. The cache only degrades
// performance, so its status is not considered.
func (h Health) OK() bool {
	return h.Storage == StatusOK
}

func statusOf(err error) Status {
	if err != nil {
		return StatusUnavailable
	}
	return StatusOK
}
