package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
)

// fakeAPI is an in-memory ObjectAPI that records every multipart call.
type fakeAPI struct {
	mu sync.Mutex

	objects map[string]fakeObject
	buckets map[string]bool

	uploadID     string
	partNumbers  []int
	partSizes    []int
	partData     [][]byte
	completed    [][]minio.CompletePart
	aborts       int
	putOptions   []minio.PutObjectOptions
	failPart     int // part number whose upload fails; 0 disables
	failInitiate error
	failComplete error
	failAbort    error
	failStat     error
	failBucket   error
	onPart       func(partNumber int)
}

type fakeObject struct {
	data        []byte
	contentType string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects:  make(map[string]fakeObject),
		buckets:  map[string]bool{"uploads": true},
		uploadID: "upload-1",
	}
}

func (f *fakeAPI) PutObject(_ context.Context, _, object string, data io.Reader, _ int64, _, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putOptions = append(f.putOptions, opts)
	f.objects[object] = fakeObject{data: b, contentType: opts.ContentType}
	return minio.UploadInfo{Key: object, Size: int64(len(b))}, nil
}

func (f *fakeAPI) NewMultipartUpload(_ context.Context, _, _ string, opts minio.PutObjectOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInitiate != nil {
		return "", f.failInitiate
	}
	f.putOptions = append(f.putOptions, opts)
	return f.uploadID, nil
}

func (f *fakeAPI) PutObjectPart(_ context.Context, _, _, uploadID string, partID int, data io.Reader, size int64, _ minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	if f.onPart != nil {
		f.onPart(partID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if uploadID != f.uploadID {
		return minio.ObjectPart{}, fmt.Errorf("unknown upload %q", uploadID)
	}
	if partID == f.failPart {
		return minio.ObjectPart{}, minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return minio.ObjectPart{}, err
	}
	if int64(len(b)) != size {
		return minio.ObjectPart{}, fmt.Errorf("part %d: got %d bytes, declared %d", partID, len(b), size)
	}
	f.partNumbers = append(f.partNumbers, partID)
	f.partSizes = append(f.partSizes, len(b))
	f.partData = append(f.partData, b)
	return minio.ObjectPart{PartNumber: partID, ETag: fmt.Sprintf("etag-%d", partID), Size: size}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, _, object, _ string, parts []minio.CompletePart, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, parts)
	if f.failComplete != nil {
		return minio.UploadInfo{}, f.failComplete
	}
	f.objects[object] = fakeObject{data: bytes.Join(f.partData, nil), contentType: f.putOptions[len(f.putOptions)-1].ContentType}
	return minio.UploadInfo{Key: object}, nil
}

func (f *fakeAPI) AbortMultipartUpload(ctx context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.failAbort
}

func (f *fakeAPI) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStat != nil {
		return minio.ObjectInfo{}, f.failStat
	}
	obj, ok := f.objects[object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, _, object string, _ minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[object]
	if !ok {
		return nil, minio.ObjectInfo{}, nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), minio.ObjectInfo{Key: object, Size: int64(len(obj.data))}, http.Header{}, nil
}

func (f *fakeAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBucket != nil {
		return false, f.failBucket
	}
	return f.buckets[bucket], nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = true
	return nil
}

// fakeCache is a MetadataCache backed by a map. When broken is set every
// call behaves like an unreachable cache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]Metadata
	broken  bool
	gets    int
	sets    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]Metadata)}
}

func (c *fakeCache) Get(_ context.Context, key string) (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.broken {
		return Metadata{}, false
	}
	md, ok := c.entries[key]
	return md, ok
}

func (c *fakeCache) Set(_ context.Context, key string, md Metadata) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.broken {
		return false
	}
	c.entries[key] = md
	return true
}

func (c *fakeCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	if c.broken {
		return false
	}
	delete(c.entries, key)
	return true
}

func (c *fakeCache) Ping(context.Context) error {
	if c.broken {
		return errors.New("dial tcp 127.0.0.1:6379: connection refused")
	}
	return nil
}
