package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func newTestObjectStore(api *fakeAPI) *ObjectStore {
	return NewObjectStore(api, "uploads", zerolog.Nop())
}

func payload(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestUploadSetsContentHeaders(t *testing.T) {
	api := newFakeAPI()
	s := newTestObjectStore(api)

	err := s.Upload(context.Background(), "ab12cd/notes.txt", strings.NewReader("hello world"))
	require.NoError(t, err)

	require.Len(t, api.putOptions, 1)
	assert.Equal(t, "text/plain", api.putOptions[0].ContentType)
	assert.Equal(t, `attachment; filename="notes.txt"`, api.putOptions[0].ContentDisposition)
	assert.Equal(t, "hello world", string(api.objects["ab12cd/notes.txt"].data))
}

func TestUploadMultipartPartOrdering(t *testing.T) {
	api := newFakeAPI()
	s := newTestObjectStore(api)
	data := payload(12 * mib)

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", bytes.NewReader(data), 5*mib)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, api.partNumbers)
	assert.Equal(t, []int{5 * mib, 5 * mib, 2 * mib}, api.partSizes)
	require.Len(t, api.completed, 1)
	var completed []int
	for _, p := range api.completed[0] {
		completed = append(completed, p.PartNumber)
		assert.NotEmpty(t, p.ETag)
	}
	assert.Equal(t, []int{1, 2, 3}, completed)
	assert.Zero(t, api.aborts)
	assert.Equal(t, data, api.objects["ab12cd/big.bin"].data, "header bytes must lead the first part")
}

func TestUploadMultipartAbortsOnPartFailure(t *testing.T) {
	api := newFakeAPI()
	api.failPart = 3
	s := newTestObjectStore(api)

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", bytes.NewReader(payload(16*mib)), 5*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBackend)
	assert.NotErrorIs(t, err, ErrAbortFailed)
	assert.Equal(t, 1, api.aborts)
	assert.Empty(t, api.completed)
	assert.Equal(t, []int{1, 2}, api.partNumbers)
	assert.NotContains(t, api.objects, "ab12cd/big.bin")
}

func TestUploadMultipartAbortFailureKeepsCause(t *testing.T) {
	api := newFakeAPI()
	api.failPart = 2
	api.failAbort = errors.New("connection reset by peer")
	s := newTestObjectStore(api)

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", bytes.NewReader(payload(11*mib)), 5*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrAbortFailed)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, api.failAbort)

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, "upload-1", abortErr.UploadID)
	assert.Equal(t, 1, api.aborts)
}

func TestUploadMultipartAbortsOnCompleteFailure(t *testing.T) {
	api := newFakeAPI()
	api.failComplete = errors.New("InvalidPart")
	s := newTestObjectStore(api)

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", bytes.NewReader(payload(6*mib)), 5*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBackend)
	assert.Len(t, api.completed, 1)
	assert.Equal(t, 1, api.aborts)
}

func TestUploadMultipartInitiateFailureDoesNotAbort(t *testing.T) {
	api := newFakeAPI()
	api.failInitiate = errors.New("AccessDenied")
	s := newTestObjectStore(api)

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", bytes.NewReader(payload(6*mib)), 5*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBackend)
	assert.Zero(t, api.aborts)
	assert.Empty(t, api.partNumbers)
}

func TestUploadMultipartAbortsOnCancellation(t *testing.T) {
	api := newFakeAPI()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.onPart = func(partNumber int) {
		if partNumber == 2 {
			cancel()
		}
	}
	s := newTestObjectStore(api)

	err := s.UploadMultipart(ctx, "ab12cd/big.bin", bytes.NewReader(payload(16*mib)), 5*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAbortFailed, "abort must run on a detached context")
	assert.Equal(t, 1, api.aborts)
	assert.Empty(t, api.completed)
}

type brokenReader struct {
	r     io.Reader
	after int
	read  int
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.read >= b.after {
		return 0, errors.New("client disconnected")
	}
	if len(p) > b.after-b.read {
		p = p[:b.after-b.read]
	}
	n, err := b.r.Read(p)
	b.read += n
	return n, err
}

func TestUploadMultipartAbortsOnSourceError(t *testing.T) {
	api := newFakeAPI()
	s := newTestObjectStore(api)
	src := &brokenReader{r: bytes.NewReader(payload(12 * mib)), after: 7 * mib}

	err := s.UploadMultipart(context.Background(), "ab12cd/big.bin", src, 5*mib)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "client disconnected")
	assert.Equal(t, []int{1}, api.partNumbers)
	assert.Equal(t, 1, api.aborts)
}

// truncatedBody behaves like an HTTP request body whose client hung up
// before sending Content-Length bytes.
type truncatedBody struct {
	r     io.Reader
	after int
	read  int
}

func (b *truncatedBody) Read(p []byte) (int, error) {
	if b.read >= b.after {
		return 0, io.ErrUnexpectedEOF
	}
	if len(p) > b.after-b.read {
		p = p[:b.after-b.read]
	}
	n, err := b.r.Read(p)
	b.read += n
	return n, err
}

func TestObjectBackendAbortsTruncatedBody(t *testing.T) {
	api := newFakeAPI()
	b := NewObjectBackend(newTestObjectStore(api), Limits{MaxUploadSize: 20 * mib})
	src := &truncatedBody{r: bytes.NewReader(payload(12 * mib)), after: 7 * mib}

	err := b.Write(context.Background(), "ab12cd/big.bin", src, 12*mib)
	require.Error(t, err)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, api.aborts)
	assert.Empty(t, api.completed)
	assert.Equal(t, []int{1}, api.partNumbers, "the short tail must not be sent as a last part")
	assert.NotContains(t, api.objects, "ab12cd/big.bin")
}

func TestUploadMultipartExactPartMultiple(t *testing.T) {
	api := newFakeAPI()
	s := newTestObjectStore(api)

	err := s.UploadMultipart(context.Background(), "ab12cd/even.bin", bytes.NewReader(payload(10*mib)), 5*mib)
	require.NoError(t, err)

	assert.Equal(t, []int{5 * mib, 5 * mib}, api.partSizes)
	assert.Zero(t, api.aborts)
}

func TestHead(t *testing.T) {
	api := newFakeAPI()
	api.objects["ab12cd/a.txt"] = fakeObject{data: []byte("hello"), contentType: "text/plain"}
	s := newTestObjectStore(api)

	md, err := s.Head(context.Background(), "ab12cd/a.txt")
	require.NoError(t, err)
	assert.Equal(t, Metadata{ContentLength: 5, ContentType: "text/plain"}, md)

	_, err = s.Head(context.Background(), "ab12cd/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	api.failStat = errors.New("dial tcp: i/o timeout")
	_, err = s.Head(context.Background(), "ab12cd/a.txt")
	assert.ErrorIs(t, err, ErrBackend)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGet(t *testing.T) {
	api := newFakeAPI()
	api.objects["ab12cd/a.txt"] = fakeObject{data: []byte("hello"), contentType: "text/plain"}
	s := newTestObjectStore(api)

	rc, md, err := s.Get(context.Background(), "ab12cd/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), md.ContentLength)

	_, _, err = s.Get(context.Background(), "ab12cd/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureBucketAndPing(t *testing.T) {
	api := newFakeAPI()
	s := NewObjectStore(api, "fresh", zerolog.Nop())

	assert.Error(t, s.Ping(context.Background()))
	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.NoError(t, s.Ping(context.Background()))

	api.failBucket = errors.New("connection refused")
	assert.ErrorIs(t, s.Ping(context.Background()), ErrBackend)
}
