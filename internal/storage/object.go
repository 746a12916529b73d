package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/dropshare/service/internal/sniff"
)

const (
	// DefaultPartSize is the multipart chunk size and the S3 minimum for
	// every part but the last.
	DefaultPartSize = 5 * 1024 * 1024
	// AbortTimeout bounds the abort call issued after a failed upload.
	AbortTimeout = 30 * time.Second
)

// ObjectStore reads and writes objects in one bucket of an S3-compatible store.
type ObjectStore struct {
	api    ObjectAPI
	bucket string
	logger zerolog.Logger
}

// NewObjectStore returns an ObjectStore for bucket.
func NewObjectStore(api ObjectAPI, bucket string, logger zerolog.Logger) *ObjectStore {
	return &ObjectStore{api: api, bucket: bucket, logger: logger}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return &BackendError{Op: "check bucket", Key: s.bucket, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return &BackendError{Op: "create bucket", Key: s.bucket, Err: err}
	}
	s.logger.Info().Str("bucket", s.bucket).Msg("created bucket")
	return nil
}

// Upload stores r under key with a single PUT. The whole body is buffered,
// so this is meant for payloads below the multipart threshold.
func (s *ObjectStore) Upload(ctx context.Context, key string, r io.Reader) error {
	mime, body, err := sniff.Peek(r)
	if err != nil {
		return fmt.Errorf("read upload header: %w", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("uploading object")
	_, err = s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), "", "", s.putOptions(key, mime))
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("put object failed")
		return &BackendError{Op: "put object", Key: key, Err: err}
	}
	s.logger.Info().Str("key", key).Int("bytes", len(data)).Msg("object uploaded")
	return nil
}

// UploadMultipart stores r under key as a multipart upload with parts of
// partSize bytes. If anything fails after the session was created, the
// session is aborted before returning so no parts are left behind.
func (s *ObjectStore) UploadMultipart(ctx context.Context, key string, r io.Reader, partSize int) error {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	mime, body, err := sniff.Peek(r)
	if err != nil {
		return fmt.Errorf("read upload header: %w", err)
	}

	uploadID, err := s.api.NewMultipartUpload(ctx, s.bucket, key, s.putOptions(key, mime))
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("initiate multipart upload failed")
		return &BackendError{Op: "initiate multipart upload", Key: key, Err: err}
	}
	log := s.logger.With().Str("key", key).Str("upload_id", uploadID).Logger()
	log.Debug().Msg("multipart upload initiated")

	parts, err := s.uploadParts(ctx, key, uploadID, body, partSize, log)
	if err == nil {
		_, err = s.api.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, parts, minio.PutObjectOptions{})
		if err != nil {
			err = &BackendError{Op: "complete multipart upload", Key: key, Err: err}
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("multipart upload failed, aborting")
		return s.abort(ctx, key, uploadID, err, log)
	}

	log.Info().Int("parts", len(parts)).Msg("multipart upload completed")
	return nil
}

// uploadParts sends body in partSize chunks, numbering parts from 1.
func (s *ObjectStore) uploadParts(ctx context.Context, key, uploadID string, body io.Reader, partSize int, log zerolog.Logger) ([]minio.CompletePart, error) {
	var parts []minio.CompletePart
	buf := make([]byte, partSize)
	for partNumber := 1; ; partNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := sniff.Fill(body, buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read part %d: %w", partNumber, err)
		}
		if n == 0 {
			return parts, nil
		}

		part, perr := s.api.PutObjectPart(ctx, s.bucket, key, uploadID, partNumber, bytes.NewReader(buf[:n]), int64(n), minio.PutObjectPartOptions{})
		if perr != nil {
			return nil, &BackendError{Op: fmt.Sprintf("upload part %d", partNumber), Key: key, Err: perr}
		}
		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: part.ETag})
		log.Debug().Int("part", partNumber).Int("bytes", n).Msg("part uploaded")

		if err != nil {
			return parts, nil
		}
	}
}

// abort releases the session after cause. It runs on a context detached
// from ctx so that a cancelled request still gets its session cleaned up.
func (s *ObjectStore) abort(ctx context.Context, key, uploadID string, cause error, log zerolog.Logger) error {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AbortTimeout)
	defer cancel()

	if err := s.api.AbortMultipartUpload(actx, s.bucket, key, uploadID); err != nil {
		log.Error().Err(err).AnErr("cause", cause).Bool("orphaned", true).
			Msg("abort multipart upload failed, parts left in bucket")
		return &AbortError{Key: key, UploadID: uploadID, Cause: cause, AbortErr: err}
	}
	log.Info().Msg("multipart upload aborted")
	return cause
}

// Head returns the metadata of key.
func (s *ObjectStore) Head(ctx context.Context, key string) (Metadata, error) {
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return Metadata{}, ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", key).Msg("head object failed")
		return Metadata{}, &BackendError{Op: "head object", Key: key, Err: err}
	}
	return Metadata{ContentLength: info.Size, ContentType: info.ContentType}, nil
}

// Get checks that key exists and opens its body.
// Caller must close the returned ReadCloser.
func (s *ObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	md, err := s.Head(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	rc, err := s.open(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	return rc, md, nil
}

func (s *ObjectStore) open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, _, _, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", key).Msg("get object failed")
		return nil, &BackendError{Op: "get object", Key: key, Err: err}
	}
	return rc, nil
}

// Ping checks that the bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return &BackendError{Op: "check bucket", Key: s.bucket, Err: err}
	}
	if !exists {
		return &BackendError{Op: "check bucket", Key: s.bucket, Err: errors.New("bucket does not exist")}
	}
	return nil
}

func (s *ObjectStore) putOptions(key, mime string) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:        mime,
		ContentDisposition: `attachment; filename="` + path.Base(key) + `"`,
	}
}
