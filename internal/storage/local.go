package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/dropshare/service/internal/sniff"
)

const (
	// InitialChunkSize is the size of the first read when streaming to disk.
	InitialChunkSize = 16 * 1024
	// MaxChunkSize caps the read size; it doubles from InitialChunkSize.
	MaxChunkSize = 500 * 1024
)

// Local stores files on the local filesystem under a root directory.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal returns a Local rooted at root, creating the directory if needed.
// It fails if root exists but is not a writable directory.
func NewLocal(root string, logger zerolog.Logger) (*Local, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return nil, &IOError{Op: "create upload root", Path: absRoot, Err: err}
	}
	l := &Local{root: absRoot, logger: logger}
	if err := l.Writable(); err != nil {
		return nil, err
	}
	return l, nil
}

// Root returns the absolute upload directory.
func (l *Local) Root() string { return l.root }

// Writable checks that the root exists, is a directory and can be written to.
func (l *Local) Writable() error {
	return checkWritableDir(l.root)
}

// EnsureDir creates dir if it is missing. An existing directory is accepted
// only if it is writable, so calling EnsureDir twice is safe.
func (l *Local) EnsureDir(dir string) error {
	err := os.Mkdir(dir, 0o750)
	switch {
	case err == nil:
		l.logger.Debug().Str("dir", dir).Msg("directory created")
		return nil
	case errors.Is(err, fs.ErrExist):
		if err := checkWritableDir(dir); err != nil {
			return err
		}
		l.logger.Debug().Str("dir", dir).Msg("directory already exists")
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
		return nil
	default:
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
}

// Write streams r to a new file for key and returns the number of bytes
// written. An existing file is never replaced; Write fails with ErrExists.
// A failed write leaves whatever was already written on disk.
func (l *Local) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	dest, err := l.abs(key)
	if err != nil {
		return 0, err
	}
	if err := l.EnsureDir(filepath.Dir(dest)); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("create %s: %w", key, ErrExists)
		}
		return 0, &IOError{Op: "create", Path: dest, Err: err}
	}

	n, werr := copyAdaptive(ctx, f, r, InitialChunkSize, MaxChunkSize)
	cerr := f.Close()
	if werr != nil {
		return n, werr
	}
	if cerr != nil {
		return n, &IOError{Op: "close", Path: dest, Err: cerr}
	}

	l.logger.Info().Str("key", key).Int64("bytes", n).Msg("file saved to disk")
	return n, nil
}

// Open opens key for reading. Caller must close the returned ReadCloser.
func (l *Local) Open(key string) (io.ReadCloser, int64, error) {
	path, err := l.abs(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, notFoundOr(err, "open", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &IOError{Op: "stat", Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, ErrNotFound
	}
	return f, info.Size(), nil
}

// Stat returns the size of key.
func (l *Local) Stat(key string) (int64, error) {
	path, err := l.abs(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, notFoundOr(err, "stat", path)
	}
	if !info.Mode().IsRegular() {
		return 0, ErrNotFound
	}
	return info.Size(), nil
}

// Mime sniffs the content type of key from its first bytes.
func (l *Local) Mime(key string) (string, error) {
	rc, _, err := l.Open(key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	header := make([]byte, sniff.HeaderSize)
	n, err := sniff.Fill(rc, header)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", &IOError{Op: "read", Path: key, Err: err}
	}
	return sniff.Detect(header[:n]), nil
}

// abs resolves key to a path under root, rejecting keys that escape it.
func (l *Local) abs(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("invalid key %q: %w", key, ErrNotFound)
	}
	joined := filepath.Join(l.root, filepath.Clean(filepath.FromSlash(key)))
	rel, err := filepath.Rel(l.root, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes upload root: %w", key, ErrNotFound)
	}
	return joined, nil
}

// copyAdaptive copies src to dst starting with reads of initial bytes and
// doubling the read size after every read that returned data, up to limit.
func copyAdaptive(ctx context.Context, dst io.Writer, src io.Reader, initial, limit int) (int64, error) {
	buf := make([]byte, limit)
	size := initial
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf[:size])
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, &IOError{Op: "write", Path: fileName(dst), Err: werr}
			}
			if m != n {
				return written, &IOError{Op: "write", Path: fileName(dst), Err: io.ErrShortWrite}
			}
			if size < limit {
				size = min(size*2, limit)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func fileName(w io.Writer) string {
	if f, ok := w.(*os.File); ok {
		return f.Name()
	}
	return "stream"
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &IOError{Op: "stat", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &IOError{Op: "stat", Path: dir, Err: fmt.Errorf("not a directory")}
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return &IOError{Op: "access", Path: dir, Err: fmt.Errorf("exists but not writable: %w", err)}
	}
	return nil
}

func notFoundOr(err error, op, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return &IOError{Op: op, Path: path, Err: err}
}
