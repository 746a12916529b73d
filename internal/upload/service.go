package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dropshare/service/internal/storage"
)

// Service stores uploads under freshly generated keys.
type Service struct {
	backend storage.Backend
	namer   *Namer
	logger  zerolog.Logger
}

// NewService creates a new upload Service.
func NewService(backend storage.Backend, namer *Namer, logger zerolog.Logger) *Service {
	return &Service{backend: backend, namer: namer, logger: logger}
}

// maxKeyAttempts bounds how many segments Store tries when a generated key
// is already taken.
const maxKeyAttempts = 5

// Store writes r under "<random segment>/<sanitized fileName>" and returns
// the key. size must be the real byte count of r (-1 if unknown).
// A key that is already taken is never overwritten: a new segment is drawn.
func (s *Service) Store(ctx context.Context, fileName string, r io.Reader, size int64) (string, error) {
	name := SanitizeFileName(fileName)
	for attempt := 1; ; attempt++ {
		segment, err := s.namer.Generate()
		if err != nil {
			return "", fmt.Errorf("generate segment: %w", err)
		}
		key, err := JoinKey(segment, name)
		if err != nil {
			return "", err
		}

		err = s.backend.Write(ctx, key, r, size)
		switch {
		case err == nil:
			s.logger.Info().Str("key", key).Int64("bytes", size).Str("backend", string(s.backend.Kind())).Msg("upload stored")
			return key, nil
		case errors.Is(err, storage.ErrExists) && attempt < maxKeyAttempts:
			s.logger.Warn().Str("key", key).Int("attempt", attempt).Msg("key taken, drawing a new segment")
		default:
			return "", err
		}
	}
}

// Backend returns the storage backend uploads are written to.
func (s *Service) Backend() storage.Backend {
	return s.backend
}
