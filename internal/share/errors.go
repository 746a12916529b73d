package share

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropshare/service/internal/response"
	"github.com/dropshare/service/internal/storage"
	"github.com/dropshare/service/internal/upload"
)

var (
	errMissingFile = errors.New(`form has no "file" field`)
	errBadForm     = errors.New("malformed multipart form")
)

// writeError maps an upload or storage error to exactly one response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrEmpty):
		response.BadRequest(w, "empty file")
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &maxBytes):
		response.TooLarge(w, fmt.Sprintf("file too large, limit %s", formatSize(h.maxUploadSize)))
	case errors.Is(err, storage.ErrNotFound):
		response.NotFound(w, "not found")
	case errors.Is(err, upload.ErrInvalidName):
		response.BadRequest(w, "invalid file name")
	case errors.Is(err, errMissingFile):
		response.BadRequest(w, err.Error())
	case errors.Is(err, errBadForm):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected form upload")
		response.BadRequest(w, errBadForm.Error())
	default:
		event := h.logger.Error()
		if errors.Is(err, context.Canceled) {
			event = h.logger.Warn()
		}
		if errors.Is(err, storage.ErrAbortFailed) {
			event = event.Bool("orphaned_upload", true)
		}
		event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		response.InternalError(w)
	}
}

func formatSize(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
