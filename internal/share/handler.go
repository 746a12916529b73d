// Package share exposes uploads over HTTP: upload, preview, download and
// health endpoints on top of a storage.Backend.
package share

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dropshare/service/internal/response"
	"github.com/dropshare/service/internal/storage"
	"github.com/dropshare/service/internal/upload"
)

// formMemory is how much of a multipart form is kept in memory before the
// rest spills to a temporary file.
const formMemory = 8 << 20

// formOverhead allows for boundaries and part headers around the file.
const formOverhead = 1 << 20

// Handler holds HTTP handlers for file sharing.
type Handler struct {
	uploads       *upload.Service
	backend       storage.Backend
	maxUploadSize int64
	baseURL       string
	logger        zerolog.Logger
}

// NewHandler creates a new share Handler. baseURL may be empty, in which
// case links are built from the incoming request.
func NewHandler(uploads *upload.Service, maxUploadSize int64, baseURL string, logger zerolog.Logger) *Handler {
	return &Handler{
		uploads:       uploads,
		backend:       uploads.Backend(),
		maxUploadSize: maxUploadSize,
		baseURL:       baseURL,
		logger:        logger,
	}
}

// Routes registers the share endpoints on r. uploadMiddleware wraps only
// the upload routes.
func (h *Handler) Routes(r chi.Router, uploadMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	r.Get("/", h.Index)

	up := r.With(uploadMiddleware...)
	up.Post("/", h.Upload)
	up.Put("/", h.Upload)
	up.Post("/{name}", h.Upload)
	up.Put("/{name}", h.Upload)

	r.Get("/d/{segment}/{name}", h.Download)
	r.Get("/{segment}/{name}", h.Preview)
}

// Links are returned after a successful upload.
type Links struct {
	Preview  string `json:"preview" example:"http://localhost:8080/aZ3kQ9/notes.txt"`
	Download string `json:"download" example:"http://localhost:8080/d/aZ3kQ9/notes.txt"`
}

// FileInfo is the preview of a stored file.
type FileInfo struct {
	FileName string `json:"fileName" example:"notes.txt"`
	FileSize int64  `json:"fileSize" example:"11"`
	FileType string `json:"fileType" example:"text/plain"`
	Download string `json:"download" example:"http://localhost:8080/d/aZ3kQ9/notes.txt"`
}

// Index godoc
//
//	@Summary	Usage
//	@Tags		share
//	@Produce	plain
//	@Success	200	{string}	string
//	@Router		/ [get]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	base := h.base(r)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Upload a file:\n\n  curl --upload-file ./notes.txt %s/\n  curl -F file=@notes.txt %s/\n", base, base)
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stream the raw body (name taken from the path) or send a multipart form with a "file" field.
//	@Tags			share
//	@Accept			octet-stream,mpfd
//	@Produce		json
//	@Param			name	path		string	false	"File name, required for raw uploads"
//	@Param			file	formData	file	false	"File to share"
//	@Success		201		{object}	response.Envelope{data=Links}
//	@Failure		400		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/ [put]
//	@Router			/ [post]
//	@Router			/{name} [put]
//	@Router			/{name} [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		key string
		err error
	)
	switch {
	case mediaType == "multipart/form-data":
		key, err = h.storeForm(w, r, name)
	case name != "":
		key, err = h.storeStream(w, r, name)
	default:
		h.logger.Warn().Str("content_type", r.Header.Get("Content-Type")).Msg("upload without file name or form")
		response.BadRequest(w, "send a multipart form with a file field, or stream the file to /<name>")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, h.links(r, key))
}

// storeStream stores the raw request body. Content-Length is trusted as the
// file size; the body is capped so it cannot exceed the limit anyway.
func (h *Handler) storeStream(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	size := r.ContentLength
	if err := storage.ValidateSize(size, h.maxUploadSize); err != nil {
		return "", err
	}
	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	return h.uploads.Store(r.Context(), name, body, size)
}

// storeForm stores the "file" field of a multipart form. Content-Length
// includes the form encoding, so the file is measured by seeking to its end.
func (h *Handler) storeForm(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		return "", fmt.Errorf("%w: %w", errBadForm, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", errMissingFile
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return "", fmt.Errorf("measure form file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind form file: %w", err)
	}
	if name == "" {
		name = header.Filename
	}
	return h.uploads.Store(r.Context(), name, file, size)
}

// Preview godoc
//
//	@Summary		Preview a file
//	@Description	Returns the name, size and content type of a shared file.
//	@Tags			share
//	@Produce		json
//	@Param			segment	path		string	true	"Random segment"
//	@Param			name	path		string	true	"File name"
//	@Success		200		{object}	response.Envelope{data=FileInfo}
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/{segment}/{name} [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromPath(r)
	if !ok {
		response.NotFound(w, "not found")
		return
	}

	md, err := h.backend.Info(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, FileInfo{
		FileName: path.Base(key),
		FileSize: md.ContentLength,
		FileType: md.ContentType,
		Download: h.links(r, key).Download,
	})
}

// Download godoc
//
//	@Summary	Download a file
//	@Tags		share
//	@Produce	octet-stream
//	@Param		segment	path		string	true	"Random segment"
//	@Param		name	path		string	true	"File name"
//	@Success	200		{file}		binary
//	@Failure	404		{object}	response.Envelope
//	@Failure	500		{object}	response.Envelope
//	@Router		/d/{segment}/{name} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromPath(r)
	if !ok {
		response.NotFound(w, "not found")
		return
	}

	rc, md, err := h.backend.Read(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", md.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(md.ContentLength, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("download interrupted")
		return
	}
	h.logger.Info().Str("key", key).Msg("file downloaded")
}

// Health godoc
//
//	@Summary		Health check
//	@Description	Reports storage and cache reachability separately. Only a storage outage fails the check.
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=storage.Health}
//	@Failure		503	{object}	response.Envelope{data=storage.Health}
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.backend.Healthcheck(r.Context())
	if !health.OK() {
		h.logger.Error().Str("storage", string(health.Storage)).Str("cache", string(health.Cache)).Msg("health check failed")
		response.ServiceUnavailable(w, health, "storage unavailable")
		return
	}
	if health.Cache == storage.StatusUnavailable {
		h.logger.Warn().Msg("cache unavailable, serving from storage")
	}
	response.OK(w, health)
}

func (h *Handler) links(r *http.Request, key string) Links {
	base := h.base(r)
	return Links{
		Preview:  base + "/" + key,
		Download: base + "/d/" + key,
	}
}

func (h *Handler) base(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func keyFromPath(r *http.Request) (string, bool) {
	key, err := upload.JoinKey(chi.URLParam(r, "segment"), chi.URLParam(r, "name"))
	if err != nil {
		return "", false
	}
	return key, true
}
