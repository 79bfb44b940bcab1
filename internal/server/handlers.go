package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/git-pkgs/gemindex/internal/checksum"
	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/logger"
	"github.com/git-pkgs/gemindex/internal/service"
)

const (
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeBinary = "application/octet-stream"

	defaultMaxUploadBytes = 64 << 20
	maxFormBytes          = 64 << 10
)

type IndexHandler struct {
	svc            *service.Service
	log            *logger.Logger
	maxUploadBytes int64
}

func NewIndexHandler(svc *service.Service, log *logger.Logger, maxUploadBytes int64) *IndexHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &IndexHandler{
		svc:            svc,
		log:            log.With("handler", "IndexHandler"),
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *IndexHandler) Push(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "Gem exceeds %d bytes", h.maxUploadBytes)
			return
		}
		c.String(http.StatusBadRequest, "reading body: %v", err)
		return
	}

	ack, err := h.svc.Publish(body)
	var conflict *index.ConflictError
	var decode *gemfile.DecodeError
	switch {
	case errors.As(err, &conflict):
		c.String(http.StatusConflict, "Conflict: %s already exists", conflict.FullName)
	case errors.As(err, &decode):
		c.String(http.StatusUnprocessableEntity, "%s", decode.Error())
	case err != nil:
		h.internalError(c, err)
	default:
		c.String(http.StatusOK, "%s", ack)
	}
}

func (h *IndexHandler) Yank(c *gin.Context) {
	params, err := yankParams(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid form: %v", err)
		return
	}

	_, err = h.svc.Yank(params.Get("gem_name"), params.Get("version"), params.Get("platform"))
	switch {
	case errors.Is(err, index.ErrNotFound):
		c.String(http.StatusNotFound, "")
	case err != nil:
		h.internalError(c, err)
	default:
		c.String(http.StatusOK, "")
	}
}

func (h *IndexHandler) Versions(c *gin.Context) {
	body, err := h.svc.Versions()
	if err != nil {
		h.internalError(c, err)
		return
	}
	writeCompactIndex(c, body)
}

func (h *IndexHandler) Info(c *gin.Context) {
	body, err := h.svc.Info(c.Param("name"))
	switch {
	case errors.Is(err, index.ErrNotFound):
		c.Data(http.StatusNotFound, contentTypeText, []byte("This gem could not be found"))
	case err != nil:
		h.internalError(c, err)
	default:
		writeCompactIndex(c, body)
	}
}

func (h *IndexHandler) Names(c *gin.Context) {
	writeCompactIndex(c, h.svc.Names())
}

func (h *IndexHandler) Specs(filter string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := h.svc.Snapshot(filter)
		switch {
		case errors.Is(err, index.ErrNotFound):
			c.Data(http.StatusNotFound, "text/plain", []byte("File not found: /specs.4.8.gz\n"))
		case err != nil:
			h.internalError(c, err)
		default:
			c.Data(http.StatusOK, contentTypeBinary, body)
		}
	}
}

func (h *IndexHandler) QuickSpec(c *gin.Context) {
	file := c.Param("file")
	fullName, ok := strings.CutSuffix(file, ".gemspec.rz")
	if !ok {
		c.Data(http.StatusNotFound, "text/plain", []byte("File not found: /quick/Marshal.4.8/"+file+"\n"))
		return
	}

	body, err := h.svc.Descriptor(fullName)
	switch {
	case errors.Is(err, index.ErrNotFound):
		c.Data(http.StatusNotFound, "text/plain", []byte("File not found: /quick/Marshal.4.8/"+file+"\n"))
	case err != nil:
		h.internalError(c, err)
	default:
		c.Data(http.StatusOK, contentTypeBinary, body)
	}
}

func (h *IndexHandler) Gem(c *gin.Context) {
	file := c.Param("file")
	fullName, ok := strings.CutSuffix(file, ".gem")
	if !ok {
		c.Data(http.StatusNotFound, "text/plain", []byte("File not found: /gems/"+file+"\n"))
		return
	}

	body, err := h.svc.Archive(fullName)
	switch {
	case errors.Is(err, index.ErrNotFound):
		c.Data(http.StatusNotFound, "text/plain", []byte("File not found: /gems/"+file+"\n"))
	case err != nil:
		h.internalError(c, err)
	default:
		c.Data(http.StatusOK, contentTypeBinary, body)
	}
}

func (h *IndexHandler) SetTime(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1024))
	if err != nil {
		c.String(http.StatusBadRequest, "reading body: %v", err)
		return
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(body)))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid time: %v", err)
		return
	}
	c.String(http.StatusOK, "%s", h.svc.SetTime(t))
}

func (h *IndexHandler) Rebuild(c *gin.Context) {
	msg, err := h.svc.Rebuild()
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.String(http.StatusOK, "%s", msg)
}

func (h *IndexHandler) internalError(c *gin.Context, err error) {
	h.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.String(http.StatusInternalServerError, "internal error")
}

// writeCompactIndex writes a compact index document with its cache
// validators, answering 304 when the client already holds it.
func writeCompactIndex(c *gin.Context, body []byte) {
	etag := `"` + checksum.Weak(body) + `"`
	sha := checksum.StrongBase64(body)

	header := c.Writer.Header()
	header.Set("Content-Type", contentTypeText)
	header.Set("Accept-Ranges", "bytes")
	header.Set("ETag", etag)
	header.Set("Digest", "sha-256="+sha)
	header.Set("Repr-Digest", "sha-256=:"+sha+":")

	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, contentTypeText, body)
}

func etagMatches(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// yankParams merges the query string with an urlencoded body, the body
// taking precedence. Request.ParseForm skips DELETE bodies, and gem yank
// sends its parameters in one.
func yankParams(req *http.Request) (url.Values, error) {
	params := req.URL.Query()

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType != "" && mediaType != "application/x-www-form-urlencoded" {
		return params, nil
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxFormBytes))
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	for key, values := range form {
		params[key] = values
	}
	return params, nil
}
