// handlers_upload.go - Map file upload handlers
package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/storage"
)

// maxUploadFiles is a base file plus three overlays.
const maxUploadFiles = 4

var overlayName = regexp.MustCompile(`^(.*)_([1-3])\.txt$`)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store         storage.Store
	sessions      SessionManager
	allowDeletion bool
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, sessions SessionManager, allowDeletion bool) UploadHandler {
	return &UploadHandlerImpl{
		store:         store,
		sessions:      sessions,
		allowDeletion: allowDeletion,
	}
}

// BaseNameFor picks the base map file name of an upload. A file that is not
// named like an overlay wins; otherwise the base name is derived from the
// first overlay.
func BaseNameFor(names []string) string {
	for _, n := range names {
		if !overlayName.MatchString(n) {
			return n
		}
	}
	if len(names) == 0 {
		return ""
	}
	m := overlayName.FindStringSubmatch(names[0])
	return m[1] + ".txt"
}

// HandleUploadMap stores the uploaded map files and opens the map.
// Files come in the multipart field "files"; "base" optionally names the
// base file.
func (h *UploadHandlerImpl) HandleUploadMap(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files")
	}
	if len(headers) > maxUploadFiles {
		return NewBadRequestError(fmt.Sprintf("at most %d files per map", maxUploadFiles), nil)
	}

	files := make([]storage.File, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return NewBadRequestError("failed to read uploaded file", err)
		}
		defer f.Close()
		files = append(files, storage.File{Name: fh.Filename, Reader: f})
		names = append(names, filepath.Base(fh.Filename))
	}

	base := strings.TrimSpace(firstValue(form, "base"))
	if base == "" {
		base = BaseNameFor(names)
	}

	info, err := h.store.SaveSet(base, files)
	if err != nil {
		return NewBadRequestError("failed to save map files", err)
	}
	path, err := h.store.BasePath(info.ID)
	if err != nil {
		return NewInternalError("failed to locate saved map", err)
	}

	sess, err := h.sessions.OpenFileSet(info.ID, path)
	if err != nil {
		return openError(err)
	}

	c.Logger().Infof("[Upload] Stored %s (%d files, %d bytes) as %s", info.Name, len(info.Files), info.Size, info.ID)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"fileSet": info,
		"session": sess,
	})
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// HandleListUploads returns the most recent uploads
func (h *UploadHandlerImpl) HandleListUploads(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	list, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list uploads", err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleDeleteUpload removes an upload and closes the maps opened from it
func (h *UploadHandlerImpl) HandleDeleteUpload(c echo.Context) error {
	if !h.allowDeletion {
		return NewForbiddenError("deleting uploads is disabled")
	}

	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return fromLookupError("file set", id, err)
	}
	closed := h.sessions.CloseFileSet(id)
	c.Logger().Infof("[Upload] Deleted %s, closed %d maps", id, closed)
	return c.NoContent(http.StatusNoContent)
}
