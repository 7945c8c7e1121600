// handlers_map.go - Map session handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/parser"
	"github.com/martinlindhe/eqformat-map/internal/session"
	"github.com/martinlindhe/eqformat-map/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// MapHandlerImpl implements the MapHandler interface
type MapHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	roots    []string
}

// NewMapHandler creates a new map handler instance. Maps can only be opened
// by path from inside roots; relative paths resolve against the first root.
func NewMapHandler(store storage.Store, sessions SessionManager, roots []string) MapHandler {
	return &MapHandlerImpl{
		store:    store,
		sessions: sessions,
		roots:    cleanRoots(roots),
	}
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, resolveLinks(abs))
	}
	return out
}

// resolveLinks evaluates the symlinks of the longest existing prefix of path.
func resolveLinks(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	return filepath.Join(resolveLinks(parent), filepath.Base(path))
}

// ResolveMapPath returns the absolute form of path if it lies inside one of roots.
func ResolveMapPath(roots []string, path string) (string, error) {
	if len(roots) == 0 {
		return "", NewForbiddenError("opening maps by path is disabled")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(roots[0], path)
	}
	abs := resolveLinks(filepath.Clean(path))
	for _, root := range roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return abs, nil
	}
	return "", NewForbiddenError("path is outside the maps directory")
}

// openMapRequest selects a map by file path or by uploaded file set.
type openMapRequest struct {
	Path      string `json:"path"`
	FileSetID string `json:"fileSetId"`
}

func (r *openMapRequest) validate() error {
	r.Path = strings.TrimSpace(r.Path)
	r.FileSetID = strings.TrimSpace(r.FileSetID)
	if r.Path == "" && r.FileSetID == "" {
		return NewValidationError("path")
	}
	if r.Path != "" && r.FileSetID != "" {
		return NewBadRequestError("path and fileSetId are mutually exclusive", nil)
	}
	return nil
}

// lookupSession resolves the :id parameter and marks the session as used.
func lookupSession(sessions SessionManager, c echo.Context) (*session.State, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	state, ok := sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("map", id)
	}
	sessions.Touch(id)
	return state, nil
}

// openError maps a load failure to an API error.
func openError(err error) error {
	if errors.Is(err, parser.ErrBaseLayerMissing) {
		return NewUnprocessableError("map has no base layer", err)
	}
	return NewInternalError("failed to load map", err)
}

// HandleListMaps returns the open maps
func (h *MapHandlerImpl) HandleListMaps(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleOpenMap loads a map from a path on the server or from an upload
func (h *MapHandlerImpl) HandleOpenMap(c echo.Context) error {
	var req openMapRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	var (
		sess *models.MapSession
		err  error
	)
	if req.FileSetID != "" {
		path, lerr := h.store.BasePath(req.FileSetID)
		if lerr != nil {
			return fromLookupError("file set", req.FileSetID, lerr)
		}
		sess, err = h.sessions.OpenFileSet(req.FileSetID, path)
	} else {
		path, perr := ResolveMapPath(h.roots, req.Path)
		if perr != nil {
			return perr
		}
		sess, err = h.sessions.Open(path)
	}
	if err != nil {
		return openError(err)
	}

	c.Logger().Infof("[Map] Opened %s with layers %v", sess.Name, sess.LayerIDs)
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetMap returns the metadata of an open map
func (h *MapHandlerImpl) HandleGetMap(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state.Session)
}

// HandleCloseMap closes an open map
func (h *MapHandlerImpl) HandleCloseMap(c echo.Context) error {
	id := c.Param("id")
	if err := h.sessions.Close(id); err != nil {
		return fromLookupError("map", id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetLayer returns the labels and lines of one layer
func (h *MapHandlerImpl) HandleGetLayer(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	raw := c.Param("layer")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 || id >= models.MaxLayers {
		return NewValidationError("layer")
	}
	layer, ok := state.Map.Layer(id)
	if !ok {
		return NewNotFoundError("layer", raw)
	}
	return c.JSON(http.StatusOK, layer)
}

// HandleGetMapMsgpack returns the whole map in MessagePack format
func (h *MapHandlerImpl) HandleGetMapMsgpack(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(state.Map)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetIssues returns the load report of a map
func (h *MapHandlerImpl) HandleGetIssues(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state.Report)
}
