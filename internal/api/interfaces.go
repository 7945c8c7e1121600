// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/index"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/session"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// MapHandler handles opening, listing and closing maps
type MapHandler interface {
	HandleListMaps(c echo.Context) error
	HandleOpenMap(c echo.Context) error
	HandleGetMap(c echo.Context) error
	HandleCloseMap(c echo.Context) error
	HandleGetLayer(c echo.Context) error
	HandleGetMapMsgpack(c echo.Context) error
	HandleGetIssues(c echo.Context) error
}

// UploadHandler handles map file uploads
type UploadHandler interface {
	HandleUploadMap(c echo.Context) error
	HandleListUploads(c echo.Context) error
	HandleDeleteUpload(c echo.Context) error
}

// ViewHandler handles rendering and queries against a loaded map
type ViewHandler interface {
	HandleRender(c echo.Context) error
	HandleSearchLabels(c echo.Context) error
	HandleLinesInRect(c echo.Context) error
	HandleLayerStats(c echo.Context) error
	HandleLabelsChart(c echo.Context) error
}

// ViewerSocketHandler drives a viewer over a websocket
type ViewerSocketHandler interface {
	HandleViewerSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Open(path string) (*models.MapSession, error)
	OpenFileSet(fileSetID, path string) (*models.MapSession, error)
	Get(id string) (*session.State, bool)
	List() []*models.MapSession
	Len() int
	Touch(id string) bool
	Close(id string) error
	CloseFileSet(fileSetID string) int
	Index(ctx context.Context, id string) (*index.Index, error)
}

var _ SessionManager = (*session.Manager)(nil)
