// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/render"
	"github.com/martinlindhe/eqformat-map/internal/storage"
	"github.com/martinlindhe/eqformat-map/internal/view"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store         storage.Store
	Sessions      SessionManager
	Renderer      *render.Renderer
	Limits        view.Limits
	Version       string
	AllowDeletion bool
	// MapRoots are the directories maps may be opened from by path.
	MapRoots []string
	// WSReadLimit caps one websocket message in bytes.
	WSReadLimit int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Map    MapHandler
	Upload UploadHandler
	View   ViewHandler
	Socket ViewerSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.New(render.Options{})
	}
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Sessions),
		Map:    NewMapHandler(deps.Store, deps.Sessions, deps.MapRoots),
		Upload: NewUploadHandler(deps.Store, deps.Sessions, deps.AllowDeletion),
		View:   NewViewHandler(deps.Sessions, renderer, deps.Limits),
		Socket: NewViewerSocketHandler(deps.Sessions, deps.Limits, deps.WSReadLimit),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Uploaded map files
	apiGroup.GET("/uploads", handlers.Upload.HandleListUploads)
	apiGroup.DELETE("/uploads/:id", handlers.Upload.HandleDeleteUpload)

	// Map sessions
	mapGroup := apiGroup.Group("/maps")
	mapGroup.GET("", handlers.Map.HandleListMaps)
	mapGroup.POST("/open", handlers.Map.HandleOpenMap)
	mapGroup.POST("/upload", handlers.Upload.HandleUploadMap)
	mapGroup.GET("/:id", handlers.Map.HandleGetMap)
	mapGroup.DELETE("/:id", handlers.Map.HandleCloseMap)
	mapGroup.GET("/:id/layers/:layer", handlers.Map.HandleGetLayer)
	mapGroup.GET("/:id/msgpack", handlers.Map.HandleGetMapMsgpack)
	mapGroup.GET("/:id/issues", handlers.Map.HandleGetIssues)

	// Rendering and queries
	mapGroup.GET("/:id/render", handlers.View.HandleRender)
	mapGroup.GET("/:id/labels/search", handlers.View.HandleSearchLabels)
	mapGroup.GET("/:id/labels.html", handlers.View.HandleLabelsChart)
	mapGroup.GET("/:id/lines", handlers.View.HandleLinesInRect)
	mapGroup.GET("/:id/stats", handlers.View.HandleLayerStats)

	// Viewer input
	mapGroup.GET("/:id/ws", handlers.Socket.HandleViewerSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
