package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/martinlindhe/eqformat-map/internal/api"
	"github.com/martinlindhe/eqformat-map/internal/config"
	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/parser"
	"github.com/martinlindhe/eqformat-map/internal/render"
	"github.com/martinlindhe/eqformat-map/internal/session"
	"github.com/martinlindhe/eqformat-map/internal/storage"
	"github.com/martinlindhe/eqformat-map/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `Usage: eqmapper [flags] <map file>

Loads an EverQuest map file and its _1.._3 overlay files and serves a
pannable, zoomable viewer.

Flags:
`

func main() {
	var (
		configPath  = flag.String("config", "", "path to the YAML config (default: "+config.DefaultFileName+" next to the executable)")
		addr        = flag.String("addr", "", "listen address, overrides the config (host:port)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("eqmapper %s (built %s)\n", Version, BuildTime)
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	mapPath := flag.Arg(0)

	if *configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), config.DefaultFileName)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("eqmapper", cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Invalid log level: %v\n", err)
		os.Exit(1)
	}

	loader := parser.NewLoader()
	loader.StrictBaseLayer = cfg.Loader.StrictBaseLayer
	loader.Log = logger

	indexOpts := cfg.IndexOptions()
	indexOpts.Log = logger
	sessionMgr := session.NewManager(loader, session.Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		Index:       indexOpts,
		Log:         logger,
	})
	defer sessionMgr.CloseAll()

	sess, err := sessionMgr.OpenPinned(mapPath)
	if err != nil {
		logger.Errorf("Failed to load map %s: %v", mapPath, err)
		os.Exit(1)
	}
	logger.Infof("Loaded %s: layers %v, %d labels, %d lines, %d skipped rows",
		sess.Name, sess.LayerIDs, sess.LabelCount, sess.LineCount, sess.IssueCount)

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}

	// Close maps nobody looked at for a while
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			if n := sessionMgr.CleanupOldSessions(cfg.SessionTimeout()); n > 0 {
				logger.Infof("[Cleanup] Closed %d idle maps", n)
			}
		}
	}()

	mapRoots, err := cfg.MapRoots(mapPath)
	if err != nil {
		logger.Errorf("Failed to resolve map directories: %v", err)
		os.Exit(1)
	}

	e := newServer(cfg, logger)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:         fileStore,
		Sessions:      sessionMgr,
		Renderer:      render.New(cfg.RenderOptions()),
		Limits:        cfg.Viewer.Limits,
		Version:       Version,
		AllowDeletion: cfg.Storage.AllowDeletion,
		MapRoots:      mapRoots,
		WSReadLimit:   int64(cfg.Advanced.WebSocketReadLimitKB) * 1024,
	}))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warnf("Failed to register static routes: %v", err)
			embeddedMode = false
		}
	}

	listen := cfg.GetServerAddr()
	if *addr != "" {
		listen = *addr
	}
	s := &http.Server{
		Addr:         listen,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(*configPath, listen, cfg.GetDataDir(), sess.ID, embeddedMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Shutdown: %v", err)
	}
}

// newServer creates the echo instance with the middleware stack.
func newServer(cfg *config.AppConfig, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			// renders follow every pointer event
			return path == "/api/health" ||
				strings.HasSuffix(path, "/ws") ||
				strings.HasSuffix(path, "/render")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if origins := cfg.AllowedOrigins(); cfg.Server.EnableCORS && len(origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	return e
}

func printBanner(configPath, listen, dataDir, mapID string, embedded bool) {
	mode := "API only"
	if embedded {
		mode = "Embedded viewer"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           EQ Map Viewer                                   ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", listen)
	fmt.Printf("║  Data Dir:  %-46s║\n", dataDir)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embedded {
		fmt.Printf("Open http://%s/?map=%s in your browser\n\n", listen, mapID)
	}
}
