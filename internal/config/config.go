// Package config provides YAML-based configuration for the map viewer.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/martinlindhe/eqformat-map/internal/index"
	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/render"
	"github.com/martinlindhe/eqformat-map/internal/view"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up next to the executable when no -config is given.
const DefaultFileName = "eqmapper.yaml"

// AppConfig is the root of the configuration file.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Loader   LoaderConfig   `yaml:"loader"`
	Sessions SessionsConfig `yaml:"sessions"`
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory"`
	AllowDeletion    bool   `yaml:"allow_deletion"`
	// MapsDirectory is where POST /api/maps/open may read map files from,
	// besides the directory of the map given on the command line.
	MapsDirectory string `yaml:"maps_directory"`
}

// ViewerConfig sizes the rendered viewport and bounds its zoom.
type ViewerConfig struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Background  string `yaml:"background"`
	view.Limits `yaml:",inline"`
}

// LoaderConfig controls map loading.
type LoaderConfig struct {
	StrictBaseLayer bool `yaml:"strict_base_layer"`
}

// SessionsConfig bounds the number and lifetime of loaded maps.
type SessionsConfig struct {
	MaxSessions            int `yaml:"max_sessions"`
	SessionTimeoutMinutes  int `yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
	DuckDBThreads        int    `yaml:"duckdb_threads"`
	DuckDBMemoryLimit    string `yaml:"duckdb_memory_limit"`
	WebSocketReadLimitKB int    `yaml:"websocket_read_limit_kb"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			AllowDeletion:    true,
		},
		Viewer: ViewerConfig{
			Width:      1100,
			Height:     700,
			Background: "#846a37",
			Limits:     view.DefaultLimits(),
		},
		Sessions: SessionsConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  60,
			CleanupIntervalMinutes: 5,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
			WebSocketReadLimitKB: 64,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. Environment overrides are applied afterwards.
func LoadConfig(configPath string) (*AppConfig, error) {
	// .env next to the config file, then in the working directory
	loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env")

	var config *AppConfig
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		config = DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		config = DefaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	config.resolvePaths(absDir)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// loadDotEnv loads the first existing file. Variables already set win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := append([]byte("# eqmapper configuration\n# This file is auto-generated on first run\n\n"), output...)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() error {
	if port := os.Getenv("EQMAPPER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("EQMAPPER_PORT: %w", err)
		}
		c.Server.Port = p
	}

	if dataDir := os.Getenv("EQMAPPER_DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if strict := os.Getenv("EQMAPPER_STRICT_BASE"); strict != "" {
		b, err := strconv.ParseBool(strict)
		if err != nil {
			return fmt.Errorf("EQMAPPER_STRICT_BASE: %w", err)
		}
		c.Loader.StrictBaseLayer = b
	}

	if level := os.Getenv("EQMAPPER_LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if c.Storage.MapsDirectory != "" && !filepath.IsAbs(c.Storage.MapsDirectory) {
		c.Storage.MapsDirectory = filepath.Join(configDir, c.Storage.MapsDirectory)
	}
}

// Validate rejects values the viewer cannot work with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Viewer.Width <= 0 || c.Viewer.Height <= 0 {
		errs = append(errs, fmt.Errorf("viewer size %dx%d must be positive", c.Viewer.Width, c.Viewer.Height))
	}
	if _, err := render.ParseHexColor(c.Viewer.Background); err != nil {
		errs = append(errs, fmt.Errorf("viewer.background: %w", err))
	}
	if err := c.Viewer.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("viewer: %w", err))
	}
	if c.Sessions.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions must be positive"))
	}
	if _, err := logging.ParseLevel(c.Advanced.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("advanced.log_level: %w", err))
	}
	return errors.Join(errs...)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AllowedOrigins splits allow_origins. Empty means no cross-origin access:
// only the embedded viewer, served from the same origin, can call the API.
func (c *AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// MapRoots returns the directories maps may be opened from by path: the
// directory of mapPath and the configured maps directory, when set.
func (c *AppConfig) MapRoots(mapPath string) ([]string, error) {
	var roots []string
	if mapPath != "" {
		abs, err := filepath.Abs(mapPath)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", mapPath, err)
		}
		roots = append(roots, filepath.Dir(abs))
	}
	if c.Storage.MapsDirectory != "" {
		roots = append(roots, c.Storage.MapsDirectory)
	}
	return roots, nil
}

// RenderOptions returns the renderer settings. Validate must have passed.
func (c *AppConfig) RenderOptions() render.Options {
	bg, err := render.ParseHexColor(c.Viewer.Background)
	var background color.Color = bg
	if err != nil {
		background = render.DefaultBackground
	}
	return render.Options{
		Width:      c.Viewer.Width,
		Height:     c.Viewer.Height,
		Background: background,
	}
}

// IndexOptions returns the DuckDB settings for per-map indexes.
func (c *AppConfig) IndexOptions() index.Options {
	return index.Options{
		Threads:     c.Advanced.DuckDBThreads,
		MemoryLimit: c.Advanced.DuckDBMemoryLimit,
	}
}

// SessionTimeout returns how long an untouched map stays loaded.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired maps are closed.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
