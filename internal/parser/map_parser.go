package parser

import (
	"errors"
	"fmt"

	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/models"
)

// ErrBaseLayerMissing is returned by a strict Loader when the base map file
// could not be read.
var ErrBaseLayerMissing = errors.New("base map layer missing")

// Logger receives load diagnostics. *gommon/log.Logger and echo.Logger satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Loader builds maps from a base file and its overlay files.
type Loader struct {
	// StrictBaseLayer makes a missing base layer an error instead of an empty map.
	StrictBaseLayer bool
	Log             Logger
	Registry        *Registry
	// ReadFile reads a whole file as text.
	ReadFile func(path string) (string, error)
}

// LoadReport describes what a load found: one outcome per attempted layer
// and every skipped row.
type LoadReport struct {
	Base   string                `json:"base"`
	Layers []models.LayerOutcome `json:"layers"`
	Issues []models.RowIssue     `json:"issues"`
}

// NewLoader returns a lenient loader logging to the default logger.
func NewLoader() *Loader {
	return &Loader{
		Log:      logging.Default(),
		Registry: GetGlobalRegistry(),
		ReadFile: ReadFileString,
	}
}

// LoadMap loads the base map file and any overlay files next to it.
// Missing or unreadable files only leave their layer out, so the result may
// have zero layers.
func LoadMap(base string) *models.Map {
	m, _, _ := NewLoader().Load(base)
	return m
}

// Load reads layer 0 from base and layers 1-3 from the derived overlay files.
// The error is non-nil only for a strict loader whose base layer is missing.
func (l *Loader) Load(base string) (*models.Map, *LoadReport, error) {
	m := &models.Map{
		Base:   base,
		Layers: make([]models.Layer, 0, models.MaxLayers),
	}
	report := &LoadReport{
		Base:   base,
		Layers: make([]models.LayerOutcome, 0, models.MaxLayers),
		Issues: make([]models.RowIssue, 0),
	}

	for id := 0; id < models.MaxLayers; id++ {
		path := base
		if id > 0 {
			p, err := LayerFilename(id, base)
			if err != nil {
				l.logger().Warnf("[Layer %d] %v", id, err)
				report.Layers = append(report.Layers, models.LayerOutcome{
					ID:     id,
					Path:   base,
					Status: models.LayerStatusMissing,
					Reason: err.Error(),
				})
				continue
			}
			path = p
		}

		layer, outcome, issues := l.readLayer(id, path)
		report.Layers = append(report.Layers, outcome)
		report.Issues = append(report.Issues, issues...)
		if layer != nil {
			m.Layers = append(m.Layers, *layer)
		}

		if id == 0 && layer == nil && l.StrictBaseLayer {
			return nil, report, fmt.Errorf("%w: %s: %s", ErrBaseLayerMissing, base, outcome.Reason)
		}
	}

	return m, report, nil
}

func (l *Loader) readLayer(id int, path string) (*models.Layer, models.LayerOutcome, []models.RowIssue) {
	outcome := models.LayerOutcome{ID: id, Path: path}

	content, err := l.readFile(path)
	if err != nil {
		outcome.Reason = err.Error()
		if errors.Is(err, ErrInvalidText) {
			outcome.Status = models.LayerStatusInvalid
			l.logger().Warnf("[Layer %d] could not read contents of file: %v", id, err)
		} else {
			outcome.Status = models.LayerStatusMissing
			l.logger().Debugf("[Layer %d] no map file: %v", id, err)
		}
		return nil, outcome, nil
	}

	layer, issues := l.registry().ParseLayer(id, content)
	layer.Source = path
	for _, issue := range issues {
		l.logger().Warnf("[Layer %d] skipped line %d %q: %s", id, issue.Line, issue.Content, issue.Reason)
	}
	l.logger().Infof("Read map layer %d from %s with %d bytes", id, path, len(content))

	outcome.Status = models.LayerStatusLoaded
	outcome.Bytes = len(content)
	return layer, outcome, issues
}

func (l *Loader) logger() Logger {
	if l.Log == nil {
		return logging.Default()
	}
	return l.Log
}

func (l *Loader) registry() *Registry {
	if l.Registry == nil {
		return globalRegistry
	}
	return l.Registry
}

func (l *Loader) readFile(path string) (string, error) {
	if l.ReadFile == nil {
		return ReadFileString(path)
	}
	return l.ReadFile(path)
}
