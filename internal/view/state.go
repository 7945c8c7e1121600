// Package view holds the pan, zoom and layer visibility state of one map
// viewer. The state is owned by the caller and handed to the renderer for
// every frame.
package view

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/martinlindhe/eqformat-map/internal/models"
)

// Limits bounds the zoom level.
type Limits struct {
	Default float64 `json:"default" yaml:"default_zoom"`
	Min     float64 `json:"min" yaml:"min_zoom"`
	Max     float64 `json:"max" yaml:"max_zoom"`
	// Divisor scales one scroll step into a zoom change.
	Divisor float64 `json:"divisor" yaml:"zoom_divisor"`
}

// DefaultLimits returns the zoom limits of the desktop viewer.
func DefaultLimits() Limits {
	return Limits{
		Default: 0.3,
		Min:     0.1,
		Max:     2.0,
		Divisor: 20,
	}
}

// Validate checks that the limits describe a usable zoom range.
func (l Limits) Validate() error {
	if l.Min <= 0 || l.Max < l.Min {
		return fmt.Errorf("invalid zoom range [%g, %g]", l.Min, l.Max)
	}
	if l.Default < l.Min || l.Default > l.Max {
		return fmt.Errorf("default zoom %g outside [%g, %g]", l.Default, l.Min, l.Max)
	}
	if l.Divisor <= 0 {
		return fmt.Errorf("zoom divisor must be positive, got %g", l.Divisor)
	}
	return nil
}

// State is the view of one client.
type State struct {
	OffsetX float64                `json:"offsetX"`
	OffsetY float64                `json:"offsetY"`
	Zoom    float64                `json:"zoom"`
	Visible [models.MaxLayers]bool `json:"visible"`

	// drag bookkeeping
	StartX   float64 `json:"-"`
	StartY   float64 `json:"-"`
	Dragging bool    `json:"dragging"`

	limits Limits
}

// New returns a state with every layer visible at the default zoom.
func New(limits Limits) *State {
	s := &State{limits: limits}
	s.Reset()
	return s
}

// Limits returns the zoom limits of the state.
func (s *State) Limits() Limits {
	return s.limits
}

// Reset restores the default zoom, clears panning and shows every layer.
func (s *State) Reset() {
	for i := range s.Visible {
		s.Visible[i] = true
	}
	s.Zoom = s.limits.Default
	s.StartX, s.StartY = 0, 0
	s.OffsetX, s.OffsetY = 0, 0
	s.Dragging = false
}

// Scroll zooms by one wheel event. Platforms report wildly different deltas,
// so dy only contributes its direction, capped to one step.
func (s *State) Scroll(dy float64) {
	step := dy
	if step < -1 {
		step = -1
	} else if step > 1 {
		step = 1
	}
	s.Zoom = s.clampZoom(s.Zoom + step/s.limits.Divisor)
}

// SetZoom sets the zoom level, clamped to the limits.
func (s *State) SetZoom(z float64) {
	s.Zoom = s.clampZoom(z)
}

func (s *State) clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return s.limits.Default
	}
	if z < s.limits.Min {
		return s.limits.Min
	}
	if z > s.limits.Max {
		return s.limits.Max
	}
	return z
}

// DragStart begins a pan at pointer position (x, y).
func (s *State) DragStart(x, y float64) {
	s.StartX += x
	s.StartY += y
	s.Dragging = true
}

// DragMove pans to pointer position (x, y).
func (s *State) DragMove(x, y float64) {
	if !s.Dragging {
		return
	}
	s.OffsetX = x - s.StartX
	s.OffsetY = y - s.StartY
}

// DragEnd finishes a pan at pointer position (x, y).
func (s *State) DragEnd(x, y float64) {
	if !s.Dragging {
		return
	}
	s.StartX -= x
	s.StartY -= y
	s.Dragging = false
}

// Toggle flips the visibility of a layer. Unknown ids are ignored.
func (s *State) Toggle(id int) {
	if id < 0 || id >= len(s.Visible) {
		return
	}
	s.Visible[id] = !s.Visible[id]
}

// IsVisible reports whether layer id should be drawn.
func (s *State) IsVisible(id int) bool {
	if id < 0 || id >= len(s.Visible) {
		return false
	}
	return s.Visible[id]
}

// LineThickness returns the stroke width in pixels: lines get thicker as
// the view zooms out.
func (s *State) LineThickness() float64 {
	return 1.0 / (s.Zoom / 0.5)
}

// Project maps a map coordinate to a pixel position in a width x height
// viewport whose center is map origin, with y growing downwards.
func (s *State) Project(x, y, width, height float64) (px, py float64) {
	px = width/2 + s.OffsetX + x*s.Zoom
	py = height/2 + s.OffsetY + y*s.Zoom
	return px, py
}

// Unproject is the inverse of Project.
func (s *State) Unproject(px, py, width, height float64) (x, y float64) {
	x = (px - width/2 - s.OffsetX) / s.Zoom
	y = (py - height/2 - s.OffsetY) / s.Zoom
	return x, y
}

// Values encodes the state for a render URL.
func (s *State) Values() url.Values {
	v := url.Values{}
	v.Set("zoom", strconv.FormatFloat(s.Zoom, 'f', -1, 64))
	v.Set("x", strconv.FormatFloat(s.OffsetX, 'f', -1, 64))
	v.Set("y", strconv.FormatFloat(s.OffsetY, 'f', -1, 64))
	var layers []string
	for id, visible := range s.Visible {
		if visible {
			layers = append(layers, strconv.Itoa(id))
		}
	}
	v.Set("layers", strings.Join(layers, ","))
	return v
}

// FromValues decodes a state from query values. Missing values keep their
// defaults; malformed values are an error.
func FromValues(v url.Values, limits Limits) (*State, error) {
	s := New(limits)

	if z := v.Get("zoom"); z != "" {
		zoom, err := parseFinite(z)
		if err != nil {
			return nil, fmt.Errorf("invalid zoom %q: %w", z, err)
		}
		s.SetZoom(zoom)
	}
	if x := v.Get("x"); x != "" {
		off, err := parseFinite(x)
		if err != nil {
			return nil, fmt.Errorf("invalid x offset %q: %w", x, err)
		}
		s.OffsetX = off
	}
	if y := v.Get("y"); y != "" {
		off, err := parseFinite(y)
		if err != nil {
			return nil, fmt.Errorf("invalid y offset %q: %w", y, err)
		}
		s.OffsetY = off
	}
	if v.Has("layers") {
		ids, err := ParseLayerList(v.Get("layers"))
		if err != nil {
			return nil, err
		}
		s.Visible = [models.MaxLayers]bool{}
		for _, id := range ids {
			s.Visible[id] = true
		}
	}
	return s, nil
}

// parseFinite parses a float and rejects NaN and infinities.
func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s is not a finite number", s)
	}
	return f, nil
}

// ParseLayerList parses a comma separated list of layer ids such as "0,2".
func ParseLayerList(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 || id >= models.MaxLayers {
			return nil, fmt.Errorf("invalid layer id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
