// Package render draws the visible layers of a map for a view state onto
// gonum/plot vector canvases and encodes them as PNG or SVG.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/view"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Format is an output encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ParseFormat accepts "png" or "svg"; empty means png.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("unsupported render format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// DefaultBackground is the parchment brown of the desktop viewer.
var DefaultBackground = color.RGBA{R: 132, G: 106, B: 55, A: 255}

// Options configures the output image.
type Options struct {
	Width      int
	Height     int
	Background color.Color
	// Labels draws a small marker at every label position.
	Labels bool
}

// Renderer draws maps. It holds no per-frame state and is safe for concurrent use.
type Renderer struct {
	opts Options
}

// New creates a renderer. Zero sizes default to 1100x700.
func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 1100
	}
	if opts.Height <= 0 {
		opts.Height = 700
	}
	if opts.Background == nil {
		opts.Background = DefaultBackground
	}
	return &Renderer{opts: opts}
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// WithLabels returns a copy of the renderer with label markers switched on or off.
func (r *Renderer) WithLabels(on bool) *Renderer {
	opts := r.opts
	opts.Labels = on
	return &Renderer{opts: opts}
}

// Draw paints the background and every visible layer onto c. The canvas
// must be Width x Height points with its origin in the lower left corner.
func (r *Renderer) Draw(c vg.Canvas, m *models.Map, s *view.State) {
	w, h := float64(r.opts.Width), float64(r.opts.Height)

	c.SetColor(r.opts.Background)
	c.Fill(rect(0, 0, w, h))

	c.SetLineWidth(vg.Length(s.LineThickness()))
	for _, layer := range m.Layers {
		if !s.IsVisible(layer.ID) {
			continue
		}
		for _, l := range layer.Lines {
			x1, y1 := s.Project(l.Start.X, l.Start.Y, w, h)
			x2, y2 := s.Project(l.End.X, l.End.Y, w, h)

			var p vg.Path
			p.Move(vg.Point{X: vg.Length(x1), Y: vg.Length(h - y1)})
			p.Line(vg.Point{X: vg.Length(x2), Y: vg.Length(h - y2)})
			c.SetColor(toRGBA(l.Color))
			c.Stroke(p)
		}

		if !r.opts.Labels {
			continue
		}
		for _, lb := range layer.Labels {
			x, y := s.Project(lb.Pos.X, lb.Pos.Y, w, h)
			half := 1 + float64(lb.Size)
			c.SetColor(toRGBA(lb.Color))
			c.Fill(rect(x-half, h-y-half, x+half, h-y+half))
		}
	}
}

// Image rasterizes the map.
func (r *Renderer) Image(m *models.Map, s *view.State) image.Image {
	c := r.imageCanvas()
	r.Draw(c, m, s)
	return c.Image()
}

// Render encodes the map in the given format to w.
func (r *Renderer) Render(w io.Writer, m *models.Map, s *view.State, f Format) error {
	switch f {
	case FormatPNG:
		c := r.imageCanvas()
		r.Draw(c, m, s)
		if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
			return fmt.Errorf("encoding png: %w", err)
		}
	case FormatSVG:
		c := vgsvg.New(vg.Length(r.opts.Width), vg.Length(r.opts.Height))
		r.Draw(c, m, s)
		if _, err := c.WriteTo(w); err != nil {
			return fmt.Errorf("encoding svg: %w", err)
		}
	default:
		return fmt.Errorf("unsupported render format %q", f)
	}
	return nil
}

// imageCanvas returns a raster canvas with one point per pixel.
func (r *Renderer) imageCanvas() *vgimg.Canvas {
	return vgimg.NewWith(
		vgimg.UseWH(vg.Length(r.opts.Width), vg.Length(r.opts.Height)),
		vgimg.UseDPI(int(vg.Inch)),
	)
}

func rect(x1, y1, x2, y2 float64) vg.Path {
	var p vg.Path
	p.Move(vg.Point{X: vg.Length(x1), Y: vg.Length(y1)})
	p.Line(vg.Point{X: vg.Length(x2), Y: vg.Length(y1)})
	p.Line(vg.Point{X: vg.Length(x2), Y: vg.Length(y2)})
	p.Line(vg.Point{X: vg.Length(x1), Y: vg.Length(y2)})
	p.Close()
	return p
}

func toRGBA(c models.Color) color.RGBA {
	r, g, b := c.RGB8()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
