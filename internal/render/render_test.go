package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func crossMap() *models.Map {
	red := models.ColorFromRGB8(255, 0, 0)
	return &models.Map{
		Base: "zone.txt",
		Layers: []models.Layer{{
			ID: 0,
			Lines: []models.Line{{
				Start: r3.Vec{X: -1000},
				End:   r3.Vec{X: 1000},
				Color: red,
			}},
			Labels: []models.Label{{Pos: r3.Vec{X: 2000, Y: 1000}, Color: red, Size: 3, Text: "Corner"}},
		}},
	}
}

func rgb(c color.Color) [3]uint8 {
	r, g, b, _ := c.RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func zoomedOut() *view.State {
	s := view.New(view.DefaultLimits())
	s.SetZoom(0.1)
	return s
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)

	f, err = ParseFormat(" SVG ")
	require.NoError(t, err)
	assert.Equal(t, FormatSVG, f)
	assert.Equal(t, "image/svg+xml", f.ContentType())

	_, err = ParseFormat("gif")
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	opts := New(Options{}).Options()
	assert.Equal(t, 1100, opts.Width)
	assert.Equal(t, 700, opts.Height)
	assert.Equal(t, DefaultBackground, opts.Background)
}

func TestImage_DrawsVisibleLines(t *testing.T) {
	r := New(Options{})
	img := r.Image(crossMap(), zoomedOut())

	require.Equal(t, image.Rect(0, 0, 1100, 700), img.Bounds())
	assert.Equal(t, [3]uint8{132, 106, 55}, rgb(img.At(5, 5)))
	assert.Equal(t, [3]uint8{255, 0, 0}, rgb(img.At(550, 350)))
	// the line spans 200 pixels at zoom 0.1
	assert.Equal(t, [3]uint8{132, 106, 55}, rgb(img.At(700, 350)))
}

func TestImage_HiddenLayer(t *testing.T) {
	s := zoomedOut()
	s.Toggle(0)

	img := New(Options{}).Image(crossMap(), s)
	assert.Equal(t, [3]uint8{132, 106, 55}, rgb(img.At(550, 350)))
}

func TestImage_LabelMarkers(t *testing.T) {
	s := zoomedOut()
	// label at (2000, 1000) lands on (750, 450)
	without := New(Options{}).Image(crossMap(), s)
	assert.Equal(t, [3]uint8{132, 106, 55}, rgb(without.At(750, 450)))

	with := New(Options{}).WithLabels(true).Image(crossMap(), s)
	assert.Equal(t, [3]uint8{255, 0, 0}, rgb(with.At(750, 450)))
}

func TestRender_PNG(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Width: 320, Height: 200})
	require.NoError(t, r.Render(&buf, crossMap(), zoomedOut(), FormatPNG))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 200), img.Bounds())
}

func TestRender_SVG(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{Width: 320, Height: 200})
	require.NoError(t, r.Render(&buf, crossMap(), zoomedOut(), FormatSVG))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "output is not svg")
	assert.Contains(t, out, "path")
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := New(Options{}).Render(&buf, crossMap(), zoomedOut(), Format("bmp"))
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#846a37")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackground, c)

	c, err = ParseHexColor("ff0000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, c)

	_, err = ParseHexColor("#zzzzzz")
	assert.Error(t, err)
	_, err = ParseHexColor("#fff")
	assert.Error(t, err)
}
