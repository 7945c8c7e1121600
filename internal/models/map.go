package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxLayers is the number of layers a map can have: the base layer plus three overlays.
const MaxLayers = 4

// Map represents a loaded map: the layers whose files could be read, in ascending id order.
type Map struct {
	Base   string  `json:"base" msgpack:"base"`
	Layers []Layer `json:"layers" msgpack:"layers"`
}

// Layer is one map file. ID 0 is the base layer, 1-3 are overlays.
type Layer struct {
	ID     int     `json:"id" msgpack:"id"`
	Source string  `json:"source" msgpack:"source"`
	Bytes  int     `json:"bytes" msgpack:"bytes"`
	Labels []Label `json:"labels" msgpack:"labels"`
	Lines  []Line  `json:"lines" msgpack:"lines"`
}

// Label is a positioned text annotation ("P" rows).
type Label struct {
	Pos   r3.Vec `json:"pos" msgpack:"pos"`
	Color Color  `json:"color" msgpack:"color"`
	Size  uint8  `json:"size" msgpack:"size"`
	Text  string `json:"text" msgpack:"text"`
}

// Line is a colored 3D segment ("L" rows).
type Line struct {
	Start r3.Vec `json:"start" msgpack:"start"`
	End   r3.Vec `json:"end" msgpack:"end"`
	Color Color  `json:"color" msgpack:"color"`
}

// Color holds channel intensities in [0, 1].
type Color struct {
	R float32 `json:"r" msgpack:"r"`
	G float32 `json:"g" msgpack:"g"`
	B float32 `json:"b" msgpack:"b"`
}

// ColorFromRGB8 normalizes 0-255 channel values.
func ColorFromRGB8(r, g, b uint8) Color {
	return Color{
		R: float32(r) / 255,
		G: float32(g) / 255,
		B: float32(b) / 255,
	}
}

// RGB8 converts back to 0-255 channel values.
func (c Color) RGB8() (r, g, b uint8) {
	return channel8(c.R), channel8(c.G), channel8(c.B)
}

func channel8(v float32) uint8 {
	return uint8(math.Round(float64(v) * 255))
}

// Layer returns the layer with the given id, if it was loaded.
func (m *Map) Layer(id int) (*Layer, bool) {
	for i := range m.Layers {
		if m.Layers[i].ID == id {
			return &m.Layers[i], true
		}
	}
	return nil, false
}

// LayerIDs lists the ids of the loaded layers.
func (m *Map) LayerIDs() []int {
	ids := make([]int, 0, len(m.Layers))
	for _, l := range m.Layers {
		ids = append(ids, l.ID)
	}
	return ids
}

// Counts returns the total number of labels and lines over all layers.
func (m *Map) Counts() (labels, lines int) {
	for _, l := range m.Layers {
		labels += len(l.Labels)
		lines += len(l.Lines)
	}
	return labels, lines
}

// Bounds returns the box enclosing every layer. ok is false for an empty map.
func (m *Map) Bounds() (box r3.Box, ok bool) {
	for _, l := range m.Layers {
		lb, lok := l.Bounds()
		if !lok {
			continue
		}
		box, ok = expand(box, ok, lb.Min)
		box, ok = expand(box, ok, lb.Max)
	}
	return box, ok
}

// Bounds returns the box enclosing all line endpoints and label positions.
func (l *Layer) Bounds() (box r3.Box, ok bool) {
	for _, ln := range l.Lines {
		box, ok = expand(box, ok, ln.Start)
		box, ok = expand(box, ok, ln.End)
	}
	for _, lb := range l.Labels {
		box, ok = expand(box, ok, lb.Pos)
	}
	return box, ok
}

func expand(box r3.Box, ok bool, p r3.Vec) (r3.Box, bool) {
	if !ok {
		return r3.Box{Min: p, Max: p}, true
	}
	box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
	box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
	return box, true
}
