package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/martinlindhe/eqformat-map/internal/models"
	"gonum.org/v1/gonum/spatial/r3"
)

// Row parsing errors. Field parse failures are reported as *FieldError.
var (
	ErrUnrecognized = errors.New("unrecognized row")
	ErrFieldCount   = errors.New("wrong number of fields")
)

const (
	labelFields = 8 // x, y, z, r, g, b, size, text
	lineFields  = 9 // x1, y1, z1, x2, y2, z2, r, g, b
)

var (
	labelFieldNames = []string{"x", "y", "z", "r", "g", "b", "size", "text"}
	lineFieldNames  = []string{"x1", "y1", "z1", "x2", "y2", "z2", "r", "g", "b"}
)

// RowKind tells which entity, if any, a row produced.
type RowKind int

const (
	RowSkipped RowKind = iota
	RowLabel
	RowLine
)

func (k RowKind) String() string {
	switch k {
	case RowLabel:
		return "label"
	case RowLine:
		return "line"
	default:
		return "skipped"
	}
}

// RowResult is the outcome of parsing one row. Exactly one of Label or Line
// is meaningful when Kind is RowLabel or RowLine; Err is set when Kind is RowSkipped.
type RowResult struct {
	Kind  RowKind
	Label models.Label
	Line  models.Line
	Err   error
}

// OK reports whether the row produced an entity.
func (r RowResult) OK() bool {
	return r.Kind != RowSkipped
}

func skipped(err error) RowResult {
	return RowResult{Kind: RowSkipped, Err: err}
}

// ParseRow classifies and parses a single map row using the global registry.
func ParseRow(s string) RowResult {
	return globalRegistry.ParseRow(s)
}

// ParseLabel parses the part of a "P" row after the prefix.
// Format: X, Y, Z, R, G, B, size, text. The text may contain commas.
func ParseLabel(s string) (models.Label, error) {
	parts := strings.SplitN(s, ",", labelFields)
	if len(parts) != labelFields {
		return models.Label{}, fmt.Errorf("%w: label needs %d, got %d", ErrFieldCount, labelFields, len(parts))
	}

	f := &fieldReader{fields: parts, names: labelFieldNames}
	pos := r3.Vec{X: f.float(), Y: f.float(), Z: f.float()}
	r, g, b := f.u8(), f.u8(), f.u8()
	size := f.u8()
	text := f.text()
	if f.err != nil {
		return models.Label{}, f.err
	}

	return models.Label{
		Pos:   pos,
		Color: models.ColorFromRGB8(r, g, b),
		Size:  size,
		Text:  text,
	}, nil
}

// ParseLine parses the part of an "L" row after the prefix.
// Format: X1, Y1, Z1, X2, Y2, Z2, R, G, B.
func ParseLine(s string) (models.Line, error) {
	parts := strings.SplitN(s, ",", lineFields)
	if len(parts) != lineFields {
		return models.Line{}, fmt.Errorf("%w: line needs %d, got %d", ErrFieldCount, lineFields, len(parts))
	}

	f := &fieldReader{fields: parts, names: lineFieldNames}
	start := r3.Vec{X: f.float(), Y: f.float(), Z: f.float()}
	end := r3.Vec{X: f.float(), Y: f.float(), Z: f.float()}
	r, g, b := f.u8(), f.u8(), f.u8()
	if f.err != nil {
		return models.Line{}, f.err
	}

	return models.Line{
		Start: start,
		End:   end,
		Color: models.ColorFromRGB8(r, g, b),
	}, nil
}

type labelDirective struct{}

func (labelDirective) Prefix() string { return "P " }

func (labelDirective) Parse(rest string) RowResult {
	label, err := ParseLabel(rest)
	if err != nil {
		return skipped(fmt.Errorf("invalid label: %w", err))
	}
	return RowResult{Kind: RowLabel, Label: label}
}

type lineDirective struct{}

func (lineDirective) Prefix() string { return "L " }

func (lineDirective) Parse(rest string) RowResult {
	line, err := ParseLine(rest)
	if err != nil {
		return skipped(fmt.Errorf("invalid line: %w", err))
	}
	return RowResult{Kind: RowLine, Line: line}
}
