package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/martinlindhe/eqformat-map/internal/models"
)

// LayerFilename derives the file of overlay layer id from the base map file:
// "maps/poknowledge.txt" becomes "/abs/maps/poknowledge_<id>.txt".
func LayerFilename(id int, base string) (string, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", base, err)
	}
	name := fmt.Sprintf("%s_%d.txt", fileStem(abs), id)
	return filepath.Join(filepath.Dir(abs), name), nil
}

// fileStem returns the file name without its last extension.
// Dot-files like ".map" keep their full name.
func fileStem(path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// ParseLayer parses map file content into layer id. Rows that produce no
// entity are returned as issues with 1-based line numbers.
func (r *Registry) ParseLayer(id int, content string) (*models.Layer, []models.RowIssue) {
	layer := &models.Layer{
		ID:     id,
		Bytes:  len(content),
		Labels: make([]models.Label, 0),
		Lines:  make([]models.Line, 0),
	}
	var issues []models.RowIssue

	lineNo := 0
	for line := range strings.Lines(content) {
		lineNo++
		row := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		res := r.ParseRow(row)
		switch res.Kind {
		case RowLabel:
			layer.Labels = append(layer.Labels, res.Label)
		case RowLine:
			layer.Lines = append(layer.Lines, res.Line)
		default:
			issues = append(issues, models.RowIssue{
				Layer:   id,
				Line:    lineNo,
				Content: row,
				Reason:  res.Err.Error(),
			})
		}
	}

	return layer, issues
}

// ParseLayer parses map file content using the global registry.
func ParseLayer(id int, content string) (*models.Layer, []models.RowIssue) {
	return globalRegistry.ParseLayer(id, content)
}

// LoadLayer reads and parses one layer file.
func LoadLayer(id int, path string) (*models.Layer, []models.RowIssue, error) {
	content, err := ReadFileString(path)
	if err != nil {
		return nil, nil, err
	}
	layer, issues := ParseLayer(id, content)
	layer.Source = path
	return layer, issues, nil
}
