// fixtures.go - Map file fixtures shared by package tests
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Sample rows taken from real map files.
const (
	LabelRow      = "P 5531.2642, -168.7061, -299.5485,  128, 255, 0,  2,  Gargoyle_Island"
	CommaLabelRow = "P -3710.0198, -1594.5485, -192.5240,  128, 255, 0,  2,  Gull_Skytalon_(Named,Roam)"
	LineRow       = "L 2881.0, -2022.0, -295.0, 2885.0, -2027.0, -295.0, 128, 255, 0"
)

// SampleBase is a small well-formed base layer.
const SampleBase = LineRow + "\n" +
	"L 2885.0, -2027.0, -295.0, 2890.0, -2030.0, -295.0, 0, 0, 0\n" +
	LabelRow + "\n" +
	CommaLabelRow + "\n"

// SampleOverlay is a small well-formed overlay layer.
const SampleOverlay = "L -100.0, -100.0, 0.0, 100.0, 100.0, 0.0, 240, 0, 0\n" +
	"P 0.0, 0.0, 0.0, 0, 0, 240, 3, Center\n"

// WriteMapFiles writes a base map file named name into dir, plus one overlay
// file per non-zero key of layers using the "<stem>_<id>.txt" convention.
// layers[0] is the base content. It returns the base file path.
func WriteMapFiles(t testing.TB, dir, name string, layers map[int]string) string {
	t.Helper()

	base := filepath.Join(dir, name)
	stem := name[:len(name)-len(filepath.Ext(name))]
	for id, content := range layers {
		path := base
		if id > 0 {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d.txt", stem, id))
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing map fixture %s: %v", path, err)
		}
	}
	return base
}
