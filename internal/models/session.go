package models

import "time"

// LayerStatus describes what happened to one layer during a load.
type LayerStatus string

const (
	LayerStatusLoaded  LayerStatus = "loaded"
	LayerStatusMissing LayerStatus = "missing"
	LayerStatusInvalid LayerStatus = "invalid"
)

// MapSession represents a map held open by the server.
type MapSession struct {
	ID         string         `json:"id"`
	Base       string         `json:"base"`
	Name       string         `json:"name"`
	FileSetID  string         `json:"fileSetId,omitempty"` // set when the map came from an upload
	Pinned     bool           `json:"pinned,omitempty"`    // opened at startup, never evicted
	LoadedAt   time.Time      `json:"loadedAt"`
	LoadTimeMs int64          `json:"loadTimeMs"`
	LayerIDs   []int          `json:"layerIds"`
	LabelCount int            `json:"labelCount"`
	LineCount  int            `json:"lineCount"`
	Layers     []LayerOutcome `json:"layers"`
	IssueCount int            `json:"issueCount"`
}

// LayerOutcome records the result of reading one layer file.
type LayerOutcome struct {
	ID     int         `json:"id"`
	Path   string      `json:"path"`
	Status LayerStatus `json:"status"`
	Bytes  int         `json:"bytes,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// RowIssue represents a row that was skipped while loading a layer.
type RowIssue struct {
	Layer   int    `json:"layer"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}
