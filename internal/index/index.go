// Package index copies the rows of a loaded map into an in-memory DuckDB
// database so the HTTP layer can search labels and clip lines with SQL.
package index

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrClosed is returned by queries on a closed index.
var ErrClosed = errors.New("index closed")

// Options tunes the embedded database.
type Options struct {
	Threads     int    `yaml:"threads"`
	MemoryLimit string `yaml:"memory_limit"`
	// MaxQueries bounds concurrent queries; zero means 3.
	MaxQueries int         `yaml:"max_queries"`
	Log        *log.Logger `yaml:"-"`
}

// LabelHit is a label found by SearchLabels.
type LabelHit struct {
	Layer int          `json:"layer" msgpack:"layer"`
	Index int          `json:"index" msgpack:"index"`
	Label models.Label `json:"label" msgpack:"label"`
}

// LineHit is a line returned by LinesInRect.
type LineHit struct {
	Layer int         `json:"layer" msgpack:"layer"`
	Index int         `json:"index" msgpack:"index"`
	Line  models.Line `json:"line" msgpack:"line"`
}

// LayerStat summarizes one loaded layer.
type LayerStat struct {
	Layer  int     `json:"layer"`
	Labels int     `json:"labels"`
	Lines  int     `json:"lines"`
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	MaxX   float64 `json:"maxX"`
	MaxY   float64 `json:"maxY"`
}

// Index is a read-only SQL view of one map.
type Index struct {
	db       *sql.DB
	log      *log.Logger
	layerIDs []int

	mu     sync.RWMutex
	closed bool

	// querySem limits concurrent queries
	querySem chan struct{}
}

// Build creates an in-memory database and loads every row of m into it.
func Build(ctx context.Context, m *models.Map, opts Options) (*Index, error) {
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = 3
	}

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		var pragmas []string
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", strings.ReplaceAll(opts.MemoryLimit, "'", "")))
		}
		pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	ix := &Index{
		db:       sql.OpenDB(connector),
		log:      opts.Log,
		layerIDs: m.LayerIDs(),
		querySem: make(chan struct{}, opts.MaxQueries),
	}
	if err := ix.load(ctx, m); err != nil {
		ix.db.Close()
		return nil, err
	}
	return ix, nil
}

var schema = []string{`
CREATE TABLE labels (
	layer INTEGER NOT NULL,
	seq   INTEGER NOT NULL,
	x     DOUBLE NOT NULL,
	y     DOUBLE NOT NULL,
	z     DOUBLE NOT NULL,
	r     UTINYINT NOT NULL,
	g     UTINYINT NOT NULL,
	b     UTINYINT NOT NULL,
	size  UTINYINT NOT NULL,
	name  VARCHAR NOT NULL
)`, `
CREATE TABLE lines (
	layer INTEGER NOT NULL,
	seq   INTEGER NOT NULL,
	x1    DOUBLE NOT NULL,
	y1    DOUBLE NOT NULL,
	z1    DOUBLE NOT NULL,
	x2    DOUBLE NOT NULL,
	y2    DOUBLE NOT NULL,
	z2    DOUBLE NOT NULL,
	r     UTINYINT NOT NULL,
	g     UTINYINT NOT NULL,
	b     UTINYINT NOT NULL
)`,
}

func (ix *Index) load(ctx context.Context, m *models.Map) error {
	start := time.Now()
	for _, stmt := range schema {
		if _, err := ix.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	conn, err := ix.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		if err := appendLabels(dConn, m); err != nil {
			return err
		}
		return appendLines(dConn, m)
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	labels, lines := m.Counts()
	ix.log.Infof("[Index] %s: %d labels, %d lines indexed in %v", m.Base, labels, lines, time.Since(start))
	return nil
}

func appendLabels(conn *duckdb.Conn, m *models.Map) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", "labels")
	if err != nil {
		return fmt.Errorf("failed to create label appender: %w", err)
	}
	defer appender.Close()

	for _, layer := range m.Layers {
		for i, lb := range layer.Labels {
			r, g, b := lb.Color.RGB8()
			err := appender.AppendRow(
				int32(layer.ID), int32(i),
				lb.Pos.X, lb.Pos.Y, lb.Pos.Z,
				r, g, b, lb.Size,
				lb.Text,
			)
			if err != nil {
				return fmt.Errorf("failed to append label %d of layer %d: %w", i, layer.ID, err)
			}
		}
	}
	return appender.Flush()
}

func appendLines(conn *duckdb.Conn, m *models.Map) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", "lines")
	if err != nil {
		return fmt.Errorf("failed to create line appender: %w", err)
	}
	defer appender.Close()

	for _, layer := range m.Layers {
		for i, l := range layer.Lines {
			r, g, b := l.Color.RGB8()
			err := appender.AppendRow(
				int32(layer.ID), int32(i),
				l.Start.X, l.Start.Y, l.Start.Z,
				l.End.X, l.End.Y, l.End.Z,
				r, g, b,
			)
			if err != nil {
				return fmt.Errorf("failed to append line %d of layer %d: %w", i, layer.ID, err)
			}
		}
	}
	return appender.Flush()
}

// acquire takes a query slot. The returned func releases it.
func (ix *Index) acquire(ctx context.Context) (func(), error) {
	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case ix.querySem <- struct{}{}:
		return func() {
			<-ix.querySem
			ix.mu.RUnlock()
		}, nil
	case <-ctx.Done():
		ix.mu.RUnlock()
		return nil, ctx.Err()
	}
}

// SearchLabels returns labels whose text contains text, ignoring case.
// Underscores and spaces are interchangeable on both sides.
func (ix *Index) SearchLabels(ctx context.Context, text string, limit int) ([]LabelHit, error) {
	release, err := ix.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(text), "_", " "))

	rows, err := ix.db.QueryContext(ctx, `
		SELECT layer, seq, x, y, z, r, g, b, size, name
		FROM labels
		WHERE contains(replace(lower(name), '_', ' '), ?)
		ORDER BY layer, seq
		LIMIT ?`, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("label search failed: %w", err)
	}
	defer rows.Close()

	hits := []LabelHit{}
	for rows.Next() {
		var (
			h       LabelHit
			r, g, b uint8
		)
		err := rows.Scan(&h.Layer, &h.Index,
			&h.Label.Pos.X, &h.Label.Pos.Y, &h.Label.Pos.Z,
			&r, &g, &b, &h.Label.Size, &h.Label.Text)
		if err != nil {
			return nil, fmt.Errorf("scanning label: %w", err)
		}
		h.Label.Color = models.ColorFromRGB8(r, g, b)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// LinesInRect returns lines of the given layers whose bounding box
// intersects rect. No layers means every layer.
func (ix *Index) LinesInRect(ctx context.Context, layers []int, rect r2.Box) ([]LineHit, error) {
	release, err := ix.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rect = rect.Canon()
	where := []string{
		"greatest(x1, x2) >= ?", "least(x1, x2) <= ?",
		"greatest(y1, y2) >= ?", "least(y1, y2) <= ?",
	}
	args := []interface{}{rect.Min.X, rect.Max.X, rect.Min.Y, rect.Max.Y}
	if len(layers) > 0 {
		marks := make([]string, len(layers))
		for i, id := range layers {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "layer IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT layer, seq, x1, y1, z1, x2, y2, z2, r, g, b FROM lines WHERE " +
		strings.Join(where, " AND ") + " ORDER BY layer, seq"
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("line query failed: %w", err)
	}
	defer rows.Close()

	hits := []LineHit{}
	for rows.Next() {
		var (
			h       LineHit
			r, g, b uint8
		)
		err := rows.Scan(&h.Layer, &h.Index,
			&h.Line.Start.X, &h.Line.Start.Y, &h.Line.Start.Z,
			&h.Line.End.X, &h.Line.End.Y, &h.Line.End.Z,
			&r, &g, &b)
		if err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		h.Line.Color = models.ColorFromRGB8(r, g, b)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// LayerStats returns row counts and the planar extent of every loaded
// layer, in layer order. Empty layers report a zero extent.
func (ix *Index) LayerStats(ctx context.Context) ([]LayerStat, error) {
	release, err := ix.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT layer,
			CAST(SUM(is_label) AS BIGINT), CAST(SUM(is_line) AS BIGINT),
			MIN(minx), MIN(miny), MAX(maxx), MAX(maxy)
		FROM (
			SELECT layer, 1 AS is_label, 0 AS is_line, x AS minx, y AS miny, x AS maxx, y AS maxy
			FROM labels
			UNION ALL
			SELECT layer, 0, 1, least(x1, x2), least(y1, y2), greatest(x1, x2), greatest(y1, y2)
			FROM lines
		)
		GROUP BY layer`)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	found := make(map[int]LayerStat)
	for rows.Next() {
		var (
			s             LayerStat
			labels, lines int64
		)
		if err := rows.Scan(&s.Layer, &labels, &lines, &s.MinX, &s.MinY, &s.MaxX, &s.MaxY); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		s.Labels, s.Lines = int(labels), int(lines)
		found[s.Layer] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]LayerStat, 0, len(ix.layerIDs))
	for _, id := range ix.layerIDs {
		s, ok := found[id]
		if !ok {
			s = LayerStat{Layer: id}
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// Close releases the database. Queries in flight finish first.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.db.Close()
}

// Rect builds a box from two corners in any order.
func Rect(x1, y1, x2, y2 float64) r2.Box {
	return r2.Box{Min: r2.Vec{X: x1, Y: y1}, Max: r2.Vec{X: x2, Y: y2}}.Canon()
}
