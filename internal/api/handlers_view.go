// handlers_view.go - Rendering and query handlers for open maps
package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/index"
	"github.com/martinlindhe/eqformat-map/internal/render"
	"github.com/martinlindhe/eqformat-map/internal/view"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// ViewHandlerImpl implements the ViewHandler interface
type ViewHandlerImpl struct {
	sessions SessionManager
	renderer *render.Renderer
	limits   view.Limits
}

// NewViewHandler creates a new view handler instance
func NewViewHandler(sessions SessionManager, renderer *render.Renderer, limits view.Limits) ViewHandler {
	return &ViewHandlerImpl{
		sessions: sessions,
		renderer: renderer,
		limits:   limits,
	}
}

// HandleRender draws the map for the view state given in the query string
func (h *ViewHandlerImpl) HandleRender(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	format, err := render.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return NewBadRequestError("invalid format", err)
	}
	vs, err := view.FromValues(c.QueryParams(), h.limits)
	if err != nil {
		return NewBadRequestError("invalid view state", err)
	}

	r := h.renderer
	if on, _ := strconv.ParseBool(c.QueryParam("labels")); on {
		r = r.WithLabels(true)
	}

	var buf bytes.Buffer
	if err := r.Render(&buf, state.Map, vs, format); err != nil {
		return NewInternalError("failed to render map", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

// sessionIndex returns the index of the session in :id.
func (h *ViewHandlerImpl) sessionIndex(c echo.Context) (*index.Index, error) {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return nil, err
	}
	idx, err := h.sessions.Index(c.Request().Context(), state.Session.ID)
	if err != nil {
		return nil, fromLookupError("map", state.Session.ID, err)
	}
	return idx, nil
}

// HandleSearchLabels finds labels by text
func (h *ViewHandlerImpl) HandleSearchLabels(c echo.Context) error {
	limit := defaultSearchLimit
	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxSearchLimit)
	}

	idx, err := h.sessionIndex(c)
	if err != nil {
		return err
	}
	hits, err := idx.SearchLabels(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return NewInternalError("label search failed", err)
	}
	return c.JSON(http.StatusOK, hits)
}

// HandleLinesInRect returns lines crossing a rectangle in map coordinates
func (h *ViewHandlerImpl) HandleLinesInRect(c echo.Context) error {
	var bounds [4]float64
	for i, key := range []string{"minx", "miny", "maxx", "maxy"} {
		v, err := strconv.ParseFloat(c.QueryParam(key), 64)
		if err != nil {
			return NewValidationError(key)
		}
		bounds[i] = v
	}
	layers, err := view.ParseLayerList(c.QueryParam("layers"))
	if err != nil {
		return NewBadRequestError("invalid layers", err)
	}

	idx, err := h.sessionIndex(c)
	if err != nil {
		return err
	}
	hits, err := idx.LinesInRect(c.Request().Context(), layers, index.Rect(bounds[0], bounds[1], bounds[2], bounds[3]))
	if err != nil {
		return NewInternalError("line query failed", err)
	}
	return c.JSON(http.StatusOK, hits)
}

// HandleLayerStats returns per layer counts and extents
func (h *ViewHandlerImpl) HandleLayerStats(c echo.Context) error {
	idx, err := h.sessionIndex(c)
	if err != nil {
		return err
	}
	stats, err := idx.LayerStats(c.Request().Context())
	if err != nil {
		return NewInternalError("stats query failed", err)
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleLabelsChart renders an HTML scatter chart of label positions, one
// series per layer.
func (h *ViewHandlerImpl) HandleLabelsChart(c echo.Context) error {
	state, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	labels, _ := state.Map.Counts()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: state.Session.Name, Width: "1100px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: state.Session.Name, Subtitle: fmt.Sprintf("labels=%d layers=%v", labels, state.Session.LayerIDs)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 40}),
	)

	for _, layer := range state.Map.Layers {
		data := make([]opts.ScatterData, 0, len(layer.Labels))
		for _, lb := range layer.Labels {
			// screen y grows downwards
			data = append(data, opts.ScatterData{Name: lb.Text, Value: []interface{}{lb.Pos.X, -lb.Pos.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("layer %d", layer.ID), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return NewInternalError("failed to render chart", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
