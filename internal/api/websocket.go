package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/martinlindhe/eqformat-map/internal/view"
)

// WebSocket message types for the viewer protocol
const (
	// Client -> Server messages
	MsgTypeScroll    = "scroll"
	MsgTypeDragStart = "drag:start"
	MsgTypeDragMove  = "drag:move"
	MsgTypeDragEnd   = "drag:end"
	MsgTypeToggle    = "toggle"
	MsgTypeReset     = "reset"
	MsgTypePing      = "ping"

	// Server -> Client messages
	MsgTypeState = "state"
	MsgTypeError = "error"
	MsgTypePong  = "pong"
)

// ViewEvent is one input event sent by a viewer.
type ViewEvent struct {
	Type  string  `json:"type"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	DY    float64 `json:"dy,omitempty"`
	Layer int     `json:"layer,omitempty"`
}

// StateMessage reports the view state after an event. Query is the state
// encoded for the render endpoint.
type StateMessage struct {
	Type      string      `json:"type"`
	State     *view.State `json:"state"`
	Thickness float64     `json:"thickness"`
	Query     string      `json:"query"`
	Timestamp int64       `json:"timestamp"`
}

// WSErrorResponse is sent for events that could not be applied
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ApplyEvent updates s with one viewer event. It reports whether the
// event changed anything a client would redraw.
func ApplyEvent(s *view.State, ev ViewEvent) (bool, error) {
	switch ev.Type {
	case MsgTypeScroll:
		s.Scroll(ev.DY)
	case MsgTypeDragStart:
		s.DragStart(ev.X, ev.Y)
	case MsgTypeDragMove:
		s.DragMove(ev.X, ev.Y)
	case MsgTypeDragEnd:
		s.DragEnd(ev.X, ev.Y)
	case MsgTypeToggle:
		s.Toggle(ev.Layer)
	case MsgTypeReset:
		s.Reset()
	case MsgTypePing:
		return false, nil
	default:
		return false, fmt.Errorf("unknown message type: %s", ev.Type)
	}
	return true, nil
}

// ViewerSocketImpl implements the ViewerSocketHandler interface. Each
// connection owns its view state.
type ViewerSocketImpl struct {
	sessions  SessionManager
	limits    view.Limits
	readLimit int64
	upgrader  websocket.Upgrader
}

// NewViewerSocketHandler creates a websocket handler. readLimit caps the
// size of one client message in bytes.
func NewViewerSocketHandler(sessions SessionManager, limits view.Limits, readLimit int64) ViewerSocketHandler {
	if readLimit <= 0 {
		readLimit = 64 * 1024
	}
	return &ViewerSocketImpl{
		sessions:  sessions,
		limits:    limits,
		readLimit: readLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
	}
}

// HandleViewerSocket upgrades the connection and applies viewer events
func (h *ViewerSocketImpl) HandleViewerSocket(c echo.Context) error {
	st, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	id := st.Session.ID

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(h.readLimit)

	c.Logger().Debugf("[WebSocket] Viewer connected to %s", st.Session.Name)

	state := view.New(h.limits)
	if err := sendState(ws, state); err != nil {
		return nil
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Logger().Warnf("[WebSocket] Connection error: %v", err)
			}
			break
		}

		if !h.sessions.Touch(id) {
			sendError(ws, "map is no longer open", "NOT_FOUND")
			break
		}

		var ev ViewEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			sendError(ws, "invalid message: "+err.Error(), "INVALID_PAYLOAD")
			continue
		}

		changed, err := ApplyEvent(state, ev)
		switch {
		case err != nil:
			err = sendError(ws, err.Error(), "INVALID_TYPE")
		case changed:
			err = sendState(ws, state)
		default:
			err = ws.WriteJSON(map[string]interface{}{"type": MsgTypePong, "timestamp": time.Now().UnixMilli()})
		}
		if err != nil {
			break
		}
	}

	c.Logger().Debugf("[WebSocket] Viewer disconnected from %s", st.Session.Name)
	return nil
}

func sendState(ws *websocket.Conn, s *view.State) error {
	return ws.WriteJSON(StateMessage{
		Type:      MsgTypeState,
		State:     s,
		Thickness: s.LineThickness(),
		Query:     s.Values().Encode(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func sendError(ws *websocket.Conn, message, code string) error {
	return ws.WriteJSON(WSErrorResponse{
		Type:    MsgTypeError,
		Message: message,
		Code:    code,
	})
}
