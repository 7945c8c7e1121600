package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/martinlindhe/eqformat-map/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEvent(t *testing.T) {
	s := view.New(view.DefaultLimits())

	changed, err := ApplyEvent(s, ViewEvent{Type: MsgTypeScroll, DY: 3})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.InDelta(t, 0.35, s.Zoom, 1e-9)

	_, err = ApplyEvent(s, ViewEvent{Type: MsgTypeDragStart, X: 10, Y: 10})
	require.NoError(t, err)
	assert.True(t, s.Dragging)
	_, err = ApplyEvent(s, ViewEvent{Type: MsgTypeDragMove, X: 30, Y: 5})
	require.NoError(t, err)
	_, err = ApplyEvent(s, ViewEvent{Type: MsgTypeDragEnd, X: 30, Y: 5})
	require.NoError(t, err)
	assert.False(t, s.Dragging)
	assert.Equal(t, 20.0, s.OffsetX)
	assert.Equal(t, -5.0, s.OffsetY)

	_, err = ApplyEvent(s, ViewEvent{Type: MsgTypeToggle, Layer: 1})
	require.NoError(t, err)
	assert.False(t, s.IsVisible(1))

	changed, err = ApplyEvent(s, ViewEvent{Type: MsgTypePing})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = ApplyEvent(s, ViewEvent{Type: MsgTypeReset})
	require.NoError(t, err)
	assert.Equal(t, view.New(view.DefaultLimits()).Zoom, s.Zoom)
	assert.True(t, s.IsVisible(1))

	_, err = ApplyEvent(s, ViewEvent{Type: "explode"})
	assert.Error(t, err)
}

type wsReply struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	Code  string `json:"code"`
	State struct {
		OffsetX float64 `json:"offsetX"`
		Zoom    float64 `json:"zoom"`
		Visible []bool  `json:"visible"`
	} `json:"state"`
	Thickness float64 `json:"thickness"`
}

func dialViewer(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/maps/" + id + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func exchange(t *testing.T, ws *websocket.Conn, msg interface{}) wsReply {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
	var reply wsReply
	require.NoError(t, ws.ReadJSON(&reply))
	return reply
}

func TestViewerSocket(t *testing.T) {
	env := newTestEnv(t)
	sess := env.open(t)
	ws := dialViewer(t, env, sess.ID)

	var initial wsReply
	require.NoError(t, ws.ReadJSON(&initial))
	assert.Equal(t, MsgTypeState, initial.Type)
	assert.Equal(t, 0.3, initial.State.Zoom)
	assert.Equal(t, []bool{true, true, true, true}, initial.State.Visible)
	assert.InDelta(t, 1/(0.3/0.5), initial.Thickness, 1e-9)

	reply := exchange(t, ws, ViewEvent{Type: MsgTypeScroll, DY: -1})
	assert.Equal(t, MsgTypeState, reply.Type)
	assert.InDelta(t, 0.25, reply.State.Zoom, 1e-9)

	reply = exchange(t, ws, ViewEvent{Type: MsgTypeToggle, Layer: 0})
	assert.Equal(t, []bool{false, true, true, true}, reply.State.Visible)
	assert.Contains(t, reply.Query, "layers=1%2C2%2C3")

	reply = exchange(t, ws, ViewEvent{Type: MsgTypePing})
	assert.Equal(t, MsgTypePong, reply.Type)

	reply = exchange(t, ws, ViewEvent{Type: "teleport"})
	assert.Equal(t, MsgTypeError, reply.Type)
	assert.Equal(t, "INVALID_TYPE", reply.Code)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "INVALID_PAYLOAD", reply.Code)
}

func TestViewerSocket_MapClosed(t *testing.T) {
	env := newTestEnv(t)
	sess := env.open(t)
	ws := dialViewer(t, env, sess.ID)

	var reply wsReply
	require.NoError(t, ws.ReadJSON(&reply))
	require.NoError(t, env.sessions.Close(sess.ID))

	reply = exchange(t, ws, ViewEvent{Type: MsgTypeScroll, DY: 1})
	assert.Equal(t, MsgTypeError, reply.Type)
	assert.Equal(t, "NOT_FOUND", reply.Code)
}
