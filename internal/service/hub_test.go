package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
)

type tokenTable map[string]session.Identity

func (t tokenTable) Verify(token string) (session.Identity, error) {
	id, ok := t[token]
	if !ok {
		return session.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

func dialHub(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func join(t *testing.T, ws *websocket.Conn, uid int64) {
	t.Helper()
	env, err := realtime.NewEnvelope(realtime.EventJoinUserRoom, uid)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestHubRoomsAndBroadcast(t *testing.T) {
	hub := NewHub(tokenTable{"a": {ID: 3}, "b": {ID: 4}})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	a := dialHub(t, srv, "a")
	b := dialHub(t, srv, "b")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	join(t, a, 3)
	// b 试图加入别人的房间，被忽略
	join(t, b, 3)
	require.Eventually(t, func() bool { return hub.RoomSize(UserRoom(3)) == 1 }, 2*time.Second, 5*time.Millisecond)

	n := hub.Deliver(UserRoom(3), "new_message", json.RawMessage(`{"conversationId":1}`))
	assert.Equal(t, 1, n)
	env := readEnvelope(t, a)
	assert.Equal(t, "new_message", env.Event)
	assert.JSONEq(t, `{"conversationId":1}`, string(env.Data))

	n = hub.Deliver(RoomBroadcast, "new_question", json.RawMessage(`{"id":"q1"}`))
	assert.Equal(t, 2, n)
	assert.Equal(t, "new_question", readEnvelope(t, a).Event)
	// b 只收到广播
	assert.Equal(t, "new_question", readEnvelope(t, b).Event)

	_ = a.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 && hub.RoomSize(UserRoom(3)) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(NewHub(tokenTable{}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=zzz", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
