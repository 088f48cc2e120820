package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var env Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			// answer a join with a greeting event carrying the joined room
			_ = ws.WriteMessage(websocket.TextMessage, []byte("not json"))
			_ = ws.WriteJSON(Envelope{Event: "welcome", Data: env.Data})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketDialerRejectsBadCredential(t *testing.T) {
	srv := echoServer(t)
	d := NewWebsocketDialer(wsURL(srv), WebsocketSettings{HandshakeTimeout: time.Second})
	_, err := d.Dial(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestWebsocketRoundTripThroughManager(t *testing.T) {
	srv := echoServer(t)
	d := NewWebsocketDialer(wsURL(srv), WebsocketSettings{PingInterval: 50 * time.Millisecond})
	m := NewManager(d, Settings{ReconnectTimeout: 20 * time.Millisecond})
	t.Cleanup(m.Close)

	var mu sync.Mutex
	var got []json.RawMessage
	m.OnStateChange(func(_, next State) {
		if next != Connected {
			return
		}
		_ = m.Subscribe(SessionKey("welcome"), func(data json.RawMessage) {
			mu.Lock()
			got = append(got, data)
			mu.Unlock()
		})
		_ = m.Emit(context.Background(), EventJoinUserRoom, 42)
	})

	m.Open("good")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.JSONEq(t, "42", string(got[0]))
	mu.Unlock()

	// pings keep the connection alive past a few intervals
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, Connected, m.State())
}
