package service

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
	"github.com/d60-Lab/livesync/pkg/logger"
)

const (
	hubWriteTimeout = 5 * time.Second
	hubPingInterval = 15 * time.Second
	hubReadTimeout  = 45 * time.Second
	hubSendBuffer   = 64
)

// Verifier 校验握手携带的令牌
type Verifier interface {
	Verify(token string) (session.Identity, error)
}

// Hub 开发后端的 websocket 推送中心。
// 连接建立后不在任何房间里，客户端发 join_user_room 才加入 user_<id>；
// 广播事件（Room 为空）发给所有连接。
type Hub struct {
	auth     Verifier
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	rooms   map[string]map[*hubClient]struct{}

	log *zap.Logger
}

type hubClient struct {
	hub  *Hub
	ws   *websocket.Conn
	id   session.Identity
	send chan []byte
	once sync.Once
	done chan struct{}
}

func NewHub(auth Verifier) *Hub {
	return &Hub{
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
		rooms:   make(map[string]map[*hubClient]struct{}),
		log:     logger.Named("hub"),
	}
}

// ServeHTTP upgrades an authenticated request. The token comes from the
// Authorization header or the token query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	id, err := h.auth.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade", zap.Error(err))
		return
	}
	c := &hubClient{hub: h, ws: ws, id: id, send: make(chan []byte, hubSendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()
}

// Deliver 投递到房间，返回送达的连接数；发送缓冲满的连接直接断开
func (h *Hub) Deliver(room, event string, data json.RawMessage) int {
	b, err := json.Marshal(realtime.Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("encode envelope", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	var targets []*hubClient
	if room == RoomBroadcast {
		targets = make([]*hubClient, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		for c := range h.rooms[room] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		select {
		case c.send <- b:
			n++
		case <-c.done:
		default:
			h.log.Warn("slow client, drop", zap.Int64("user", c.id.ID))
			c.close()
		}
	}
	return n
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize reports how many connections joined room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

func (h *Hub) join(c *hubClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*hubClient]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.remove(c)
		_ = c.ws.Close()
	})
}

func (c *hubClient) readLoop() {
	defer c.close()
	_ = c.ws.SetReadDeadline(time.Now().Add(hubReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(hubReadTimeout))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(hubReadTimeout))

		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.Event {
		case realtime.EventJoinUserRoom:
			var uid int64
			if err := json.Unmarshal(env.Data, &uid); err != nil {
				continue
			}
			// 只能加入自己的房间
			if uid != c.id.ID {
				c.hub.log.Warn("join foreign room", zap.Int64("user", c.id.ID), zap.Int64("room", uid))
				continue
			}
			c.hub.join(c, UserRoom(uid))
		}
	}
}

func (c *hubClient) writeLoop() {
	defer c.close()
	ping := time.NewTicker(hubPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
