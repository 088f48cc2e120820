package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/pkg/logger"
)

type WebsocketSettings struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func DefaultWebsocketSettings() WebsocketSettings {
	return WebsocketSettings{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     15 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      45 * time.Second,
	}
}

// WebsocketDialer 通过 websocket 建立推送通道，凭证放在握手的 Authorization 头里
type WebsocketDialer struct {
	url      string
	settings WebsocketSettings
	dialer   *websocket.Dialer
}

func NewWebsocketDialer(url string, settings WebsocketSettings) *WebsocketDialer {
	def := DefaultWebsocketSettings()
	if settings.HandshakeTimeout <= 0 {
		settings.HandshakeTimeout = def.HandshakeTimeout
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = def.PingInterval
	}
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = def.WriteTimeout
	}
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = def.ReadTimeout
	}
	return &WebsocketDialer{
		url:      url,
		settings: settings,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, credential string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	ws, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", d.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", d.url, err)
	}
	return newWSConn(ws, d.settings), nil
}

type wsConn struct {
	ws       *websocket.Conn
	settings WebsocketSettings

	wmu    sync.Mutex
	once   sync.Once
	closed chan struct{}
}

func newWSConn(ws *websocket.Conn, settings WebsocketSettings) *wsConn {
	c := &wsConn{ws: ws, settings: settings, closed: make(chan struct{})}
	_ = ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	})
	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout))
			c.wmu.Unlock()
			if err != nil {
				// 写超时后连接不可恢复，交给读循环结束并重连
				_ = c.Close()
				return
			}
		}
	}
}

func (c *wsConn) ReadEnvelope() (Envelope, error) {
	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(message) == 0 {
				continue
			}
			var env Envelope
			if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
				logger.Warn("realtime: dropping malformed frame", zap.Int("bytes", len(message)), zap.Error(err))
				continue
			}
			return env, nil
		}
	}
}

func (c *wsConn) WriteEnvelope(env Envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	return c.ws.WriteJSON(env)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
