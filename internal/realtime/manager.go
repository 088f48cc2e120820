package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/pkg/logger"
)

// Conn is one established channel connection.
type Conn interface {
	ReadEnvelope() (Envelope, error)
	WriteEnvelope(Envelope) error
	Close() error
}

// Dialer opens an authenticated connection.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

type Settings struct {
	// ReconnectTimeout 连接断开或拨号失败后的固定重连间隔（无指数退避）
	ReconnectTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{ReconnectTimeout: 2 * time.Second}
}

// Manager 每个会话一条持久连接，两个同步器共享。
//
// Open 对同一凭证幂等；换凭证或 Close 都会清空订阅表，同步器需要在
// Connected 回调里重新订阅。
type Manager struct {
	dialer   Dialer
	settings Settings
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	credential string
	gen        uint64
	cancel     context.CancelFunc
	conn       Conn
	handlers   map[Key]Handler
	byWire     map[string]Key

	// nmu 串行化状态迁移与回调，保证监听方看到的顺序与迁移顺序一致
	nmu       sync.Mutex
	lmu       sync.Mutex
	listeners map[int]StateListener
	nextL     int
}

func NewManager(dialer Dialer, settings Settings) *Manager {
	if settings.ReconnectTimeout <= 0 {
		settings.ReconnectTimeout = DefaultSettings().ReconnectTimeout
	}
	return &Manager{
		dialer:    dialer,
		settings:  settings,
		log:       logger.Named("realtime"),
		handlers:  make(map[Key]Handler),
		byWire:    make(map[string]Key),
		listeners: make(map[int]StateListener),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open establishes the channel for credential. A second call with the same
// credential while the channel is up (or coming up) is a no-op.
func (m *Manager) Open(credential string) {
	m.mu.Lock()
	if m.state != Disconnected && m.credential == credential {
		m.mu.Unlock()
		return
	}
	switching := m.state != Disconnected
	m.stopLocked()
	m.credential = credential
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	gen := m.gen
	m.mu.Unlock()

	if switching {
		m.transition(gen, Disconnected)
	}
	m.transition(gen, Connecting)
	go m.run(ctx, gen, credential)
}

// Close releases the channel and drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == Disconnected && m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.stopLocked()
	m.credential = ""
	gen := m.gen
	m.mu.Unlock()

	m.transition(gen, Disconnected)
}

// stopLocked cancels the running loop and bumps the generation so that
// anything still in flight from it is ignored.
func (m *Manager) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.handlers = make(map[Key]Handler)
	m.byWire = make(map[string]Key)
}

// Subscribe binds handler to key, replacing any previous handler for the
// same key. Two different keys may not share a wire name.
func (m *Manager) Subscribe(key Key, handler Handler) error {
	if key.Kind == "" {
		return ErrEmptyKind
	}
	wire := key.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	if bound, ok := m.byWire[wire]; ok && bound != key {
		return ErrKeyCollision
	}
	m.handlers[key] = handler
	m.byWire[wire] = key
	return nil
}

func (m *Manager) Unsubscribe(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[key]; !ok {
		return
	}
	delete(m.handlers, key)
	delete(m.byWire, key.String())
}

// Subscribed reports whether key currently has a handler.
func (m *Manager) Subscribed(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[key]
	return ok
}

// Emit sends a client event on the live connection.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteEnvelope(env)
}

// OnStateChange registers a listener; the returned func removes it.
// Listeners must not call Open or Close.
func (m *Manager) OnStateChange(fn StateListener) func() {
	m.lmu.Lock()
	id := m.nextL
	m.nextL++
	m.listeners[id] = fn
	m.lmu.Unlock()
	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

func (m *Manager) transition(gen uint64, next State) {
	m.nmu.Lock()
	defer m.nmu.Unlock()

	m.mu.Lock()
	if gen != m.gen || m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	m.mu.Unlock()

	m.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", next))

	m.lmu.Lock()
	fns := make([]StateListener, 0, len(m.listeners))
	for i := 0; i < m.nextL; i++ {
		if fn, ok := m.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(prev, next)
	}
}

func (m *Manager) run(ctx context.Context, gen uint64, credential string) {
	for {
		conn, err := m.dialer.Dial(ctx, credential)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Info("dial failed", zap.Error(err), zap.Duration("retry_in", m.settings.ReconnectTimeout))
			if !m.wait(ctx) {
				return
			}
			continue
		}

		if !m.attach(gen, conn) {
			_ = conn.Close()
			return
		}
		m.transition(gen, Connected)
		m.readLoop(ctx, gen, conn)
		m.detach(gen, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		m.transition(gen, Connecting)
		if !m.wait(ctx) {
			return
		}
	}
}

func (m *Manager) wait(ctx context.Context) bool {
	t := time.NewTimer(m.settings.ReconnectTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) attach(gen uint64, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) detach(gen uint64, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen && m.conn == conn {
		m.conn = nil
	}
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if ctx.Err() == nil {
				m.log.Info("channel read ended", zap.Error(err))
			}
			return
		}
		if !m.dispatch(gen, env) {
			return
		}
	}
}

// dispatch returns false once the generation is stale.
func (m *Manager) dispatch(gen uint64, env Envelope) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	key, ok := m.byWire[env.Event]
	h := m.handlers[key]
	m.mu.Unlock()

	if !ok || h == nil {
		m.log.Debug("no handler", zap.String("event", env.Event))
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("handler panic", zap.String("event", env.Event), zap.Any("panic", r))
		}
	}()
	h(env.Data)
	return true
}
