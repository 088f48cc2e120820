package realtime

import (
	"context"
	"errors"
	"sync"
)

// Loopback is an in-process Dialer. The test (or simulation) side pushes
// server events into the live connection and inspects what the client
// emitted.
type Loopback struct {
	mu          sync.Mutex
	cur         *loopConn
	credentials []string
	emitted     []Envelope
	failures    int
}

func NewLoopback() *Loopback { return &Loopback{} }

// FailNext makes the next n dials fail.
func (l *Loopback) FailNext(n int) {
	l.mu.Lock()
	l.failures = n
	l.mu.Unlock()
}

func (l *Loopback) Dial(ctx context.Context, credential string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credentials = append(l.credentials, credential)
	if l.failures > 0 {
		l.failures--
		return nil, errors.New("loopback: dial refused")
	}
	c := &loopConn{lb: l, in: make(chan Envelope, 256), closed: make(chan struct{})}
	l.cur = c
	return c, nil
}

// Push delivers a server event to the current connection.
func (l *Loopback) Push(event string, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	l.mu.Lock()
	c := l.cur
	l.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	select {
	case <-c.closed:
		return ErrClosed
	case c.in <- env:
		return nil
	}
}

// Drop closes the current connection from the server side.
func (l *Loopback) Drop() {
	l.mu.Lock()
	c := l.cur
	l.cur = nil
	l.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Dials returns every credential presented so far, in order.
func (l *Loopback) Dials() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.credentials...)
}

// Emitted returns the client events written so far.
func (l *Loopback) Emitted() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Envelope(nil), l.emitted...)
}

type loopConn struct {
	lb     *Loopback
	in     chan Envelope
	once   sync.Once
	closed chan struct{}
}

func (c *loopConn) ReadEnvelope() (Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case <-c.closed:
		return Envelope{}, ErrClosed
	}
}

func (c *loopConn) WriteEnvelope(env Envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.lb.mu.Lock()
	c.lb.emitted = append(c.lb.emitted, env)
	c.lb.mu.Unlock()
	return nil
}

func (c *loopConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
