// Package session holds the current credential and identity. Its presence or
// absence drives the connection lifecycle of everything built on top.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Identity 当前登录用户
type Identity struct {
	ID   int64
	Name string
	Role string
}

func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// Snapshot is an immutable view of the session at one point in time.
type Snapshot struct {
	Credential string
	Identity   Identity
}

// Holder 会话上下文，变更时通知订阅方
type Holder struct {
	// nmu 串行化变更与通知，监听方看到的顺序与 Set/Clear 的顺序一致。
	// 回调中不能再调用 Set/Clear
	nmu      sync.Mutex
	mu       sync.RWMutex
	cur      *Snapshot
	watchers map[int]func(Snapshot, bool)
	nextID   int
}

func NewHolder() *Holder {
	return &Holder{watchers: make(map[int]func(Snapshot, bool))}
}

// Set installs a credential. Setting the same credential and identity again
// does not notify watchers.
func (h *Holder) Set(credential string, id Identity) {
	h.nmu.Lock()
	defer h.nmu.Unlock()
	h.mu.Lock()
	if h.cur != nil && h.cur.Credential == credential && h.cur.Identity == id {
		h.mu.Unlock()
		return
	}
	snap := Snapshot{Credential: credential, Identity: id}
	h.cur = &snap
	fns := h.watchersLocked()
	h.mu.Unlock()

	for _, fn := range fns {
		fn(snap, true)
	}
}

// SetToken decodes the identity from a JWT and installs it.
func (h *Holder) SetToken(token string) error {
	id, err := IdentityFromToken(token)
	if err != nil {
		return err
	}
	h.Set(token, id)
	return nil
}

// Clear drops the credential (logout).
func (h *Holder) Clear() {
	h.nmu.Lock()
	defer h.nmu.Unlock()
	h.mu.Lock()
	if h.cur == nil {
		h.mu.Unlock()
		return
	}
	h.cur = nil
	fns := h.watchersLocked()
	h.mu.Unlock()

	for _, fn := range fns {
		fn(Snapshot{}, false)
	}
}

func (h *Holder) Current() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cur == nil {
		return Snapshot{}, false
	}
	return *h.cur, true
}

// Credential returns "" when signed out.
func (h *Holder) Credential() string {
	s, _ := h.Current()
	return s.Credential
}

func (h *Holder) Identity() Identity {
	s, _ := h.Current()
	return s.Identity
}

func (h *Holder) Authenticated() bool {
	_, ok := h.Current()
	return ok
}

// Watch registers fn for every change; ok is false after Clear. The returned
// func removes the watcher.
func (h *Holder) Watch(fn func(s Snapshot, ok bool)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.watchers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}

func (h *Holder) watchersLocked() []func(Snapshot, bool) {
	fns := make([]func(Snapshot, bool), 0, len(h.watchers))
	for i := 0; i < h.nextID; i++ {
		if fn, ok := h.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

var ErrBadToken = errors.New("session: malformed token")

// Claims 令牌中携带的身份信息。sub 为用户 ID。
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityFromToken reads the identity claims without verifying the
// signature; the server is the verifier.
func IdentityFromToken(token string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject %q", ErrBadToken, claims.Subject)
	}
	return Identity{ID: id, Name: claims.Name, Role: claims.Role}, nil
}
