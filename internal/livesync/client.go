// Package livesync wires the session, the connection manager and both
// synchronizers into one client.
package livesync

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/config"
	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/cache"
	"github.com/d60-Lab/livesync/internal/community"
	"github.com/d60-Lab/livesync/internal/messaging"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
	"github.com/d60-Lab/livesync/internal/worker"
	"github.com/d60-Lab/livesync/pkg/logger"
)

// Deps overrides the collaborators built from config. Zero values mean
// "build from config".
type Deps struct {
	Dialer     realtime.Dialer
	HTTPClient *http.Client
	Liked      cache.LikedStore
	Notifier   messaging.Notifier
}

type Client struct {
	Session   *session.Holder
	API       *apiclient.Client
	Conn      *realtime.Manager
	Messaging *messaging.Synchronizer
	Community *community.Synchronizer

	cfg        *config.Config
	dispatcher *worker.Dispatcher
	rdb        *redis.Client
	log        *zap.Logger

	mu           sync.Mutex
	started      bool
	stopDispatch func(context.Context) error
	unwatch      func()
}

func New(cfg *config.Config, sess *session.Holder, deps Deps) *Client {
	if sess == nil {
		sess = session.NewHolder()
	}
	c := &Client{Session: sess, cfg: cfg, log: logger.Named("livesync")}

	c.API = apiclient.New(apiclient.Options{
		BaseURL:    cfg.Client.APIBase,
		Timeout:    cfg.Client.RequestTimeout,
		RateLimit:  cfg.Client.RateLimit,
		RateBurst:  cfg.Client.RateBurst,
		HTTPClient: deps.HTTPClient,
	}, sess.Credential)

	dialer := deps.Dialer
	if dialer == nil {
		dialer = realtime.NewWebsocketDialer(cfg.Realtime.URL, realtime.WebsocketSettings{
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
			PingInterval:     cfg.Realtime.PingInterval,
			WriteTimeout:     cfg.Realtime.WriteTimeout,
			ReadTimeout:      cfg.Realtime.ReadTimeout,
		})
	}
	c.Conn = realtime.NewManager(dialer, realtime.Settings{ReconnectTimeout: cfg.Realtime.ReconnectTimeout})

	liked := deps.Liked
	if liked == nil {
		liked = c.likedStore()
	}
	c.dispatcher = worker.NewDispatcher(cfg.Client.DispatchQueue, cfg.Client.RequestTimeout)

	c.Messaging = messaging.New(c.API, c.Conn, sess, messaging.Options{Notifier: deps.Notifier})
	c.Community = community.New(c.API, c.Conn, sess, liked, c.dispatcher)
	return c
}

func (c *Client) likedStore() cache.LikedStore {
	if c.cfg.Redis.Addr == "" {
		return cache.NewMemoryLikedStore()
	}
	c.rdb = redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})
	return cache.NewRedisLikedStore(c.rdb, c.cfg.Redis.LikedTTL)
}

// Start follows the session: a credential opens the channel, logout closes
// it. An already signed-in session connects immediately.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopDispatch = c.dispatcher.Start(c.cfg.Client.DispatchWorker)
	c.Messaging.Start()
	c.Community.Start()
	c.unwatch = c.Session.Watch(c.onSession)
	c.mu.Unlock()

	if snap, ok := c.Session.Current(); ok {
		c.onSession(snap, true)
	}
}

func (c *Client) onSession(s session.Snapshot, ok bool) {
	if !ok || s.Credential == "" {
		c.log.Info("session ended, closing channel")
		c.Conn.Close()
		return
	}
	c.log.Info("session active, opening channel", zap.Int64("user_id", s.Identity.ID))
	c.Conn.Open(s.Credential)
}

// Login exchanges dev-backend credentials for a token and installs it.
func (c *Client) Login(ctx context.Context, userID int64, password string) error {
	token, err := c.API.Login(ctx, userID, password)
	if err != nil {
		return err
	}
	return c.Session.SetToken(token)
}

func (c *Client) Logout() { c.Session.Clear() }

func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	unwatch, stop := c.unwatch, c.stopDispatch
	c.mu.Unlock()

	unwatch()
	c.Conn.Close()
	c.Messaging.Stop()
	c.Community.Stop()

	var errs []error
	if err := stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
