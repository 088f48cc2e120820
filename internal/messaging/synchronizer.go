// Package messaging keeps the conversation list and the open conversation's
// message log in step with snapshots, push events and local mutations.
package messaging

import (
	"context"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/notify"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/session"
	"github.com/d60-Lab/livesync/pkg/logger"
)

// NoConversation is returned by GetOrCreateConversation on failure.
const NoConversation int64 = 0

// API is the request/response side consumed by the synchronizer.
type API interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error)
	SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error)
	GetOrCreateConversation(ctx context.Context, targetUserID int64) (int64, error)
	DisconnectChat(ctx context.Context, conversationID int64) error
}

// Channel is the part of the connection manager the synchronizer uses.
type Channel interface {
	Subscribe(key realtime.Key, h realtime.Handler) error
	Unsubscribe(key realtime.Key)
	Emit(ctx context.Context, event string, payload any) error
	OnStateChange(fn realtime.StateListener) func()
}

// Session exposes the current credential and identity.
type Session interface {
	Authenticated() bool
	Identity() session.Identity
}

type Options struct {
	Notifier Notifier
}

// Synchronizer 私信同步器。
//
// 所有状态由 mu 保护；每个事件处理或响应落地都是在锁内一次完成的读改写，
// 网络请求一律在锁外。
type Synchronizer struct {
	api      API
	ch       Channel
	sess     Session
	notifier Notifier
	validate *validator.Validate
	changes  *notify.Broadcaster
	log      *zap.Logger

	mu            sync.Mutex
	conversations []model.Conversation
	messages      []model.Message
	open          int64 // 当前消息日志所属会话，0 表示没有打开的会话
	loading       bool
	listToken     uint64
	logToken      uint64

	unwatch func()
}

func New(api API, ch Channel, sess Session, opts Options) *Synchronizer {
	n := opts.Notifier
	if n == nil {
		n = NewLogNotifier(logger.Named("messaging.notify"))
	}
	return &Synchronizer{
		api:      api,
		ch:       ch,
		sess:     sess,
		notifier: n,
		validate: validator.New(),
		changes:  notify.New(),
		log:      logger.Named("messaging"),
	}
}

// Start hooks the synchronizer to the channel lifecycle.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwatch != nil {
		return
	}
	s.unwatch = s.ch.OnStateChange(s.onState)
}

func (s *Synchronizer) Stop() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	s.ch.Unsubscribe(realtime.SessionKey(realtime.KindNewMessage))
	s.ch.Unsubscribe(realtime.SessionKey(realtime.KindChatDisconnected))
}

func (s *Synchronizer) onState(_, next realtime.State) {
	switch next {
	case realtime.Connected:
		s.attach()
	case realtime.Disconnected:
		s.reset()
	}
}

// attach runs on every (re)connect: the manager has dropped our handlers
// along with the previous connection.
func (s *Synchronizer) attach() {
	if err := s.ch.Subscribe(realtime.SessionKey(realtime.KindNewMessage), s.handleNewMessage); err != nil {
		s.log.Error("subscribe new_message", zap.Error(err))
	}
	if err := s.ch.Subscribe(realtime.SessionKey(realtime.KindChatDisconnected), s.handleChatDisconnected); err != nil {
		s.log.Error("subscribe chat_disconnected", zap.Error(err))
	}
	if id := s.sess.Identity().ID; id != 0 {
		if err := s.ch.Emit(context.Background(), realtime.EventJoinUserRoom, id); err != nil {
			s.log.Warn("join user room", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	go s.FetchConversations(context.Background())
}

func (s *Synchronizer) reset() {
	s.mu.Lock()
	s.conversations = nil
	s.messages = nil
	s.open = 0
	s.loading = false
	s.listToken++
	s.logToken++
	s.mu.Unlock()
	s.changes.Notify()
}

// Watch signals after every change to the read model.
func (s *Synchronizer) Watch() (<-chan struct{}, func()) { return s.changes.Watch() }

// Conversations returns a copy of the list, newest activity first.
func (s *Synchronizer) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversations)
}

func (s *Synchronizer) Conversation(id int64) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.conversations[i], true
	}
	return model.Conversation{}, false
}

// Messages returns a copy of the open conversation's log.
func (s *Synchronizer) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Synchronizer) OpenConversation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Loading reports whether a message log fetch is in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Synchronizer) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

func (s *Synchronizer) indexLocked(id int64) int {
	return slices.IndexFunc(s.conversations, func(c model.Conversation) bool { return c.ID == id })
}

func (s *Synchronizer) sortLocked() {
	slices.SortStableFunc(s.conversations, func(a, b model.Conversation) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
}
