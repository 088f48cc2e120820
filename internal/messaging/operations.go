package messaging

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/apiclient"
	"github.com/d60-Lab/livesync/internal/model"
)

// ErrSendFailed is returned when the server does not accept a message.
// It also matches apiclient.ErrMutationRejected.
var ErrSendFailed = fmt.Errorf("send failed: %w", apiclient.ErrMutationRejected)

// ErrInvalidMessage 本地校验失败，没有发出请求
var ErrInvalidMessage = errors.New("invalid message")

// minSearchLen 少于 2 个字符的查询不发请求
const minSearchLen = 2

type outgoing struct {
	ConversationID int64  `validate:"gt=0"`
	Content        string `validate:"required,max=4000"`
}

// FetchConversations replaces the whole list with a fresh snapshot. If two
// fetches race, the one issued last wins.
func (s *Synchronizer) FetchConversations(ctx context.Context) {
	if !s.sess.Authenticated() {
		return
	}
	s.mu.Lock()
	s.listToken++
	token := s.listToken
	s.mu.Unlock()

	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		s.log.Warn("fetch conversations", zap.Error(err))
		return
	}

	s.mu.Lock()
	if token != s.listToken {
		s.mu.Unlock()
		s.log.Debug("discard stale conversation snapshot")
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	s.conversations = convs
	s.sortLocked()
	var unread []model.Conversation
	for _, c := range s.conversations {
		if c.UnreadCount > 0 {
			unread = append(unread, c)
		}
	}
	s.mu.Unlock()

	s.changes.Notify()
	if len(unread) > 0 {
		s.notifier.UnreadSummary(unread)
	}
}

// FetchMessages loads conversationID into the message log and marks the
// conversation read locally.
func (s *Synchronizer) FetchMessages(ctx context.Context, conversationID int64) {
	if !s.sess.Authenticated() {
		return
	}
	s.mu.Lock()
	if s.open != conversationID {
		s.open = conversationID
		s.messages = nil
	}
	s.logToken++
	token := s.logToken
	s.loading = true
	s.mu.Unlock()
	s.changes.Notify()

	msgs, err := s.api.ListMessages(ctx, conversationID)

	s.mu.Lock()
	if token != s.logToken {
		s.mu.Unlock()
		s.log.Debug("discard stale message log", zap.Int64("conversation_id", conversationID))
		return
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("fetch messages", zap.Int64("conversation_id", conversationID), zap.Error(err))
		s.changes.Notify()
		return
	}
	s.messages = dedupe(msgs)
	if i := s.indexLocked(conversationID); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
	s.mu.Unlock()
	s.changes.Notify()
}

// LeaveConversation closes the message log.
func (s *Synchronizer) LeaveConversation() {
	s.mu.Lock()
	s.open = 0
	s.messages = nil
	s.loading = false
	s.logToken++
	s.mu.Unlock()
	s.changes.Notify()
}

// SendMessage posts content. The message shows up in the log when the
// server echoes it back as new_message.
func (s *Synchronizer) SendMessage(ctx context.Context, conversationID int64, content string) error {
	if err := s.validate.Struct(outgoing{ConversationID: conversationID, Content: content}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if _, err := s.api.SendMessage(ctx, conversationID, content); err != nil {
		s.log.Warn("send message", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// SearchUsers returns matches for query, or an empty list for short
// queries and any failure.
func (s *Synchronizer) SearchUsers(ctx context.Context, query string) []model.UserSummary {
	if !s.sess.Authenticated() || utf8.RuneCountInString(query) < minSearchLen {
		return []model.UserSummary{}
	}
	users, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		s.log.Warn("search users", zap.String("query", query), zap.Error(err))
		return []model.UserSummary{}
	}
	if users == nil {
		users = []model.UserSummary{}
	}
	return users
}

// GetOrCreateConversation returns the conversation with targetUserID,
// refreshing the whole list afterwards. NoConversation on failure.
func (s *Synchronizer) GetOrCreateConversation(ctx context.Context, targetUserID int64) int64 {
	if !s.sess.Authenticated() {
		return NoConversation
	}
	id, err := s.api.GetOrCreateConversation(ctx, targetUserID)
	if err != nil {
		s.log.Warn("get or create conversation", zap.Int64("target_user_id", targetUserID), zap.Error(err))
		return NoConversation
	}
	s.FetchConversations(ctx)
	return id
}

// DisconnectChat is the admin action. The flag is set locally as soon as
// the server accepts, ahead of the chat_disconnected push.
func (s *Synchronizer) DisconnectChat(ctx context.Context, conversationID int64) {
	if !s.sess.Authenticated() {
		return
	}
	if err := s.api.DisconnectChat(ctx, conversationID); err != nil {
		s.log.Warn("disconnect chat", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return
	}
	s.markDisconnected(conversationID)
}

func (s *Synchronizer) markDisconnected(conversationID int64) {
	s.mu.Lock()
	i := s.indexLocked(conversationID)
	changed := i >= 0 && !s.conversations[i].IsDisconnectedByAdmin
	if changed {
		s.conversations[i].IsDisconnectedByAdmin = true
	}
	s.mu.Unlock()
	if changed {
		s.changes.Notify()
	}
}

func dedupe(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
