package messaging

import (
	"context"
	"encoding/json"
	"slices"

	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/model"
)

func (s *Synchronizer) handleNewMessage(data json.RawMessage) {
	var ev model.NewMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("bad new_message payload", zap.Error(err))
		return
	}
	if ev.ConversationID == 0 {
		ev.ConversationID = ev.Message.ConversationID
	}
	msg := ev.Message
	self := msg.SenderID == s.sess.Identity().ID

	s.mu.Lock()
	if s.open == ev.ConversationID && !slices.ContainsFunc(s.messages, func(m model.Message) bool { return m.ID == msg.ID }) {
		s.messages = append(s.messages, msg)
	}
	i := s.indexLocked(ev.ConversationID)
	if i >= 0 {
		c := &s.conversations[i]
		c.LastMessage = msg.Content
		c.LastMessageAt = msg.CreatedAt
		if !self {
			c.UnreadCount++
		}
		s.sortLocked()
	}
	s.mu.Unlock()

	s.changes.Notify()
	if !self {
		s.notifier.NewMessage(msg)
	}
	if i < 0 {
		// 新会话：整表重拉，不在本地拼条目
		go s.FetchConversations(context.Background())
	}
}

func (s *Synchronizer) handleChatDisconnected(data json.RawMessage) {
	var ev model.ChatDisconnectedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("bad chat_disconnected payload", zap.Error(err))
		return
	}
	s.markDisconnected(ev.ConversationID)
}
