package messaging

import (
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/internal/model"
)

// aggregateAbove 超过这么多个未读会话时只给一条汇总提醒
const aggregateAbove = 3

// Notifier surfaces messages the user has not seen yet.
type Notifier interface {
	// NewMessage is called for every pushed message not sent by the current user.
	NewMessage(msg model.Message)
	// UnreadSummary is called after a conversation snapshot with the
	// conversations that still have unread messages.
	UnreadSummary(unread []model.Conversation)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) NewMessage(msg model.Message) {
	n.log.Info("new message",
		zap.String("from", msg.SenderName),
		zap.Int64("conversation_id", msg.ConversationID),
		zap.String("content", msg.Content))
}

func (n *LogNotifier) UnreadSummary(unread []model.Conversation) {
	if len(unread) > aggregateAbove {
		n.log.Info("unread messages", zap.Int("conversations", len(unread)))
		return
	}
	for _, c := range unread {
		n.log.Info("unread from", zap.String("from", c.OtherUserName), zap.Int("count", c.UnreadCount))
	}
}
